// ABOUTME: Tests for the connection registry
// ABOUTME: Covers targeted broadcast, idempotent unregister, heartbeat pruning and shutdown

package realtime

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/prompt-gateway/internal/stream"
)

var errBrokenPipe = errors.New("broken pipe")

func newTestRegistry(t *testing.T, interval time.Duration) (*Registry, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	r := NewRegistry(Config{HeartbeatInterval: interval, Metrics: m})
	t.Cleanup(r.Shutdown)
	return r, m
}

func register(r *Registry, userID, tenantID string) (*Connection, *stream.Recorder) {
	rec := stream.NewRecorder()
	conn := NewConnection(userID, tenantID, rec)
	r.Register(conn)
	return conn, rec
}

func TestNewConnection_IDFormat(t *testing.T) {
	a := NewConnection("user-1", "space-1", stream.NewRecorder())
	b := NewConnection("user-1", "space-1", stream.NewRecorder())

	assert.True(t, strings.HasPrefix(a.ID, "user-1-"))
	assert.NotEqual(t, a.ID, b.ID)
}

func TestRegistry_BroadcastToTenant(t *testing.T) {
	r, m := newTestRegistry(t, time.Hour)

	_, s1a := register(r, "u1", "S1")
	_, s1b := register(r, "u2", "S1")
	_, s2 := register(r, "u3", "S2")

	r.BroadcastToTenant("S1", Event{Type: "prompt.created", Data: map[string]string{"id": "p1"}})

	assert.Equal(t, 1, s1a.Count("prompt.created"))
	assert.Equal(t, 1, s1b.Count("prompt.created"))
	assert.Empty(t, s2.Frames())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsDelivered.WithLabelValues("prompt.created")))

	var ev Event
	require.NoError(t, json.Unmarshal(s1a.Frames()[0].Data, &ev))
	assert.Equal(t, "prompt.created", ev.Type)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestRegistry_BroadcastToUser(t *testing.T) {
	r, _ := newTestRegistry(t, time.Hour)

	_, mine := register(r, "u1", "S1")
	_, sameTenant := register(r, "u2", "S1")

	r.BroadcastToUser("u1", Event{Data: "hello"})

	assert.Equal(t, 1, mine.Count(stream.EventMessage))
	assert.Empty(t, sameTenant.Frames())
}

func TestRegistry_BroadcastPrunesFailedConnection(t *testing.T) {
	r, m := newTestRegistry(t, time.Hour)

	dead, deadRec := register(r, "u1", "S1")
	deadRec.FailAfter(0, errBrokenPipe)
	_, live := register(r, "u2", "S1")

	r.BroadcastToTenant("S1", Event{Type: "prompt.updated"})

	assert.Equal(t, 1, live.Count("prompt.updated"))
	assert.Equal(t, 1, r.Stats().Total)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryFailures))

	select {
	case <-dead.Done():
	default:
		t.Fatal("failed connection was not unregistered")
	}
}

func TestRegistry_BroadcastRejectsInvalidEventType(t *testing.T) {
	r, _ := newTestRegistry(t, time.Hour)
	_, rec := register(r, "u1", "S1")

	r.BroadcastToTenant("S1", Event{Type: "bad\nevent"})

	assert.Empty(t, rec.Frames())
	assert.Equal(t, 1, r.Stats().Total, "invalid event must not prune the connection")
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	r, m := newTestRegistry(t, time.Hour)
	conn, rec := register(r, "u1", "S1")

	r.Unregister(conn.ID)
	r.Unregister(conn.ID)
	r.Unregister("never-registered")

	assert.Equal(t, 0, r.Stats().Total)
	assert.True(t, rec.Closed())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OpenConnections))
}

func TestRegistry_ConcurrentUnregister(t *testing.T) {
	r, m := newTestRegistry(t, time.Hour)
	conn, _ := register(r, "u1", "S1")

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Unregister(conn.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0.0, testutil.ToFloat64(m.OpenConnections))
}

func TestRegistry_Stats(t *testing.T) {
	r, _ := newTestRegistry(t, time.Hour)
	register(r, "u1", "S1")
	register(r, "u1", "S1")
	register(r, "u2", "S2")

	s := r.Stats()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, map[string]int{"u1": 2, "u2": 1}, s.PerUser)
	assert.Equal(t, map[string]int{"S1": 2, "S2": 1}, s.PerTenant)
}

func TestRegistry_Heartbeat(t *testing.T) {
	r, _ := newTestRegistry(t, 5*time.Millisecond)
	_, rec := register(r, "u1", "S1")

	require.Eventually(t, func() bool {
		return rec.Count(stream.EventHeartbeat) >= 2
	}, time.Second, 5*time.Millisecond)

	var hb heartbeatPayload
	require.NoError(t, json.Unmarshal(rec.Frames()[0].Data, &hb))
	assert.Equal(t, "heartbeat", hb.Type)
	assert.NotZero(t, hb.Timestamp)
}

func TestRegistry_HeartbeatFailurePrunes(t *testing.T) {
	r, m := newTestRegistry(t, 5*time.Millisecond)
	rec := stream.NewRecorder()
	rec.FailAfter(0, errBrokenPipe)
	conn := NewConnection("u1", "S1", rec)
	r.Register(conn)

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("heartbeat failure did not unregister connection")
	}

	assert.Equal(t, 0, r.Stats().Total)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HeartbeatFailures))
}

// attemptCounter wraps a Recorder and counts every Send, including writes the
// recorder rejects after Close.
type attemptCounter struct {
	*stream.Recorder
	attempts atomic.Int64
}

func (a *attemptCounter) Send(event string, payload any) error {
	a.attempts.Add(1)
	return a.Recorder.Send(event, payload)
}

func TestRegistry_NoHeartbeatAfterUnregister(t *testing.T) {
	r, _ := newTestRegistry(t, 5*time.Millisecond)
	sink := &attemptCounter{Recorder: stream.NewRecorder()}
	conn := NewConnection("u1", "S1", sink)
	r.Register(conn)

	require.Eventually(t, func() bool {
		return sink.attempts.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	r.Unregister(conn.ID)
	// A tick already in flight may still land once.
	time.Sleep(10 * time.Millisecond)
	n := sink.attempts.Load()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, n, sink.attempts.Load(), "heartbeat kept writing after unregister")
}

func TestRegistry_Shutdown(t *testing.T) {
	r, _ := newTestRegistry(t, time.Hour)
	a, recA := register(r, "u1", "S1")
	b, _ := register(r, "u2", "S2")

	r.Shutdown()

	for _, c := range []*Connection{a, b} {
		select {
		case <-c.Done():
		default:
			t.Fatalf("connection %s still open after shutdown", c.ID)
		}
	}
	assert.True(t, recA.Closed())

	late, lateRec := register(r, "u3", "S1")
	assert.True(t, lateRec.Closed())
	<-late.Done()
	assert.Equal(t, 0, r.Stats().Total)
}
