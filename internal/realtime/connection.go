// ABOUTME: Connection represents one open long-lived push stream
// ABOUTME: Owns its sink, heartbeat cancellation and a done signal closed exactly once

package realtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/prompt-gateway/internal/stream"
)

// connSeq disambiguates connections opened by the same user in the same nanosecond.
var connSeq atomic.Uint64

// Connection is one registered push stream. ID, UserID and TenantID never change.
type Connection struct {
	ID       string
	UserID   string
	TenantID string

	sink stream.Sink

	// cancelHeartbeat is set by Registry.Register before the heartbeat starts.
	cancelHeartbeat context.CancelFunc
	done            chan struct{}
	closeOnce       sync.Once
}

// NewConnection creates a connection for the principal that writes to sink.
// The connection takes ownership of sink.
func NewConnection(userID, tenantID string, sink stream.Sink) *Connection {
	return &Connection{
		ID:       fmt.Sprintf("%s-%d-%d", userID, time.Now().UnixNano(), connSeq.Add(1)),
		UserID:   userID,
		TenantID: tenantID,
		sink:     sink,
		done:     make(chan struct{}),
	}
}

// Done is closed once the connection has been unregistered.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) send(event string, payload any) error {
	return c.sink.Send(event, payload)
}

// close stops the heartbeat, closes the sink and signals Done. Only the first
// call has any effect.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		if c.cancelHeartbeat != nil {
			c.cancelHeartbeat()
		}
		c.sink.Close()
		close(c.done)
	})
}
