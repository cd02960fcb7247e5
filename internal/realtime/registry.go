// ABOUTME: In-memory registry of open push streams with tenant and user targeted broadcast
// ABOUTME: Runs one heartbeat per connection and prunes connections whose writes fail

package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/prompt-gateway/internal/stream"
)

// DefaultHeartbeatInterval is the keep-alive period for every connection.
const DefaultHeartbeatInterval = 30 * time.Second

// Event is an application event pushed to matching connections.
// Type becomes the SSE event token; an empty Type is sent as "message".
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats is a point-in-time view of the registry. Fields may be read at
// slightly different instants.
type Stats struct {
	Total     int            `json:"total"`
	PerUser   map[string]int `json:"perUser"`
	PerTenant map[string]int `json:"perTenant"`
}

// Config configures a Registry.
type Config struct {
	HeartbeatInterval time.Duration
	Logger            *slog.Logger
	Metrics           *Metrics
}

// Registry tracks every open push stream. It is the only holder of the
// connection map; callers reach it through Register, Unregister and the
// broadcast methods.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	closed bool

	interval time.Duration
	logger   *slog.Logger
	metrics  *Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{
		conns:    make(map[string]*Connection),
		interval: cfg.HeartbeatInterval,
		logger:   cfg.Logger.With("component", "realtime"),
		metrics:  cfg.Metrics,
	}
}

// Register adds conn and starts its heartbeat. The caller guarantees the ID is
// unique (NewConnection does). After Shutdown the connection is closed instead.
func (r *Registry) Register(conn *Connection) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		conn.close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn.cancelHeartbeat = cancel
	r.conns[conn.ID] = conn
	total := len(r.conns)
	r.mu.Unlock()

	r.metrics.connectionOpened()
	go r.heartbeat(ctx, conn)

	r.logger.Info("stream connected",
		"connection_id", conn.ID,
		"user_id", conn.UserID,
		"tenant_id", conn.TenantID,
		"total_connections", total,
	)
}

// Unregister removes the connection, cancels its heartbeat and closes its sink.
// Unknown or already removed IDs are ignored, so the disconnect path and the
// write-failure path may both call it.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	total := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return
	}

	conn.close()
	r.metrics.connectionClosed()

	r.logger.Info("stream disconnected",
		"connection_id", id,
		"user_id", conn.UserID,
		"total_connections", total,
	)
}

// BroadcastToTenant delivers ev to every connection in the tenant.
func (r *Registry) BroadcastToTenant(tenantID string, ev Event) {
	r.broadcast(ev, func(c *Connection) bool { return c.TenantID == tenantID })
}

// BroadcastToUser delivers ev to every connection owned by the user.
func (r *Registry) BroadcastToUser(userID string, ev Event) {
	r.broadcast(ev, func(c *Connection) bool { return c.UserID == userID })
}

// broadcast writes ev to each matching connection outside the lock. A failed
// write unregisters that connection and delivery continues with the rest.
func (r *Registry) broadcast(ev Event, match func(*Connection) bool) {
	r.mu.RLock()
	var targets []*Connection
	for _, c := range r.conns {
		if match(c) {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	eventType := ev.Type
	if eventType == "" {
		eventType = stream.EventMessage
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	for _, c := range targets {
		err := c.send(eventType, ev)
		if errors.Is(err, stream.ErrInvalidEvent) {
			r.logger.Warn("dropping broadcast with invalid event type", "type", eventType)
			return
		}
		if err != nil {
			r.logger.Debug("broadcast write failed, pruning connection",
				"connection_id", c.ID,
				"error", err,
			)
			r.metrics.deliveryFailed()
			r.Unregister(c.ID)
			continue
		}
		r.metrics.delivered(eventType)
	}
}

// Stats returns a snapshot of connection counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		Total:     len(r.conns),
		PerUser:   make(map[string]int),
		PerTenant: make(map[string]int),
	}
	for _, c := range r.conns {
		s.PerUser[c.UserID]++
		s.PerTenant[c.TenantID]++
	}
	return s
}

// Shutdown unregisters every connection. Stream handlers blocked on
// Connection.Done return, and later Register calls close their connection.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	conns := make([]*Connection, 0, len(r.conns))
	for id, c := range r.conns {
		conns = append(conns, c)
		delete(r.conns, id)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.close()
		r.metrics.connectionClosed()
	}

	r.logger.Info("registry shut down", "closed_connections", len(conns))
}

type heartbeatPayload struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// heartbeat sends a keep-alive frame every interval until ctx is cancelled.
// A failed write is how dead clients are detected.
func (r *Registry) heartbeat(ctx context.Context, conn *Connection) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			err := conn.send(stream.EventHeartbeat, heartbeatPayload{
				Type:      stream.EventHeartbeat,
				Timestamp: t.UnixMilli(),
			})
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			r.logger.Debug("heartbeat failed, pruning connection",
				"connection_id", conn.ID,
				"error", err,
			)
			r.metrics.heartbeatFailed()
			r.Unregister(conn.ID)
			return
		}
	}
}
