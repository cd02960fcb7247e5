// Package realtime is the connection registry behind GET /api/stream.
//
// A Registry holds every open push stream in memory, keyed by connection id.
// One instance exists per process; it is created by the gateway and passed by
// reference to the stream handler and to write paths that broadcast.
//
// Each Connection owns its sink and a heartbeat goroutine that writes a
// heartbeat frame every interval (30s by default). A failed heartbeat or
// broadcast write unregisters the connection; Unregister is idempotent, so the
// client-disconnect path and the failure path may race freely.
//
// Delivery is best-effort and in-memory: broadcasts return nothing, events are
// never persisted, and nothing is replayed to late subscribers.
package realtime
