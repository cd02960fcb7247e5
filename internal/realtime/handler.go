// ABOUTME: HTTP handler for the long-lived push stream endpoint
// ABOUTME: Authenticates, registers a connection and blocks until it ends

package realtime

import (
	"net/http"

	"github.com/2389/prompt-gateway/internal/auth"
	"github.com/2389/prompt-gateway/internal/stream"
)

type connectedPayload struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

// HandleStream returns the handler for GET /api/stream.
// Authentication failures get a 401 before any stream is opened.
func (r *Registry) HandleStream(authn auth.Authenticator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		p, err := authn.Authenticate(req)
		if err != nil {
			r.logger.Debug("stream authentication failed", "error", err)
			auth.WriteUnauthorized(w, err)
			return
		}

		sink, err := stream.Open(w, req)
		if err != nil {
			r.logger.Error("failed to open stream", "error", err)
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		conn := NewConnection(p.UserID, p.TenantID, sink)

		// connected goes out before Register so it is always the first frame.
		if err := sink.Send(stream.EventConnected, connectedPayload{
			Type:         stream.EventConnected,
			ConnectionID: conn.ID,
		}); err != nil {
			r.logger.Debug("client gone before connected event", "error", err)
			conn.close()
			return
		}

		r.Register(conn)

		select {
		case <-req.Context().Done():
			r.Unregister(conn.ID)
		case <-conn.Done():
		}
	})
}
