// ABOUTME: Gateway orchestrator that wires the store, authenticator, stream registry and MCP server
// ABOUTME: Owns the HTTP server lifecycle, on plain TCP or on a Tailscale tsnet node

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/prompt-gateway/internal/auth"
	"github.com/2389/prompt-gateway/internal/config"
	"github.com/2389/prompt-gateway/internal/dedupe"
	"github.com/2389/prompt-gateway/internal/mcp"
	"github.com/2389/prompt-gateway/internal/prompts"
	"github.com/2389/prompt-gateway/internal/realtime"
	"github.com/2389/prompt-gateway/internal/store"
)

// Version is reported in the MCP initialize result. main overrides it at startup.
var Version = "dev"

// maxIdempotencyKeys bounds the idempotency cache.
const maxIdempotencyKeys = 100_000

// Gateway is the central coordinator for prompt-gateway.
type Gateway struct {
	config     *config.Config
	store      store.PromptStore
	authn      auth.Authenticator
	registry   *realtime.Registry
	mcpServer  *mcp.Server
	prompts    *prompts.Service
	dedupe     *dedupe.Cache
	metrics    *prometheus.Registry
	httpServer *http.Server
	logger     *slog.Logger

	tsnetServer *tsnet.Server

	shutdownOnce sync.Once
	shutdownErr  error
}

// initStore opens the SQLite prompt store at the configured path.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	return s, nil
}

// newMetricsRegistry creates the per-gateway registry with the standard
// process and runtime collectors.
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	authn, err := auth.NewJWTAuthenticator([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating authenticator: %w", err)
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	window := cfg.Server.IdempotencyWindow
	if window <= 0 {
		window = config.DefaultIdempotencyWindow
	}

	reg := newMetricsRegistry()
	registry := realtime.NewRegistry(realtime.Config{
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		Logger:            logger,
		Metrics:           realtime.NewMetrics(reg),
	})

	mcpServer, err := mcp.NewServer(mcp.Config{
		Store:         s,
		Authenticator: authn,
		Logger:        logger,
		Metrics:       mcp.NewMetrics(reg),
		MaxBodyBytes:  cfg.MCP.MaxBodyBytes,
		Version:       Version,
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	gw := &Gateway{
		config:    cfg,
		store:     s,
		authn:     authn,
		registry:  registry,
		mcpServer: mcpServer,
		prompts:   prompts.New(s, registry, logger),
		dedupe:    dedupe.New(window, maxIdempotencyKeys),
		metrics:   reg,
		logger:    logger.With("component", "gateway"),
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Open push streams block Shutdown until they end, so close them first.
	gw.httpServer.RegisterOnShutdown(registry.Shutdown)

	return gw, nil
}

// routes builds the HTTP mux.
func (g *Gateway) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	// The stream and MCP endpoints authenticate on their own so they can
	// answer preflight and method errors before credentials are checked.
	mux.Handle("/api/stream", g.registry.HandleStream(g.authn))
	g.mcpServer.RegisterRoutes(mux)

	authMiddleware := auth.HTTPAuthMiddleware(g.authn)
	mux.Handle("/api/stream/stats", authMiddleware(http.HandlerFunc(g.handleStreamStats)))
	mux.Handle("/api/prompts", authMiddleware(http.HandlerFunc(g.handlePrompts)))
	mux.Handle("/api/prompts/{id}", authMiddleware(http.HandlerFunc(g.handlePrompt)))

	if g.config.Metrics.Enabled {
		path := g.config.Metrics.Path
		if path == "" {
			path = config.DefaultMetricsPath
		}
		mux.Handle(path, promhttp.HandlerFor(g.metrics, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
		g.logger.Info("metrics endpoint enabled", "path", path)
	}

	return mux
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// setupTCPListener creates a standard TCP listener for HTTP.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr,
			)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The context passed to Run is already canceled by the time this runs.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "prompt-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener starts a tsnet node and listens on its port 80.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, closes every push stream and releases
// resources. Only the first call does any work; later calls return its result.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.shutdownErr = g.shutdown(ctx)
	})
	return g.shutdownErr
}

func (g *Gateway) shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	// Covers the case where Serve never ran and the shutdown hook did not fire.
	g.registry.Shutdown()
	g.prompts.Wait()

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	g.dedupe.Close()
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports readiness along with the number of open push streams.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	stats := g.registry.Stats()
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d connections)", stats.Total)
}
