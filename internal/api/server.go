package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/hamrelay/internal/command"
	"github.com/nerrad567/hamrelay/internal/history"
	"github.com/nerrad567/hamrelay/internal/infrastructure/config"
	"github.com/nerrad567/hamrelay/internal/infrastructure/logging"
	"github.com/nerrad567/hamrelay/internal/relay"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Relay is the part of the relay engine the API uses.
type Relay interface {
	Dispatch(code string)
	Status() relay.Status
	Pending() []relay.PendingQuery
}

// HealthChecker is a dependency whose health is reported by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Relay      Relay
	Commands   *command.Registry
	Duplicates command.DuplicateReport
	History    history.Repository       // optional: /history returns 503 without it
	Gatherer   prometheus.Gatherer      // optional: /metrics is not mounted without it
	Checks     map[string]HealthChecker // optional: extra /health checks by name
	Hub        *Hub                     // if set, the server uses this hub instead of creating its own
	Version    string
}

// Server is the HTTP API server for hamrelay.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	relay      Relay
	commands   *command.Registry
	duplicates command.DuplicateReport
	history    history.Repository
	gatherer   prometheus.Gatherer
	checks     map[string]HealthChecker
	version    string
	startTime  time.Time
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Relay == nil {
		return nil, fmt.Errorf("relay is required")
	}
	if deps.Commands == nil {
		return nil, fmt.Errorf("command registry is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		relay:      deps.Relay,
		commands:   deps.Commands,
		duplicates: deps.Duplicates,
		history:    deps.History,
		gatherer:   deps.Gatherer,
		checks:     deps.Checks,
		hub:        deps.Hub,
		version:    deps.Version,
		startTime:  time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub if none was injected,
// and launches the HTTP listener in a background goroutine. The server
// can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
