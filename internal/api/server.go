package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/venstar-bridge/internal/bridges/controller"
	"github.com/nerrad567/venstar-bridge/internal/events"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/config"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/venstar-bridge/internal/reflector"
	"github.com/nerrad567/venstar-bridge/internal/thermostat"
	"github.com/nerrad567/venstar-bridge/internal/validator"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultCommandTimeout bounds a command request when none is configured.
const defaultCommandTimeout = 10 * time.Second

// ThermostatStore lists registered thermostats. *thermostat.Registry
// satisfies it.
type ThermostatStore interface {
	List() []thermostat.Thermostat
	Get(address string) (thermostat.Thermostat, bool)
}

// AttributeSource returns reflected attributes. *reflector.Reflector
// satisfies it.
type AttributeSource interface {
	Snapshot(address string) []reflector.Attribute
}

// PhaseSource reports validator phases. *validator.Validator satisfies it.
type PhaseSource interface {
	Phase(address string) (validator.Phase, bool)
}

// Commander executes commands, discovery and removal. *controller.Bridge
// satisfies it.
type Commander interface {
	Command(ctx context.Context, address string, msg controller.CommandMessage) error
	Discover(ctx context.Context) (controller.DiscoverResult, error)
	Remove(ctx context.Context, address string) error
}

// EventLister serves stored events. *events.SQLiteStore satisfies it.
type EventLister interface {
	List(ctx context.Context, filter events.Filter) (*events.ListResult, error)
}

// ConnectionChecker reports broker connectivity. *mqtt.Client satisfies it.
type ConnectionChecker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Thermostats ThermostatStore
	Attributes  AttributeSource
	Phases      PhaseSource
	Commander   Commander
	Events      EventLister // optional
	MQTT        ConnectionChecker
	Metrics     http.Handler // optional, served at /metrics

	// Hub is shared with the reflector and event sink. If nil the server
	// creates its own.
	Hub *Hub

	CommandTimeout time.Duration
	Version        string
}

// Server is the HTTP API server.
type Server struct {
	cfg            config.APIConfig
	wsCfg          config.WebSocketConfig
	secCfg         config.SecurityConfig
	logger         *logging.Logger
	thermostats    ThermostatStore
	attributes     AttributeSource
	phases         PhaseSource
	commander      Commander
	events         EventLister
	mqtt           ConnectionChecker
	metrics        http.Handler
	commandTimeout time.Duration
	version        string
	startTime      time.Time
	server         *http.Server
	hub            *Hub
	cancel         context.CancelFunc
}

// New creates a new API server. It is not started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Thermostats == nil {
		return nil, fmt.Errorf("thermostat store is required")
	}
	if deps.Commander == nil {
		return nil, fmt.Errorf("commander is required")
	}

	s := &Server{
		cfg:            deps.Config,
		wsCfg:          deps.WS,
		secCfg:         deps.Security,
		logger:         deps.Logger,
		thermostats:    deps.Thermostats,
		attributes:     deps.Attributes,
		phases:         deps.Phases,
		commander:      deps.Commander,
		events:         deps.Events,
		mqtt:           deps.MQTT,
		metrics:        deps.Metrics,
		commandTimeout: deps.CommandTimeout,
		version:        deps.Version,
		startTime:      time.Now(),
		hub:            deps.Hub,
	}
	if s.commandTimeout <= 0 {
		s.commandTimeout = defaultCommandTimeout
	}
	if s.hub == nil {
		s.hub = NewHub(deps.Logger)
	}
	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in the background.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

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

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
