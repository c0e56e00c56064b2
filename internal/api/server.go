package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/handsfree-core/internal/audit"
	"github.com/nerrad567/handsfree-core/internal/auth"
	"github.com/nerrad567/handsfree-core/internal/headset"
	"github.com/nerrad567/handsfree-core/internal/infrastructure/config"
	"github.com/nerrad567/handsfree-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Headsets is the gatekeeper surface the API drives. *headset.Service
// implements it.
type Headsets interface {
	Connect(ctx context.Context, id headset.DeviceID) bool
	Disconnect(ctx context.Context, id headset.DeviceID) bool
	StartVoiceRecognition(ctx context.Context, id headset.DeviceID) bool
	StopVoiceRecognition(ctx context.Context, id headset.DeviceID) bool
	ConnectAudio(ctx context.Context) bool
	DisconnectAudio(ctx context.Context) bool
	StartVirtualVoiceCall(ctx context.Context, id headset.DeviceID) bool
	StopVirtualVoiceCall(ctx context.Context, id headset.DeviceID) bool

	PhoneStateChanged(ctx context.Context, cs headset.CallState)
	RoamChanged(ctx context.Context, roaming bool)
	ClccResponse(ctx context.Context, entry headset.ClccEntry)
	BatteryChanged(ctx context.Context, level headset.BatteryLevel)
	ScoVolumeChanged(ctx context.Context, volume int)

	SetPriority(ctx context.Context, id headset.DeviceID, p headset.Priority) bool
	Priority(ctx context.Context, id headset.DeviceID) headset.Priority

	ConnectedDevices() []headset.DeviceID
	DevicesMatchingStates(states ...headset.ConnectionState) []headset.DeviceID
	ConnectionState(id headset.DeviceID) headset.ConnectionState
	AudioState(id headset.DeviceID) headset.AudioState
	Device(id headset.DeviceID) (headset.DeviceRecord, bool)
	Devices() []headset.DeviceRecord
	Evict(id headset.DeviceID) error
	IsAudioOn() bool
	IsAudioConnected(id headset.DeviceID) bool
	BatteryUsageHint(id headset.DeviceID) int
	AcceptIncomingConnect(id headset.DeviceID) bool
	RejectIncomingConnect(id headset.DeviceID) bool
	Session() headset.SessionState
	Running() bool
}

// ConnectionReporter reports whether an optional backend is connected.
type ConnectionReporter interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Headsets Headsets

	// Auth checks login credentials. Without it every login fails.
	Auth *auth.Authenticator

	// History serves transition history; optional.
	History headset.HistoryRepository

	// Audit records operator actions; optional.
	Audit audit.Repository

	// Hub is created by the caller so it can be subscribed to the headset
	// service before the server starts. If nil the server creates its own.
	Hub *Hub

	// Optional backends reported by /metrics.
	MQTT     ConnectionReporter
	InfluxDB ConnectionReporter
	DB       *sql.DB

	// Agent is the supervised link agent, when one runs.
	Agent AgentReporter

	Version string
}

// Server is the HTTP API server for the hands-free service.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	headsets  Headsets
	auth      *auth.Authenticator
	history   headset.HistoryRepository
	audit     audit.Repository
	mqtt      ConnectionReporter
	influx    ConnectionReporter
	db        *sql.DB
	agent     AgentReporter
	version   string
	startTime time.Time
	tickets   *ticketStore
	server    *http.Server
	hub       *Hub
	ownsHub   bool
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, headset service)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Headsets == nil {
		return nil, fmt.Errorf("headset service is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		headsets:  deps.Headsets,
		auth:      deps.Auth,
		history:   deps.History,
		audit:     deps.Audit,
		mqtt:      deps.MQTT,
		influx:    deps.InfluxDB,
		db:        deps.DB,
		agent:     deps.Agent,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
		hub:       deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
		s.ownsHub = true
	}
	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
//
// Parameters:
//   - ctx: Parent context for background goroutines (hub, ticket cleanup)
//
// Returns:
//   - error: Reserved for listener setup failures
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.ownsHub {
		go s.hub.Run(srvCtx)
	}
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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
