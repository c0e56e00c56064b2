// Hands-free gateway
//
// This is the main entry point for the hands-free service: the gatekeeper
// that decides which headset connection and audio requests reach the
// Bluetooth link layer, and the authoritative record of every headset's
// connection and audio state.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/handsfree-core/migrations"

	"github.com/nerrad567/handsfree-core/internal/api"
	"github.com/nerrad567/handsfree-core/internal/audit"
	"github.com/nerrad567/handsfree-core/internal/auth"
	"github.com/nerrad567/handsfree-core/internal/bluez"
	"github.com/nerrad567/handsfree-core/internal/headset"
	"github.com/nerrad567/handsfree-core/internal/infrastructure/config"
	"github.com/nerrad567/handsfree-core/internal/infrastructure/database"
	"github.com/nerrad567/handsfree-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/handsfree-core/internal/infrastructure/logging"
	"github.com/nerrad567/handsfree-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/handsfree-core/internal/linkbridge"
	"github.com/nerrad567/handsfree-core/internal/process"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// pruneInterval is how often expired history and audit rows are deleted.
const pruneInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run starts every component, waits for ctx to end and tears them down in
// reverse order through the defer chain.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting hands-free service",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	authenticator, err := auth.NewAuthenticator(operators(cfg.Security.Operators))
	if err != nil {
		return fmt.Errorf("loading operators: %w", err)
	}
	if authenticator.Count() == 0 {
		log.Warn("no API operators configured, logins will fail")
	}

	// Database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	priorities := headset.NewSQLitePriorityStore(db.DB)
	history := headset.NewSQLiteHistoryRepository(db.DB)
	auditLog := audit.NewSQLiteRepository(db.DB)

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Headset service
	qos := mqttClient.QoS()
	svc := headset.NewService(priorities, linkbridge.NewMQTTLink(mqttClient, qos), headset.Options{
		QueueSize:    cfg.Headset.QueueSize,
		OutboxSize:   cfg.Headset.OutboxSize,
		NotifyBuffer: cfg.Headset.NotifyBuffer,
		LinkTimeout:  cfg.GetLinkTimeout(),
	})
	svc.SetLogger(log)

	hub := api.NewHub(cfg.WebSocket, log)
	subscribeListeners(svc, listenerDeps{
		history: history,
		mqtt:    mqttClient,
		qos:     qos,
		influx:  influxClient,
		hub:     hub,
		logger:  log,
	})

	if startErr := svc.Start(ctx); startErr != nil {
		return fmt.Errorf("starting headset service: %w", startErr)
	}
	defer func() {
		log.Info("stopping headset service")
		svc.Stop()
	}()

	// Link confirmations over MQTT
	confirms, err := linkbridge.NewConfirmHandler(svc, log)
	if err != nil {
		return fmt.Errorf("creating confirmation handler: %w", err)
	}
	if subErr := confirms.Subscribe(mqttClient, qos); subErr != nil {
		return fmt.Errorf("subscribing to link confirmations: %w", subErr)
	}
	defer func() {
		if unsubErr := confirms.Unsubscribe(mqttClient); unsubErr != nil {
			log.Warn("error unsubscribing link confirmations", "error", unsubErr)
		}
	}()
	log.Info("listening for link confirmations", "topic", mqtt.Topics{}.AllLinkConfirmations())

	// Background workers stop before the service does.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	go hub.Run(workerCtx)

	if cfg.Headset.BlueZ.Enabled {
		watcher := bluez.NewWatcher(cfg.Headset.BlueZ.Adapter, svc)
		watcher.SetLogger(log)
		go func() {
			if runErr := watcher.Run(workerCtx); runErr != nil && !errors.Is(runErr, context.Canceled) {
				log.Error("BlueZ watcher stopped", "error", runErr)
			}
		}()
		log.Info("BlueZ watcher started", "adapter", cfg.Headset.BlueZ.Adapter)
	} else {
		log.Info("BlueZ watcher disabled")
	}

	var agent *process.Supervisor
	if cfg.Headset.Agent.Enabled {
		agent, err = startAgent(workerCtx, cfg.Headset.Agent, svc, log)
		if err != nil {
			return fmt.Errorf("starting link agent: %w", err)
		}
		defer agent.Stop()
	}

	if retention := cfg.GetHistoryRetention(); retention > 0 {
		go pruneLoop(workerCtx, retention, log, map[string]pruner{
			"transition history": history,
			"audit log":          auditLog,
		})
	}

	// API
	apiDeps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Headsets: svc,
		Auth:     authenticator,
		History:  history,
		Audit:    auditLog,
		Hub:      hub,
		MQTT:     mqttClient,
		DB:       db.DB,
		Version:  version,
	}
	if influxClient != nil {
		apiDeps.InfluxDB = influxClient
	}
	if agent != nil {
		apiDeps.Agent = agent
	}
	apiServer, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(workerCtx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, link agent, workers, confirmation
	// subscription, headset service, InfluxDB, MQTT, database.
	return nil
}

// listenerDeps are the sinks attached to the headset service.
type listenerDeps struct {
	history headset.HistoryRepository
	mqtt    *mqtt.Client
	qos     byte
	influx  *influxdb.Client
	hub     *api.Hub
	logger  *logging.Logger
}

// subscribeListeners attaches every transition sink. Listeners survive
// service restarts, so this runs once before Start.
func subscribeListeners(svc *headset.Service, d listenerDeps) {
	svc.Subscribe("history", headset.HistoryListener(d.history, d.logger))
	svc.Subscribe("mqtt-state", linkbridge.StateListener(d.mqtt, svc, d.qos, d.logger))
	svc.Subscribe("mqtt-events", linkbridge.EventListener(d.mqtt, d.qos, d.logger))
	if d.influx != nil {
		svc.Subscribe("influxdb", linkbridge.MetricsListener(d.influx))
	}
	svc.Subscribe("websocket", api.TransitionListener(d.hub))
}

// startAgent supervises the link-layer agent. When the agent dies every
// headset link it was carrying is released, since no confirmation for
// those links can arrive any more.
func startAgent(ctx context.Context, cfg config.AgentConfig, svc *headset.Service, log *logging.Logger) (*process.Supervisor, error) {
	agent, err := process.New(process.Config{
		Name:            "link-agent",
		Binary:          cfg.Binary,
		Args:            cfg.Args,
		Env:             cfg.Env,
		RestartDelay:    time.Duration(cfg.RestartDelay) * time.Second,
		MaxRestartDelay: time.Duration(cfg.MaxRestartDelay) * time.Second,
		MaxRestarts:     cfg.MaxRestarts,
		StopTimeout:     time.Duration(cfg.StopTimeout) * time.Second,
		OnExit: func(error) {
			n, err := linkbridge.ReleaseAll(ctx, svc, svc)
			if err != nil {
				log.Warn("releasing links after agent exit", "error", err)
			}
			if n > 0 {
				log.Warn("released headset links after agent exit", "count", n)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	agent.SetLogger(log)
	if err := agent.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("link agent supervised", "binary", cfg.Binary)
	return agent, nil
}

// pruner deletes rows older than a retention window.
type pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneLoop prunes every table once at start and then every pruneInterval.
func pruneLoop(ctx context.Context, retention time.Duration, log *logging.Logger, tables map[string]pruner) {
	prune := func() {
		for name, p := range tables {
			n, err := p.Prune(ctx, retention)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("pruning failed", "table", name, "error", err)
				}
				continue
			}
			if n > 0 {
				log.Info("pruned expired rows", "table", name, "deleted", n)
			}
		}
	}

	prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// operators converts configured logins to auth operators.
func operators(cfgs []config.OperatorConfig) []auth.Operator {
	ops := make([]auth.Operator, 0, len(cfgs))
	for _, c := range cfgs {
		ops = append(ops, auth.Operator{
			Username:     c.Username,
			PasswordHash: c.PasswordHash,
			Role:         auth.Role(c.Role),
		})
	}
	return ops
}

// getConfigPath returns HANDSFREE_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("HANDSFREE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthChecker is implemented by every infrastructure client.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db, mqttClient healthChecker, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
