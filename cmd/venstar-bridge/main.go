// Venstar Bridge
//
// Bridges Venstar ColorTouch thermostats on the local network to an MQTT
// broker. Thermostats are found over SSDP (or a static host list), polled
// on a short and a long cycle, and their state is published as node
// attributes. Commands arrive on venstar/command/<address>.
//
// Usage:
//
//	venstar-bridge                         run the bridge
//	venstar-bridge token -role operator    mint an API token
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/venstar-bridge/migrations"

	"github.com/nerrad567/venstar-bridge/internal/api"
	"github.com/nerrad567/venstar-bridge/internal/auth"
	"github.com/nerrad567/venstar-bridge/internal/bridges/controller"
	"github.com/nerrad567/venstar-bridge/internal/discovery"
	"github.com/nerrad567/venstar-bridge/internal/events"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/config"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/database"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/metrics"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/venstar-bridge/internal/poller"
	"github.com/nerrad567/venstar-bridge/internal/reflector"
	"github.com/nerrad567/venstar-bridge/internal/thermostat"
	"github.com/nerrad567/venstar-bridge/internal/validator"
	"github.com/nerrad567/venstar-bridge/internal/venstar"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the bridge and blocks until ctx is cancelled.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear wiring of every component
	log := logging.Default()
	log.Info("starting Venstar bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)
	if cfg.Venstar.PIN != "" {
		log.Warn("venstar.pin is set but PIN-protected writes are not supported; the PIN is ignored")
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	registry := thermostat.NewRegistry(thermostat.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)
	if loadErr := registry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading thermostat registry: %w", loadErr)
	}
	log.Info("thermostat registry loaded", "thermostats", registry.Count())

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
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	m := metrics.New()
	qos := byte(cfg.MQTT.QoS) //nolint:gosec // validated to 0..2

	hub := api.NewHub(log)
	mqttPub := controller.NewPublisher(mqttClient, qos)
	mqttPub.SetLogger(log)

	store := events.NewSQLiteStore(db.DB)
	store.SetLogger(log)
	reporter := events.Multi{
		events.LogReporter{Logger: log},
		events.CountingReporter{Counter: m},
		store,
		mqttPub,
		hub,
	}

	publishers := []reflector.Publisher{mqttPub, hub}
	var runtimes controller.RuntimeWriter
	if influxClient != nil {
		publishers = append(publishers, controller.NewTelemetryPublisher(influxClient))
		runtimes = influxClient
	}
	refl := reflector.New(
		reflector.WithPublishers(publishers...),
		reflector.WithSensorResolver(registry),
		reflector.WithOfflineAfter(cfg.Venstar.OfflineAfterFailures),
		reflector.WithLogger(log),
	)

	val := validator.New(reporter)
	val.SetRecorder(m)
	val.SetLogger(log)

	disc := discovery.New(cfg.Venstar.Hostname, cfg.DiscoveryTimeout(), discovery.WithLogger(log))

	bridge, err := controller.NewBridge(controller.Options{
		MQTT:       mqttClient,
		QoS:        qos,
		Registry:   registry,
		Reflector:  refl,
		Validator:  val,
		Discoverer: disc,
		Publisher:  mqttPub,
		NewDevice: func(host string) controller.Device {
			return venstar.NewClient(host)
		},
		Reporter:       reporter,
		Telemetry:      m,
		Runtimes:       runtimes,
		Levels:         log,
		Logger:         log,
		CommandTimeout: cfg.CommandTimeout(),
		ClientID:       cfg.MQTT.Broker.ClientID,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	scheduler, err := poller.New(cfg.ShortPollInterval(), cfg.LongPollInterval(), bridge,
		poller.WithObserver(m),
		poller.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("creating poll scheduler: %w", err)
	}
	bridge.SetScheduler(scheduler)
	val.SetPoller(scheduler)

	if startErr := bridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	if startErr := scheduler.Start(ctx); startErr != nil {
		return fmt.Errorf("starting poll scheduler: %w", startErr)
	}
	defer func() {
		log.Info("stopping poll scheduler")
		scheduler.Stop()
	}()
	log.Info("poll scheduler started",
		"short_poll", cfg.ShortPollInterval(),
		"long_poll", cfg.LongPollInterval(),
	)

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:         cfg.API,
			WS:             cfg.WebSocket,
			Security:       cfg.Security,
			Logger:         log,
			Thermostats:    registry,
			Attributes:     refl,
			Phases:         val,
			Commander:      bridge,
			Events:         store,
			MQTT:           mqttClient,
			Metrics:        m.Handler(),
			Hub:            hub,
			CommandTimeout: cfg.CommandTimeout(),
			Version:        version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	go func() {
		res, discErr := bridge.Discover(ctx)
		if discErr != nil {
			if !errors.Is(discErr, context.Canceled) {
				log.Warn("startup discovery failed", "error", discErr)
			}
			return
		}
		log.Info("startup discovery complete",
			"found", res.Found,
			"added", len(res.Added),
			"updated", len(res.Updated),
			"failed", len(res.Failed),
		)
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// getConfigPath returns VENSTAR_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("VENSTAR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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

// runToken mints a status API token signed with the configured secret.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	role := fs.String("role", string(auth.RoleViewer), "token role: viewer or operator")
	subject := fs.String("subject", "cli", "token subject")
	ttl := fs.Int("ttl", 0, "lifetime in minutes (default security.jwt.access_token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *ttl == 0 {
		*ttl = cfg.Security.JWT.AccessTokenTTL
	}

	token, err := auth.GenerateToken(*subject, auth.Role(*role), cfg.Security.JWT.Secret, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
