// hamrelay - DTMF command relay for an MQTT bus
//
// hamrelay listens for DTMF codes decoded from a radio channel, publishes
// the MQTT action each code maps to, and speaks back a confirmation or
// the value a queried device reports.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/hamrelay/migrations"

	"github.com/nerrad567/hamrelay/internal/api"
	"github.com/nerrad567/hamrelay/internal/command"
	"github.com/nerrad567/hamrelay/internal/history"
	"github.com/nerrad567/hamrelay/internal/infrastructure/config"
	"github.com/nerrad567/hamrelay/internal/infrastructure/database"
	"github.com/nerrad567/hamrelay/internal/infrastructure/influxdb"
	"github.com/nerrad567/hamrelay/internal/infrastructure/logging"
	"github.com/nerrad567/hamrelay/internal/infrastructure/mqtt"
	"github.com/nerrad567/hamrelay/internal/relay"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// envFile holds secrets such as broker credentials. It is optional.
const envFile = ".env"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting hamrelay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // nothing useful to do with a log close error
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
	)

	// Command table
	registry, dups, err := loadCommands(cfg.Relay.CommandsFile)
	if err != nil {
		return err
	}
	log.Info(fmt.Sprintf("%d sequences, %d duplicates", dups.Sequences, dups.Total()),
		"path", cfg.Relay.CommandsFile,
		"commands", registry.Len(),
	)
	if dups.Total() > 0 {
		log.Warn("duplicate codes in command table, first row wins", "codes", dups.Codes())
	}

	mode, err := relay.ParseMode(cfg.Relay.Mode)
	if err != nil {
		return fmt.Errorf("relay mode: %w", err)
	}

	// Relay history (optional)
	var db *database.DB
	var historyRepo *history.SQLiteRepository
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
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

		historyRepo = history.NewSQLiteRepository(db.DB)
		historyRepo.SetLogger(log)

		if cfg.Database.RetentionDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -cfg.Database.RetentionDays)
			n, pruneErr := historyRepo.Prune(ctx, cutoff)
			if pruneErr != nil {
				log.Warn("pruning relay history failed", "error", pruneErr)
			} else {
				log.Info("relay history pruned", "removed", n, "retention_days", cfg.Database.RetentionDays)
			}
		}
	} else {
		log.Info("relay history disabled")
	}

	// InfluxDB readings (optional)
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

	// MQTT
	topics := relay.NewTopics(cfg.Relay.BaseTopic)
	qos := byte(cfg.Relay.QoS) //nolint:gosec // validated to 0..2 by config.Validate

	will := &mqtt.Will{
		Topic:    topics.LWT(),
		Payload:  relay.PresenceOffline,
		QoS:      qos,
		Retained: true,
	}
	mqttClient, err := mqtt.ConnectWithRetry(ctx, cfg.MQTT, will, func(attempt int, connErr error, wait time.Duration) {
		log.Warn("MQTT connect failed, retrying", "attempt", attempt, "retry_in", wait, "error", connErr)
	})
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := relay.NewMetrics(promRegistry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	// Event sinks
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	sinks := []relay.EventSink{hub}
	if historyRepo != nil {
		sinks = append(sinks, historyRepo)
	}
	if influxClient != nil {
		sinks = append(sinks, &readingSink{writer: influxClient})
	}

	// Relay engine
	engine, err := relay.NewEngine(relay.Options{
		Registry:      registry,
		Bus:           &mqttBusAdapter{client: mqttClient},
		Topics:        topics,
		Mode:          mode,
		QueryTimeout:  cfg.GetQueryTimeout(),
		SweepInterval: cfg.GetSweepInterval(),
		MonitorTopics: topics.Monitors(cfg.Relay.MonitorSubtopics),
		QoS:           qos,
		Logger:        log,
		Metrics:       metrics,
		Sinks:         sinks,
	})
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}

	mqttClient.SetOnConnect(engine.OnConnect)
	mqttClient.SetOnDisconnect(engine.OnDisconnect)

	if startErr := engine.Start(); startErr != nil {
		return fmt.Errorf("starting relay: %w", startErr)
	}
	// Runs before the MQTT client closes so Stopped and Offline reach the broker.
	defer engine.Shutdown()

	go func() {
		if runErr := engine.Run(ctx); runErr != nil {
			log.Error("relay sweep stopped", "error", runErr)
		}
	}()

	// HTTP API (optional)
	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{}
		if db != nil {
			checks["database"] = db
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}

		var historyDep history.Repository
		if historyRepo != nil {
			historyDep = historyRepo
		}

		server, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Logger:     log,
			Relay:      engine,
			Commands:   registry,
			Duplicates: dups,
			History:    historyDep,
			Gatherer:   promRegistry,
			Checks:     checks,
			Hub:        hub,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("relay ready",
		"receive", topics.Receive(),
		"reply", topics.Reply(),
		"mode", mode,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server (if enabled)
	// 2. Relay shutdown (Stopped, Offline)
	// 3. MQTT
	// 4. InfluxDB (if enabled)
	// 5. Database (if enabled)

	return nil
}

// getConfigPath returns the configuration file path.
// Uses HAMRELAY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HAMRELAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// loadCommands reads and indexes the command table.
func loadCommands(path string) (*command.Registry, command.DuplicateReport, error) {
	entries, err := command.LoadFile(path)
	if err != nil {
		return nil, command.DuplicateReport{}, fmt.Errorf("loading command table: %w", err)
	}
	registry, dups := command.NewRegistry(entries)
	return registry, dups, nil
}

// healthCheck verifies all infrastructure connections are healthy.
// db and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
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

// mqttBusAdapter adapts the infrastructure MQTT client to relay.Bus.
// The difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - relay expects: func(topic, payload []byte)
type mqttBusAdapter struct {
	client *mqtt.Client
}

// Publish implements relay.Bus.
func (a *mqttBusAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements relay.Bus.
func (a *mqttBusAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements relay.Bus.
func (a *mqttBusAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

// IsConnected implements relay.Bus.
func (a *mqttBusAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// readingWriter is the part of the InfluxDB client readingSink uses.
type readingWriter interface {
	WriteReading(r influxdb.Reading)
	WriteDispatch(code, class string, at time.Time)
}

// readingSink turns relay events into InfluxDB points: one dispatch point
// per action or query, and one reading per numeric query reply.
type readingSink struct {
	writer readingWriter
}

// Record implements relay.EventSink.
func (s *readingSink) Record(ev relay.Event) {
	switch ev.Kind {
	case relay.EventAction:
		s.writer.WriteDispatch(ev.Code, string(command.ClassAction), ev.Time)
	case relay.EventQuery:
		s.writer.WriteDispatch(ev.Code, string(command.ClassQuery), ev.Time)
	case relay.EventReply:
		if !ev.Found {
			return
		}
		value, err := strconv.ParseFloat(ev.Value, 64)
		if err != nil {
			return // ON/OFF and other text replies are not readings
		}
		s.writer.WriteReading(influxdb.Reading{
			Code:    ev.Code,
			Topic:   ev.Topic,
			KeyPath: ev.KeyPath,
			Value:   value,
			Time:    ev.Time,
		})
	}
}
