// Moodring sets Philips Hue lights to the colors of the album a Sonos
// player is currently playing.
//
// It follows the player's transport-state events on MQTT, looks up the
// album's cover art on Last.fm, extracts its dominant colors and pushes one
// color per palette slot to the assigned lights.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/moodring/migrations"

	"github.com/nerrad567/moodring/internal/api"
	"github.com/nerrad567/moodring/internal/artwork"
	"github.com/nerrad567/moodring/internal/bridges/hue"
	"github.com/nerrad567/moodring/internal/bridges/sonos"
	"github.com/nerrad567/moodring/internal/colorcache"
	"github.com/nerrad567/moodring/internal/colortag"
	"github.com/nerrad567/moodring/internal/history"
	"github.com/nerrad567/moodring/internal/infrastructure/config"
	"github.com/nerrad567/moodring/internal/infrastructure/database"
	"github.com/nerrad567/moodring/internal/infrastructure/influxdb"
	"github.com/nerrad567/moodring/internal/infrastructure/logging"
	"github.com/nerrad567/moodring/internal/infrastructure/mqtt"
	"github.com/nerrad567/moodring/internal/lighting"
	"github.com/nerrad567/moodring/internal/notify"
	"github.com/nerrad567/moodring/internal/palette"
	"github.com/nerrad567/moodring/internal/reactor"
	"github.com/nerrad567/moodring/internal/resolver"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Moodring",
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

	db, err := database.Open(database.FromConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", db.Path())

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	influxClient, err := connectInflux(cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	defer func() {
		if influxClient != nil {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}
	}()

	// WebSocket hub shared by the API server and the event fanout.
	hub := api.NewHub(cfg.WebSocket, log)
	hub.Retain(notify.ChannelPaletteApplied, api.ChannelBridgeHealth)
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)

	// Lighting bridge
	health := hue.NewHealthReporter(hue.HealthReporterConfig{
		Topic:     mqtt.Topics{}.BridgeHealth("hue"),
		Version:   version,
		Interval:  config.Seconds(cfg.Hue.HealthInterval),
		Publisher: mqttClient,
	})
	health.SetLogger(log)
	if pubErr := health.PublishStarting(); pubErr != nil {
		log.Warn("publishing starting health failed", "error", pubErr)
	}

	table, commander := setupBridge(ctx, cfg, db, health, log)
	health.Start(ctx)
	defer func() {
		log.Info("stopping bridge health reporter")
		health.Stop()
	}()

	historyRepo := history.NewSQLiteRepository(db.DB)
	fanout := notify.New(notify.Options{
		Publisher:   mqttClient,
		Broadcaster: hub,
		History:     historyRepo,
		Metrics:     metricsSink(influxClient),
		Logger:      log,
	})

	driver := lighting.NewDriver(table, commander, log)
	driver.SetOnCommand(fanout.LightCommand)

	res := resolver.New(artwork.New(cfg.Artwork), colortag.New(cfg.ColorTag))
	res.SetLogger(log)

	if cfg.Palette.RetryFailedLookups {
		log.Warn("retry_failed_lookups is enabled: failed cover-art queries will be retried on the next notification")
	}

	// The reactor needs the listener's player handle and the listener
	// delivers to the reactor, so the handler closes over a later assignment.
	var react *reactor.Reactor
	listener := sonos.NewListener(sonos.ListenerConfig{
		PlayerName:     cfg.Player.Name,
		TopologyTopic:  cfg.Player.Topics.Topology,
		TransportTopic: cfg.Player.Topics.TransportState,
	}, mqttClient, sonos.TransportHandlerFunc(func(ctx context.Context, ev sonos.TransportEvent) {
		react.HandleTransportState(ctx, ev)
	}), log)

	react = reactor.New(reactor.Options{
		Player:             listener,
		Cache:              colorcache.New(),
		Resolver:           res,
		Lights:             driver,
		Observer:           fanout,
		Sentinel:           palette.FromStrings(cfg.Palette.ErrorColors),
		NextTrackCaching:   cfg.Palette.NextTrackCaching,
		RetryFailedLookups: cfg.Palette.RetryFailedLookups,
		Logger:             log,
	})

	if startErr := listener.Start(ctx); startErr != nil {
		return fmt.Errorf("starting player listener: %w", startErr)
	}
	defer func() {
		log.Info("stopping player listener")
		listener.Stop()
		react.Wait()
		driver.Wait()
	}()
	log.Info("player listener started",
		"player", cfg.Player.Name,
		"topology_topic", cfg.Player.Topics.Topology,
		"transport_topic", cfg.Player.Topics.TransportState,
	)

	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log,
			Cache:       react.Cache(),
			Lights:      table,
			History:     historyRepo,
			Bridge:      health,
			DB:          db.DB,
			MQTT:        mqttClient,
			ExternalHub: hub,
			Version:     version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	log.Info("Moodring stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MOODRING_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MOODRING_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectInflux connects to InfluxDB when enabled. A nil client with a nil
// error means metrics are disabled.
func connectInflux(cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client, nil
}

// metricsSink keeps a disabled InfluxDB client out of the fanout.
func metricsSink(client *influxdb.Client) notify.Metrics {
	if client == nil {
		return nil
	}
	return client
}

// setupBridge finds and registers with the lighting bridge and builds the
// light table. A setup failure is logged and reported through health; the
// service keeps running with no lights so playback tracking and lookups
// still work.
func setupBridge(ctx context.Context, cfg *config.Config, db *database.DB, health *hue.HealthReporter, log *logging.Logger) (*lighting.Table, lighting.Commander) {
	discoverer, err := hue.NewDiscoverer(cfg.Hue)
	if err != nil {
		log.Error("lighting bridge discovery misconfigured", "error", err)
		health.SetSetupError(err)
		return lighting.NewTable(nil), nil
	}

	setup := hue.NewSetup(hue.SetupOptions{
		Discoverer:     discoverer,
		Credentials:    hue.NewSQLiteCredentialStore(db.DB),
		Application:    cfg.Application,
		Username:       cfg.Hue.Username,
		Assignments:    cfg.Lights,
		RequestTimeout: config.Seconds(cfg.Hue.RequestTimeout),
		Logger:         log,
	})

	result, err := setup.Run(ctx)
	if err != nil {
		if errors.Is(err, hue.ErrLinkButtonNotPressed) {
			log.Error("press the link button on the lighting bridge and restart", "error", err)
		} else {
			log.Error("lighting bridge setup failed", "error", err)
		}
		health.SetSetupError(err)
		return lighting.NewTable(nil), nil
	}

	table := lighting.NewTable(result.Slots)
	health.SetBridge(result.Bridge, table.LightCount())
	log.Info("lighting bridge ready",
		"bridge_id", result.Bridge.ID,
		"address", result.Bridge.Address(),
		"registered", result.Registered,
		"lights", len(result.Lights),
		"assigned", table.LightCount(),
	)
	for _, name := range missingLights(result.Lights, cfg.Lights) {
		log.Warn("configured light not found on bridge", "light", name)
	}

	return table, result.Client
}

// missingLights returns configured light names the bridge does not have.
func missingLights(lights []hue.Light, assignments []config.LightAssignment) []string {
	known := make(map[string]struct{}, len(lights))
	for _, l := range lights {
		known[l.Name] = struct{}{}
	}

	var missing []string
	for _, a := range assignments {
		if _, ok := known[a.Light]; !ok {
			missing = append(missing, a.Light)
		}
	}
	return missing
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
