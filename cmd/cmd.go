package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/cloud"
	"github.com/anicoll/ics2000-integration/internal/pkg/config"
	"github.com/anicoll/ics2000-integration/internal/pkg/contxt"
	"github.com/anicoll/ics2000-integration/internal/pkg/database"
	"github.com/anicoll/ics2000-integration/internal/pkg/database/migration"
	"github.com/anicoll/ics2000-integration/internal/pkg/eventlog"
	"github.com/anicoll/ics2000-integration/internal/pkg/hub"
	"github.com/anicoll/ics2000-integration/internal/pkg/influx"
	"github.com/anicoll/ics2000-integration/internal/pkg/mqtt"
	"github.com/anicoll/ics2000-integration/internal/pkg/publisher"
	"github.com/anicoll/ics2000-integration/internal/pkg/server"
	"github.com/anicoll/ics2000-integration/internal/pkg/state"
	"github.com/anicoll/ics2000-integration/internal/pkg/transport"
	"github.com/anicoll/ics2000-integration/pkg/sockets"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	jobTimeout       = 30 * time.Second
	shutdownTimeout  = 10 * time.Second
	feedPingInterval = 30 * time.Second
)

var errCron = errors.New("cron error")

// HubCommand is the default action: it runs the gateway integration until interrupted.
func HubCommand(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(c, cfg)

	if cfg.OverridesFile != "" {
		o, err := config.LoadOverrides(cfg.OverridesFile)
		if err != nil {
			return err
		}
		cfg.Apply(o)
		// flags still win over the file
		applyFlags(c, cfg)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return run(c.Context, cfg)
}

// applyFlags lets explicit command line flags win over the environment.
func applyFlags(c *cli.Context, cfg *config.Config) {
	stringFlags := map[string]*string{
		"log-level":         &cfg.LogLevel,
		"overrides-file":    &cfg.OverridesFile,
		"event-log":         &cfg.EventLogPath,
		"email":             &cfg.CloudCfg.Email,
		"password":          &cfg.CloudCfg.Password,
		"mac":               &cfg.GatewayCfg.MAC,
		"ip":                &cfg.GatewayCfg.IP,
		"id-mapping":        &cfg.GatewayCfg.Mapper,
		"state-backend":     &cfg.StateCfg.Backend,
		"state-path":        &cfg.StateCfg.Path,
		"database-url":      &cfg.DatabaseCfg.URL,
		"migrations-folder": &cfg.DatabaseCfg.MigrationsFolder,
		"sqlite-path":       &cfg.DatabaseCfg.SQLitePath,
		"mqtt-host":         &cfg.MqttCfg.Host,
		"mqtt-user":         &cfg.MqttCfg.Username,
		"mqtt-pass":         &cfg.MqttCfg.Password,
		"influx-url":        &cfg.InfluxCfg.URL,
		"influx-token":      &cfg.InfluxCfg.Token,
		"http-addr":         &cfg.HTTPCfg.Addr,
	}
	for name, dst := range stringFlags {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	if c.IsSet("poll-interval") {
		cfg.GatewayCfg.PollInterval = c.Duration("poll-interval")
	}
	if c.IsSet("discover") {
		cfg.GatewayCfg.DiscoverLocal = c.Bool("discover")
	}
}

func newLogger(level string) (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()

	var err error
	logCfg.Level, err = zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

// services holds everything serve drives. events and commands are nil when not configured.
type services struct {
	hub      HubService
	events   EventStore
	commands CommandSource
	feed     *sockets.Broadcaster
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	store, events, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	tracker := state.New(store,
		state.WithPersistEvery(cfg.StateCfg.PersistEvery),
		state.WithLogger(logger.Named("state")),
	)

	cloudClient := cloud.New(cloud.Config{
		Email:              cfg.CloudCfg.Email,
		Password:           cfg.CloudCfg.Password,
		MAC:                cfg.GatewayCfg.MAC,
		AuthURL:            cfg.CloudCfg.AuthURL,
		SyncURL:            cfg.CloudCfg.SyncURL,
		Timeout:            cfg.CloudCfg.Timeout,
		InsecureSkipVerify: cfg.CloudCfg.InsecureSkipVerify,
	}, cloud.WithLogger(logger.Named("cloud")))

	udp, err := transport.New(transport.Config{
		MAC:              cfg.GatewayCfg.MAC,
		IP:               cfg.GatewayCfg.IP,
		ControlPort:      cfg.GatewayCfg.ControlPort,
		DiscoveryPort:    cfg.GatewayCfg.DiscoveryPort,
		Tries:            cfg.GatewayCfg.Tries,
		Sleep:            cfg.GatewayCfg.Sleep,
		DiscoveryTimeout: cfg.GatewayCfg.DiscoveryTimeout,
		Mapper:           cfg.GatewayCfg.Mapper,
	}, transport.WithLogger(logger.Named("transport")))
	if err != nil {
		return err
	}

	pub := publisher.New(publisher.WithLogger(logger.Named("publisher")))
	h := hub.New(hub.Config{
		MAC:            cfg.GatewayCfg.MAC,
		DiscoverLocal:  cfg.GatewayCfg.DiscoverLocal,
		ResyncDelay:    cfg.GatewayCfg.ResyncDelay,
		IdentifyDelay:  cfg.GatewayCfg.IdentifyDelay,
		CloudOnlyAbove: cfg.GatewayCfg.CloudOnlyAbove,
		Blacklist:      cfg.Overrides.Blacklist,
		Overrides:      cfg.Overrides.HubOverrides(),
	}, cloudClient, udp, tracker, hub.WithLogger(logger.Named("hub")), hub.WithObserver(pub))

	feed := sockets.NewBroadcaster(
		sockets.WithPing(feedPingInterval, []byte(`{"type":"ping"}`)),
		sockets.OnError(func(err error) {
			logger.Debug("websocket client dropped", zap.Error(err))
		}),
	)
	defer func() {
		_ = feed.Close()
	}()

	svc := services{hub: h, events: events, feed: feed}
	closeSinks, err := registerSinks(ctx, cfg, pub, &svc, logger)
	defer closeSinks()
	if err != nil {
		return err
	}
	logger.Info("publishing device states", zap.Strings("sinks", pub.Names()))

	err = serve(ctx, cfg, svc, logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openStore picks the state backend. Only the database backends keep a command history.
func openStore(ctx context.Context, cfg *config.Config) (state.Store, EventStore, func(), error) {
	switch cfg.StateCfg.Backend {
	case config.StateBackendSQLite:
		db, err := database.OpenSQLite(ctx, database.SQLiteConfig{Path: cfg.DatabaseCfg.SQLitePath})
		if err != nil {
			return nil, nil, nil, err
		}
		return db, db, func() { _ = db.Close() }, nil
	case config.StateBackendPostgres:
		version, err := migration.Migrate(cfg.DatabaseCfg.URL, cfg.DatabaseCfg.MigrationsFolder)
		if err != nil {
			return nil, nil, nil, err
		}
		zap.L().Info("database schema up to date", zap.Uint("version", version))
		pool, err := pgxpool.New(ctx, cfg.DatabaseCfg.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		db := database.NewDatabase(pool)
		return db, db, func() { _ = db.Close() }, nil
	default:
		return state.NewFileStore(cfg.StateCfg.Path), nil, func() {}, nil
	}
}

// registerSinks attaches every configured output to the publisher. The returned func
// closes whatever was opened, even when an error is returned.
func registerSinks(ctx context.Context, cfg *config.Config, pub *publisher.Publisher, svc *services, logger *zap.Logger) (func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if err := pub.Register("websocket", server.NewFeed(svc.feed)); err != nil {
		return closeAll, err
	}
	if svc.events != nil {
		if err := pub.Register("history", historySink{store: svc.events}); err != nil {
			return closeAll, err
		}
	}

	if cfg.EventLogPath != "" {
		journal, err := eventlog.Open(cfg.EventLogPath)
		if err != nil {
			return closeAll, err
		}
		closers = append(closers, func() { _ = journal.Close() })
		if err := pub.Register("eventlog", journal); err != nil {
			return closeAll, err
		}
	}

	if cfg.MqttCfg.Host != "" {
		client := mqtt.NewClient(mqtt.ClientConfig{
			Host:     cfg.MqttCfg.Host,
			Username: cfg.MqttCfg.Username,
			Password: cfg.MqttCfg.Password,
			ClientID: cfg.MqttCfg.ClientID,
		})
		mqttSvc := mqtt.New(client, mqtt.Config{
			BaseTopic:       cfg.MqttCfg.BaseTopic,
			DiscoveryPrefix: cfg.MqttCfg.DiscoveryPrefix,
			Hub:             cfg.GatewayCfg.MAC,
		}, mqtt.WithLogger(logger.Named("mqtt")))
		if err := mqttSvc.Connect(); err != nil {
			return closeAll, fmt.Errorf("connecting to mqtt broker: %w", err)
		}
		closers = append(closers, mqttSvc.Disconnect)
		if err := pub.Register("mqtt", mqttSvc); err != nil {
			return closeAll, err
		}
		svc.commands = mqttSvc
	}

	if cfg.InfluxCfg.URL != "" {
		ix, err := influx.Connect(ctx, influx.Config{
			URL:    cfg.InfluxCfg.URL,
			Token:  cfg.InfluxCfg.Token,
			Org:    cfg.InfluxCfg.Org,
			Bucket: cfg.InfluxCfg.Bucket,
		}, cfg.GatewayCfg.MAC, logger.Named("influx"))
		if err != nil {
			return closeAll, err
		}
		closers = append(closers, func() { _ = ix.Close() })
		if err := pub.Register("influx", ix); err != nil {
			return closeAll, err
		}
	}

	return closeAll, nil
}

// serve connects the hub and runs the scheduler, the API and the MQTT command
// subscription until ctx ends or a scheduled job fails hard.
func serve(ctx context.Context, cfg *config.Config, svc services, logger *zap.Logger) error {
	errorChan := make(chan error, 100)

	if err := svc.hub.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := svc.hub.Disconnect(stopCtx); err != nil {
			logger.Error("failed to persist state on shutdown", zap.Error(err))
		}
	}()

	devices, err := svc.hub.DiscoverDevices(ctx)
	if err != nil {
		logger.Warn("initial device sync failed, will retry on the next poll", zap.Error(err))
	} else {
		logger.Info("initial device sync complete", zap.Int("devices", len(devices)))
	}

	eg, ctx := errgroup.WithContext(ctx)

	if svc.commands != nil {
		if err := svc.commands.HandleCommands(ctx, hubController{hub: svc.hub}); err != nil {
			return err
		}
	}

	c, err := newScheduler(ctx, cfg, svc, errorChan, logger)
	if err != nil {
		return err
	}
	eg.Go(func() error {
		c.Start()
		<-ctx.Done()
		<-c.Stop().Done()
		return nil
	})

	opts := []server.Option{server.WithLogger(logger.Named("server")), server.WithFeed(svc.feed)}
	if svc.events != nil {
		opts = append(opts, server.WithHistory(svc.events))
	}
	srv := &http.Server{
		Handler: server.New(svc.hub, server.Config{
			TokenHash: cfg.HTTPCfg.TokenHash,
			JWTSecret: cfg.HTTPCfg.JWTSecret,
			TokenTTL:  cfg.HTTPCfg.TokenTTL,
		}, opts...).Handler(),
		Addr:         cfg.HTTPCfg.Addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(stopCtx)
	})

	eg.Go(func() error {
		// handle any async errors from scheduled jobs
		for {
			select {
			case err := <-errorChan:
				if errors.Is(err, errCron) {
					logger.Error("cron error", zap.Error(err))
					return err
				}
				logger.Warn("background job failed", zap.Error(err))
			case <-ctx.Done():
				logger.Info("context done")
				return ctx.Err()
			}
		}
	})

	return eg.Wait()
}

// newScheduler registers the polling, daily re-authentication and history cleanup jobs.
// A failed poll is retried on the next tick. A failed cleanup stops the service.
func newScheduler(ctx context.Context, cfg *config.Config, svc services, errChan chan<- error, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()

	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.GatewayCfg.PollInterval), func() {
		jobCtx, cancel := contxt.NewContext(ctx, jobTimeout)
		defer cancel()
		if err := svc.hub.Refresh(jobCtx); err != nil {
			logger.Warn("scheduled refresh failed", zap.Error(err))
		}
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc(cfg.GatewayCfg.ReauthSchedule, func() {
		jobCtx, cancel := contxt.NewContext(ctx, jobTimeout)
		defer cancel()
		if err := svc.hub.Reload(jobCtx); err != nil {
			errChan <- fmt.Errorf("daily re-authentication: %w", err)
			return
		}
		logger.Info("daily re-authentication complete")
	}); err != nil {
		return nil, err
	}

	if svc.events != nil {
		if _, err := c.AddFunc(cfg.DatabaseCfg.CleanupSchedule, func() {
			jobCtx, cancel := contxt.NewContext(ctx, jobTimeout)
			defer cancel()
			if err := svc.events.Cleanup(jobCtx); err != nil {
				logger.Error("error cleaning up command history", zap.Error(err))
				errChan <- errCron
				return
			}
			logger.Info("cleaned up command history")
		}); err != nil {
			return nil, err
		}
	}

	return c, nil
}
