package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/smartcontrol/internal/pkg/config"
	"github.com/anicoll/smartcontrol/internal/pkg/database"
	"github.com/anicoll/smartcontrol/internal/pkg/database/migration"
	"github.com/anicoll/smartcontrol/internal/pkg/model"
	"github.com/anicoll/smartcontrol/internal/pkg/mqtt"
	"github.com/anicoll/smartcontrol/internal/pkg/publisher"
	"github.com/anicoll/smartcontrol/internal/pkg/server"
)

const shutdownTimeout = 5 * time.Second

func ServeCommand(ctx *cli.Context) error {
	mqttCfg, err := config.MqttFromEnv()
	if err != nil {
		return err
	}
	cfg := &config.Config{
		ListenAddr:       ctx.String("listen-addr"),
		DatabaseURL:      ctx.String("database-url"),
		MigrationsFolder: ctx.String("migrations-folder"),
		Seed:             ctx.Bool("seed"),
		LogLevel:         ctx.String("log-level"),
		Mqtt:             mqttCfg,
	}

	return run(ctx.Context, cfg)
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.LogLevel, "stdout")
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	if err := migration.Migrate(cfg.DatabaseURL, cfg.MigrationsFolder); err != nil {
		return err
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Seed {
		if err := seed(ctx, db); err != nil {
			return err
		}
	}

	pub := publisher.New()
	if cfg.Mqtt != nil {
		mqttSvc := mqtt.New(mqtt.NewClient(cfg.Mqtt), cfg.Mqtt.DiscoveryPrefix)
		if err := mqttSvc.Connect(); err != nil {
			return err
		}
		defer mqttSvc.Close()
		if err := pub.Register("mqtt", mqttSvc); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}

	return serve(ctx, ln, cfg, db, pub)
}

// serve runs the control service on ln until ctx is done, then shuts the
// HTTP server down gracefully.
func serve(ctx context.Context, ln net.Listener, cfg *config.Config, store ApplianceStore, pub StatePublisher) error {
	logger := zap.L()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler, err := server.Handler(server.New(store, pub), reg)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:      handler,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logger.Info("control service listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("context done, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Mqtt != nil {
		eg.Go(func() error {
			return cronRepublish(ctx, cfg.Mqtt.RepublishSchedule, store, pub)
		})
	}

	return eg.Wait()
}

// cronRepublish re-sends every appliance state on schedule until ctx is done.
func cronRepublish(ctx context.Context, schedule string, store ApplianceStore, pub StatePublisher) error {
	republish := func() {
		appliances, err := store.ListAppliances(ctx)
		if err != nil {
			zap.L().Error("failed to load appliances for republish", zap.Error(err))
			return
		}
		if err := pub.Republish(ctx, appliances); err != nil {
			zap.L().Error("failed to republish appliance states", zap.Error(err))
			return
		}
		zap.L().Debug("republished appliance states", zap.Int("count", len(appliances)))
	}
	republish()

	c := cron.New()
	if _, err := c.AddFunc(schedule, republish); err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func SeedCommand(ctx *cli.Context) error {
	logger, err := newLogger(ctx.String("log-level"), "stdout")
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	if err := migration.Migrate(ctx.String("database-url"), ctx.String("migrations-folder")); err != nil {
		return err
	}
	db, err := database.Connect(ctx.Context, ctx.String("database-url"))
	if err != nil {
		return err
	}
	defer db.Close()

	return seed(ctx.Context, db)
}

// seed creates the fan and light records, switched off, when they are missing.
func seed(ctx context.Context, s Seeder) error {
	created, err := s.Seed(ctx, model.Off)
	if err != nil {
		return err
	}
	for _, a := range created {
		zap.L().Info("seeded appliance", zap.String("id", a.ID), zap.Stringer("name", a.Name))
	}
	if len(created) == 0 {
		zap.L().Info("appliances already present, nothing seeded")
	}
	return nil
}

func MigrateCommand(ctx *cli.Context) error {
	logger, err := newLogger(ctx.String("log-level"), "stdout")
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	if err := migration.Migrate(ctx.String("database-url"), ctx.String("migrations-folder")); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

func newLogger(level, output string) (*zap.Logger, error) {
	var err error
	logCfg := zap.NewProductionConfig()
	logCfg.Level, err = zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{output}
	logCfg.ErrorOutputPaths = []string{output}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}
