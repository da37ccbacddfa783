package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/registrar/modules"
	"github.com/iota-uz/registrar/pkg/application"
	"github.com/iota-uz/registrar/pkg/composables"
	"github.com/iota-uz/registrar/pkg/configuration"
	"github.com/iota-uz/registrar/pkg/eventbus"
	"github.com/iota-uz/registrar/pkg/logging"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "registrar",
		Short:         "Registers event helpers in the membership registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newBlockedCmd())
	return cmd
}

func Execute() {
	err := newRootCmd().Execute()
	configuration.Use().Unload()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// process is the wiring shared by the subcommands that touch the database.
type process struct {
	conf   *configuration.Configuration
	logger *logrus.Logger
	pool   *pgxpool.Pool
	app    application.Application
	close  func()
}

func bootstrap(ctx context.Context) (*process, error) {
	conf := configuration.Use()
	logger := conf.Logger()

	shutdownTracing, err := logging.SetupTracing(ctx, logging.TracingOptions{
		Enabled:     conf.OpenTelemetry.Enabled,
		Endpoint:    conf.OpenTelemetry.TempoURL,
		ServiceName: conf.OpenTelemetry.ServiceName,
	})
	if err != nil {
		logger.WithError(err).Warn("OpenTelemetry tracing disabled")
	} else if conf.OpenTelemetry.Enabled {
		logger.Info("OpenTelemetry tracing enabled, exporting to " + conf.OpenTelemetry.TempoURL)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(connectCtx, conf.Database.Opts)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger.WithField("component", "eventbus")),
		Logger:   logger,
	})
	if err := modules.Load(app, modules.BuiltInModules(conf)...); err != nil {
		pool.Close()
		return nil, fmt.Errorf("load modules: %w", err)
	}

	return &process{
		conf:   conf,
		logger: logger,
		pool:   pool,
		app:    app,
		close: func() {
			pool.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				logger.WithError(err).Warn("tracing shutdown failed")
			}
		},
	}, nil
}

// ctx binds the pool so queue and repository calls outside a job run
// find their connection.
func (rt *process) ctx(parent context.Context) context.Context {
	return composables.WithPool(parent, rt.pool)
}
