package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/registrar/pkg/jobs"
	"github.com/iota-uz/registrar/pkg/metrics"
	"github.com/iota-uz/registrar/pkg/server"
)

type workerOptions struct {
	noHTTP bool
}

func newWorkerCmd() *cobra.Command {
	var opts workerOptions
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the job runner, scheduler, cleaner and operator API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.noHTTP, "no-http", false, "do not serve the operator API")
	return cmd
}

func runWorker(ctx context.Context, opts workerOptions) error {
	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	conf := rt.conf.Jobs
	log := rt.logger.WithField("component", "worker")
	g, gctx := errgroup.WithContext(rt.ctx(ctx))

	if conf.RunnerEnabled {
		queues, err := jobs.ParseQueueList(conf.RunnerQueues)
		if err != nil {
			return err
		}
		runner, err := jobs.NewRunner(rt.pool, rt.app.Jobs(), jobs.RunnerOptions{
			Queues:          queues,
			PollInterval:    conf.RunnerPollInterval,
			BatchSize:       conf.RunnerBatchSize,
			LockTTL:         conf.RunnerLockTTL,
			SingleActive:    conf.RunnerSingleActive,
			MaxBackoff:      conf.RunnerMaxBackoff,
			LastErrorMaxLen: conf.LastErrorMaxBytes,
			DispatchTimeout: conf.RunnerDispatchTimeout,
			Logger:          rt.logger.WithField("component", "jobs.runner"),
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return runner.Run(gctx) })
	}

	if conf.SchedulerEnabled {
		scheduler, err := jobs.NewScheduler(rt.app.Jobs(), rt.app.Enqueuer(), jobs.SchedulerOptions{
			Location: rt.conf.Registry.Location(),
			Logger:   rt.logger.WithField("component", "jobs.scheduler"),
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return scheduler.Run(gctx) })
	}

	if conf.CleanerEnabled {
		cleaner, err := jobs.NewCleaner(rt.pool, jobs.CleanerOptions{
			Enabled:   true,
			Interval:  conf.CleanerInterval,
			Retention: conf.CleanerRetention,
			Logger:    rt.logger.WithField("component", "jobs.cleaner"),
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return cleaner.Run(gctx) })
	}

	if !opts.noHTTP {
		rt.app.RegisterControllers(metrics.NewHealthController(rt.pool))
		if rt.conf.Prometheus.Enabled {
			rt.app.RegisterControllers(metrics.NewPrometheusController(rt.conf.Prometheus.Path))
		}
		srv, err := server.Default(&server.DefaultOptions{
			Logger:        rt.logger,
			Configuration: rt.conf,
			Application:   rt.app,
			Pool:          rt.pool,
		})
		if err != nil {
			return err
		}
		log.WithField("address", rt.conf.SocketAddress).Info("operator API listening")
		g.Go(func() error { return srv.Start(gctx, rt.conf.SocketAddress) })
	}

	log.Info("worker started")
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("worker stopped")
	return err
}
