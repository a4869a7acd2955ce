package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/krawlist/eventengine/internal/adapters/http/api"
	"github.com/krawlist/eventengine/internal/adapters/http/swagger"
	"github.com/krawlist/eventengine/internal/app"
	"github.com/krawlist/eventengine/internal/config"
	"github.com/krawlist/eventengine/internal/scheduler"
	"github.com/krawlist/eventengine/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// Job names.
const (
	jobExpand = "expand"
	jobDedupe = "dedupe"
)

var serveRunOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run batches on a schedule and serve reports over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveRunOnStart, "run-on-start", false, "trigger all jobs once at startup")
	rootCmd.AddCommand(serveCmd)
}

// registerJobs adds the batch jobs c enables to s.
func registerJobs(s *scheduler.Scheduler, engine *app.Engine, c *config.Config) error {
	if err := s.Add(jobExpand, func(ctx context.Context) error {
		rep, err := engine.Expand(ctx)
		if err != nil {
			return err
		}
		if rep.Stats.Failed > 0 {
			return fmt.Errorf("%w: %d failed", errWritesFailed, rep.Stats.Failed)
		}
		return nil
	}); err != nil {
		return err
	}
	if c.Candidates == "" {
		return nil
	}
	return s.Add(jobDedupe, func(ctx context.Context) error {
		_, _, err := dedupeFile(ctx, engine, c.Candidates, c.ReviewOutput, c.PublishMerged)
		return err
	})
}

func serve(ctx context.Context, c *config.Config) error {
	log := logger.Get().Named("serve")

	engine, err := newEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	sched, err := scheduler.New(c.Schedule,
		scheduler.WithLocation(c.Location()),
		scheduler.WithLogger(logger.Get().Named("scheduler")),
	)
	if err != nil {
		return err
	}
	if err := registerJobs(sched, engine, c); err != nil {
		return err
	}
	sched.Start(ctx)
	if serveRunOnStart {
		for _, job := range []string{jobDedupe, jobExpand} {
			if err := sched.Trigger(ctx, job); err != nil && !errors.Is(err, scheduler.ErrUnknownJob) {
				log.Warn(ctx, "startup run not triggered", logger.String("job", job), logger.Error(err))
			}
		}
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(engine, sched, sched).Register(ctx, mux)

	srv := &http.Server{
		Addr:              c.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(ctx, "starting HTTP server", logger.String("addr", c.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
		}
		if err := sched.Stop(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "scheduler shutdown failed", logger.Error(err))
		}
		log.Info(shutdownCtx, "server stopped")
		return nil
	})
	return g.Wait()
}
