package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: slidecast <serve|worker>")
		os.Exit(2)
	}

	cfg := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, cfg)
	case "worker":
		err = runWorker(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("🛑 %v", err)
	}
}

// runServe starts the coordinator: queue backend, subscriber hub,
// HTTP surface, and the hourly stale-job sweep.
func runServe(ctx context.Context, cfg Config) error {
	var store JobStore
	var coord *Coordinator
	switch cfg.QueueBackend {
	case "redis":
		rs, err := newRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.MaxJobAge)
		if err != nil {
			log.Printf("⚠️  Redis not available, using in-memory coordinator: %v", err)
			coord = NewCoordinator(cfg.MaxJobAge)
			store = coord
		} else {
			log.Println("⚠️  Redis queue backend selected: unsafe with concurrent workers, dev use only")
			store = rs
		}
	default:
		coord = NewCoordinator(cfg.MaxJobAge)
		store = coord
	}

	trigger := NewComputeTrigger(cfg.ComputeWakeURL, cfg.BearerToken)
	srv := newServer(store, NewHub(), trigger, cfg.BearerToken)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.routes(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("🚀 Coordinator running on %s (backend: %s)", cfg.ListenAddr, cfg.QueueBackend)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if coord != nil {
		g.Go(func() error {
			coord.RunSweeper(gctx, SweepInterval)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Println("🛑 Graceful shutdown initiated...")
		return httpServer.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Println("✅ Graceful shutdown completed")
	return nil
}

// runWorker starts the poll loop inside a compute unit. Returning nil
// on idle timeout lets the host reclaim the unit with a clean exit.
func runWorker(ctx context.Context, cfg Config) error {
	queue := NewQueueClient(cfg.CoordinatorURL, cfg.BearerToken)
	pipeline := NewPipeline(
		newHTTPNarrator(cfg.NarratorURL, cfg.BearerToken),
		newHTTPRenderer(cfg.RendererURL, cfg.BearerToken),
		ffmpegEncoder{},
		newHTTPObjectStore(cfg.StorageURL, cfg.BearerToken),
		cfg.WorkDir,
	)

	worker := NewWorker(queue, pipeline, cfg)
	err := worker.Run(ctx)
	if errors.Is(err, ErrIdleTimeout) {
		return nil
	}
	return err
}
