package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"officeclock/internal/config"
	"officeclock/internal/logrelay"
	"officeclock/internal/metrics"
	"officeclock/internal/outbox"
	"officeclock/internal/queue"
	"officeclock/internal/store"
)

// Worker drains the shared outbox into the remote log.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.OutboxBackend != "postgres" {
		log.Fatalf("worker needs OUTBOX_BACKEND=postgres, got %q", cfg.OutboxBackend)
	}
	if !cfg.RemoteLogEnabled() {
		log.Fatalf("worker needs ATTENDANCE_API_URL or LOG_RELAY_URL")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	pg := outbox.NewPostgres(db.Client)
	if err := pg.Migrate(ctx); err != nil {
		log.Fatalf("outbox migrate failed: %v", err)
	}

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		redisClient, err := store.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatalf("redis connect failed: %v", err)
		}
		defer redisClient.Close()
		q = queue.NewRedisQueue(redisClient.Client, "")
	} else {
		// Without a shared queue the worker relies on the poll interval alone.
		log.Println("QUEUE_BACKEND is not redis, polling only")
		q = queue.NewInMemory(1)
	}

	wake, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	writer := logrelay.SelectWriter(ctx, logrelay.NewRelay(cfg.LogRelayURL), logrelay.NewDirect(cfg.AttendanceAPIURL, true))
	deliverer := outbox.NewDeliverer(pg, writer, cfg.OutboxMaxAttempts)

	metrics.MustRegister(prometheus.DefaultRegisterer)
	metricsSrv := &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: promhttp.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server: %v", err)
		}
	}()

	log.Printf("worker started, polling every %s", cfg.OutboxInterval)
	deliverer.Run(ctx, wake, cfg.OutboxInterval)

	_ = metricsSrv.Close()
	log.Println("worker stopped")
}
