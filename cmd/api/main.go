package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"officeclock/internal/admin"
	"officeclock/internal/attendance"
	"officeclock/internal/config"
	"officeclock/internal/directory"
	"officeclock/internal/facematch"
	"officeclock/internal/feedback"
	"officeclock/internal/httpapi"
	"officeclock/internal/httpmiddleware"
	"officeclock/internal/logrelay"
	"officeclock/internal/metrics"
	"officeclock/internal/netident"
	"officeclock/internal/outbox"
	"officeclock/internal/queue"
	"officeclock/internal/records"
	"officeclock/internal/relayapi"
	"officeclock/internal/snapshot"
	"officeclock/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *store.Redis
	if cfg.RecordBackend == "redis" || cfg.QueueBackend == "redis" {
		rc, err := store.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		redisClient = rc
		defer redisClient.Close()
	}

	var db *store.DB
	if cfg.OutboxBackend == "postgres" {
		d, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		db = d
		defer db.Close()
	}

	var recordStore records.Store = records.NewMemory()
	if cfg.RecordBackend == "redis" {
		recordStore = records.NewRedis(redisClient.Client, "officeclock")
	}

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(redisClient.Client, "")
	} else {
		q = queue.NewInMemory(64)
	}

	var outboxStore outbox.Store = outbox.NewMemory()
	if db != nil {
		pg := outbox.NewPostgres(db.Client)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		outboxStore = pg
	}

	// Transports are chosen once, by probing the relay endpoints.
	writer := logrelay.SelectWriter(ctx, logrelay.NewRelay(cfg.LogRelayURL), logrelay.NewDirect(cfg.AttendanceAPIURL, true))
	remoteLog := logrelay.NewClient(writer, cfg.AttendanceAPIURL)

	gemini, err := facematch.NewGemini(ctx, cfg.ModelAPIKey, cfg.ModelID)
	if err != nil {
		return err
	}
	transport := facematch.Select(ctx, facematch.NewRelay(cfg.VerifyRelayURL), gemini)

	var dispatcher attendance.Dispatcher
	if cfg.RemoteLogEnabled() {
		dispatcher = outbox.NewDispatcher(outboxStore, q)
	} else {
		log.Println("remote log not configured (ATTENDANCE_API_URL / LOG_RELAY_URL not set), attendance stays local")
	}
	att := attendance.NewService(recordStore, facematch.NewService(transport), dispatcher)

	// Cloudinary archive (nil when not configured)
	if cfg.CloudinaryEnabled() {
		att.WithArchiver(snapshot.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder))
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	dir, err := directory.Load(cfg.DirectoryFile)
	if err != nil {
		return err
	}

	if cfg.OutboxInProcess {
		wake, err := q.Consume(ctx)
		if err != nil {
			return err
		}
		deliverer := outbox.NewDeliverer(outboxStore, writer, cfg.OutboxMaxAttempts)
		go deliverer.Run(ctx, wake, cfg.OutboxInterval)
		log.Println("outbox deliverer running in-process")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return err
	}
	r.Use(httpmiddleware.CORS(cfg.CORSOrigins))
	r.Use(httpmiddleware.BodyLimit(int64(cfg.MaxBodyBytes)))
	r.Use(httpmiddleware.SecurityHeaders(gin.Mode() == gin.ReleaseMode))
	r.Use(httpmiddleware.NewTokenBucket("global", cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		resp := gin.H{"status": "ok"}
		status := http.StatusOK
		if redisClient != nil {
			healthy := redisClient.Healthy(c.Request.Context())
			resp["redis"] = healthy
			if !healthy {
				status = http.StatusServiceUnavailable
			}
		}
		if db != nil {
			healthy := db.Client.PingContext(c.Request.Context()) == nil
			resp["db"] = healthy
			if !healthy {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, resp)
	})

	relayapi.New(cfg.AttendanceAPIURL, gemini).Register(r)

	httpapi.New(httpapi.Options{
		Records:         recordStore,
		Attendance:      att,
		Feedback:        feedback.NewService(remoteLog, dir),
		Admin:           admin.NewService(remoteLog, recordStore),
		Gate:            admin.NewGate(cfg.AdminPassword, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AdminSessionTTL),
		Directory:       dir,
		NetworkResolver: cfg.NetworkResolver,
		IPify:           netident.NewIPify(cfg.IPifyURL),
		Location:        cfg.Location(),
		PublicBaseURL:   cfg.PublicBaseURL,
		JWTSigningKey:   cfg.JWTSigningKey,
		JWTIssuer:       cfg.JWTIssuer,
		FeedbackLimit:   httpmiddleware.NewTokenBucket("feedback", cfg.FeedbackRateLimitPerMin, cfg.FeedbackRateLimitPerMin).GinMiddleware(),
	}).Register(r)

	if _, err := os.Stat(filepath.Join(cfg.WebDir, "index.html")); err == nil {
		r.StaticFile("/", filepath.Join(cfg.WebDir, "index.html"))
		r.Static("/static", filepath.Join(cfg.WebDir, "static"))
	}

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancel()

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}
