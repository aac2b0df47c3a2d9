// Command api runs the thin HTTP ingress adapter for the upload control
// plane routes. Authentication, rate limiting, and lockout are an external
// collaborator's responsibility — this binary wires only the seam: a
// chi.Router whose handlers call straight into pkg/upload and
// pkg/store/structured.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clarity-digital-twin/clarity-backend/internal/config"
	"github.com/clarity-digital-twin/clarity-backend/internal/logging"
	"github.com/clarity-digital-twin/clarity-backend/internal/telemetry"
	patmodel "github.com/clarity-digital-twin/clarity-backend/pkg/pat/model"
	patweights "github.com/clarity-digital-twin/clarity-backend/pkg/pat/weights"
	"github.com/clarity-digital-twin/clarity-backend/pkg/pipeline"
	"github.com/clarity-digital-twin/clarity-backend/pkg/queue"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/audit"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/blob"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/structured"
	"github.com/clarity-digital-twin/clarity-backend/pkg/upload"
)

func main() {
	cfg := config.Load()

	log, flush, err := logging.New(os.Getenv("ENV") == "production")
	if err != nil {
		panic(err)
	}
	defer flush()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	db, err := structured.NewDB(cfg.Database)
	if err != nil {
		log.Error(err, "failed to open structured store connection pool")
		os.Exit(1)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer redisClient.Close()

	cache := structured.NewCache(redisClient, time.Duration(cfg.CacheTTLSeconds)*time.Second, cfg.EnableCaching, log)
	auditWriter := audit.New(db, log)
	store := structured.New(db, cache, auditWriter, log)

	blobClient, err := blob.New(ctx, cfg.Region, cfg.HealthKitRawBucket, log)
	if err != nil {
		log.Error(err, "failed to construct blob store client")
		os.Exit(1)
	}

	q := queue.New(redisClient, log)
	uploadSvc := upload.New(blobClient, store, q, auditWriter, log)

	patCfg := patmodel.ConfigFor(patmodel.Size(cfg.PATModelSize))
	pipelineSvc := pipeline.New(pipeline.Config{
		PATConfig: patCfg,
		WeightsOpts: patweights.Options{
			Path:         cfg.PATModelPath,
			AllowedDirs:  []string{"/etc/clarity/models"},
			FallbackPath: "",
			RandomSeed:   42,
		},
		FusionSeed: 7,
	}, log, metrics)

	router := newRouter(uploadSvc, store, pipelineSvc, registry, log)

	srv := &http.Server{
		Addr:              getenv("API_ADDR", ":8080"),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("api listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error(err, "api server exited with error")
		os.Exit(1)
	}
}

func newRouter(uploadSvc *upload.Service, store *structured.Store, pipelineSvc *pipeline.Service, registry *prometheus.Registry, log logr.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
	}))

	h := &handlers{upload: uploadSvc, store: store, pipeline: pipelineSvc}
	r.Post("/v1/healthkit/upload", h.handleUpload)
	r.Get("/v1/health-data/{userID}", h.handleQuery)
	r.Get("/v1/health-data/{userID}/{processingID}", h.handleGetResult)
	r.Delete("/v1/users/{userID}", h.handleEraseUser)

	// The legacy /v1/query endpoint's 410 Gone behavior is left as a
	// deployment-time decision — no route is registered for it here.

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", h.handleHealthz)
	return r
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
