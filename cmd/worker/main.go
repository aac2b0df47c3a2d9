// Command worker consumes job messages published by pkg/upload, runs each
// through pkg/pipeline, and persists the resulting AnalysisResult. It bounds
// concurrent PAT forward passes with a weighted semaphore and runs each
// claimed job inside an errgroup, logging a job's failure without stopping
// the claim loop, per "fixed-size thread/tensor pool" language.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/clarity-digital-twin/clarity-backend/internal/config"
	"github.com/clarity-digital-twin/clarity-backend/internal/logging"
	"github.com/clarity-digital-twin/clarity-backend/internal/telemetry"
	"github.com/clarity-digital-twin/clarity-backend/pkg/model"
	patmodel "github.com/clarity-digital-twin/clarity-backend/pkg/pat/model"
	patweights "github.com/clarity-digital-twin/clarity-backend/pkg/pat/weights"
	"github.com/clarity-digital-twin/clarity-backend/pkg/pipeline"
	"github.com/clarity-digital-twin/clarity-backend/pkg/queue"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/audit"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/blob"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/structured"
)

// maxConcurrentInferences bounds simultaneous PAT forward passes per worker
// process with a fixed-size semaphore pool.
const maxConcurrentInferences = 4

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
	if n, err := q.Reclaim(ctx); err != nil {
		log.Error(err, "queue reclaim sweep failed on startup")
	} else if n > 0 {
		log.Info("reclaimed in-flight job messages from a prior worker instance", "count", n)
	}

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

	w := &worker{
		queue:     q,
		store:     store,
		blob:      blobClient,
		audit:     auditWriter,
		pipeline:  pipelineSvc,
		metrics:   metrics,
		log:       log,
		sema:      semaphore.NewWeighted(maxConcurrentInferences),
		leaseSecs: cfg.JobLeaseSeconds,
	}

	go w.reclaimLoop(ctx)
	w.run(ctx)
}

type worker struct {
	queue     *queue.Queue
	store     *structured.Store
	blob      *blob.Client
	audit     *audit.Writer
	pipeline  *pipeline.Service
	metrics   *telemetry.Metrics
	log       logr.Logger
	sema      *semaphore.Weighted
	leaseSecs int
}

// run claims messages in a loop, one at a time: each claimed message is
// processed through an errgroup and waited for before the next claim, and a
// job's error is logged rather than ending the loop.
func (w *worker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := w.queue.Claim(ctx, 5*time.Second)
		if err != nil {
			w.log.Error(err, "queue claim failed")
			continue
		}
		if msg == nil {
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		m := *msg
		g.Go(func() error {
			return w.processOne(gctx, m)
		})
		if err := g.Wait(); err != nil {
			w.log.Error(err, "job processing failed", "processing_id", m.ProcessingID)
		}
	}
}

// reclaimLoop periodically recovers messages left in-flight by a crashed
// worker and sweeps orphaned processing_jobs rows past their lease.
func (w *worker) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(w.leaseSecs) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.queue.Reclaim(ctx); err != nil {
				w.log.Error(err, "periodic queue reclaim failed")
			} else if n > 0 {
				w.log.Info("reclaimed stalled job messages", "count", n)
			}
			if ids, err := w.store.ReclaimOrphanedJobs(ctx, w.leaseSecs); err != nil {
				w.log.Error(err, "periodic processing_jobs reclaim failed")
			} else if len(ids) > 0 {
				w.log.Info("reclaimed orphaned processing jobs", "processing_ids", ids)
			}
		}
	}
}

// processOne runs one job message through the pipeline. If the job is
// already in a terminal state — a redelivered or duplicated message — it
// acks without reprocessing and records a PIPELINE_REPLAY_SUPPRESSED audit
// event instead of re-running inference and writing a second
// AnalysisResult.
func (w *worker) processOne(ctx context.Context, msg queue.Message) error {
	if err := w.sema.Acquire(ctx, 1); err != nil {
		return err
	}
	defer w.sema.Release(1)

	start := time.Now()

	job, err := w.store.GetJob(ctx, msg.ProcessingID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		w.audit.Record(ctx, model.OpPipelineReplaySuppressed, "processing_jobs", msg.ProcessingID, &msg.UserID, map[string]any{"status": job.Status})
		return w.queue.Ack(ctx, msg)
	}

	if applied, err := w.store.UpdateJobStatus(ctx, msg.ProcessingID, model.JobReceived, model.JobProcessing, nil); err != nil {
		return err
	} else if !applied {
		// Lost the CAS race to another worker instance (or the job left
		// "received" state between GetJob and here) — treat as a replay.
		return w.queue.Ack(ctx, msg)
	}

	metrics, err := w.store.QueryHealthMetrics(ctx, msg.UserID, structured.QueryOptions{Limit: 500})
	if err != nil {
		w.failJob(ctx, msg, err)
		return err
	}

	result, err := w.pipeline.Analyze(msg.ProcessingID, msg.UserID, metrics)
	w.metrics.PipelineDuration.WithLabelValues(outcomeLabel(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		w.failJob(ctx, msg, err)
		return err
	}

	if err := w.store.PutAnalysisResult(ctx, *result); err != nil {
		w.failJob(ctx, msg, err)
		return err
	}
	if payload, err := json.Marshal(*result); err == nil {
		if _, err := w.blob.PutAnalysisResults(ctx, time.Now().UTC(), msg.UserID, msg.ProcessingID, payload); err != nil {
			w.log.Error(err, "failed to mirror analysis result to blob storage", "processing_id", msg.ProcessingID)
		}
	}

	if _, err := w.store.UpdateJobStatus(ctx, msg.ProcessingID, model.JobProcessing, model.JobCompleted, nil); err != nil {
		return err
	}
	w.metrics.JobsTotal.WithLabelValues(string(model.JobCompleted)).Inc()
	return w.queue.Ack(ctx, msg)
}

func (w *worker) failJob(ctx context.Context, msg queue.Message, cause error) {
	reason := cause.Error()
	if _, err := w.store.UpdateJobStatus(ctx, msg.ProcessingID, model.JobProcessing, model.JobFailed, &reason); err != nil {
		w.log.Error(err, "failed to mark job failed after a pipeline error", "processing_id", msg.ProcessingID)
	}
	w.metrics.JobsTotal.WithLabelValues(string(model.JobFailed)).Inc()
	_ = w.queue.Ack(ctx, msg)
}

func outcomeLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
