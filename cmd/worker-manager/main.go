// cmd/worker-manager/main.go
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"payplan-workers/internal/acceptance"
	"payplan-workers/internal/common/auth"
	awsclient "payplan-workers/internal/common/aws"
	"payplan-workers/internal/common/camunda"
	"payplan-workers/internal/common/config"
	"payplan-workers/internal/common/database"
	"payplan-workers/internal/common/logger"
	"payplan-workers/internal/common/observability"
	"payplan-workers/internal/console"
	"payplan-workers/internal/lock"
	"payplan-workers/internal/models"
	"payplan-workers/internal/notify"
	"payplan-workers/internal/store"

	fpp "payplan-workers/internal/workers/acceptance/finish-payment-plan"
	lpp "payplan-workers/internal/workers/acceptance/list-pending-plans"
	sba "payplan-workers/internal/workers/acceptance/set-background-action"
	sbpa "payplan-workers/internal/workers/acceptance/submit-bulk-plan-action"
	spa "payplan-workers/internal/workers/acceptance/submit-plan-action"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	bootLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(observability.Options{
		ServiceName:    cfg.Observability.ServiceName,
		JaegerEndpoint: cfg.Observability.JaegerEndpoint,
		SampleRatio:    cfg.Observability.SampleRatio,
	})
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: cfg.Camunda.Plaintext,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	defer zeebe.Close()
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var db *sql.DB
	err = retryWithBackoff(func() error {
		var err error
		db, err = database.NewPostgres(ctx, cfg.Database.Postgres)
		return err
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer db.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var es *elasticsearch.Client
	err = retryWithBackoff(func() error {
		var err error
		es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return database.PingElasticsearch(ctx, es)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var rdb redis.UniversalClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(ctx, cfg.Database.Redis)
		return err
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Console read model ---
	index := console.NewElasticIndex(es, cfg.Acceptance.Console.Index, log)
	if err := index.EnsureIndex(ctx); err != nil {
		zapLog.Fatal("console index setup failed", zap.Error(err))
	}
	consoleOpts := console.RedisOptions{
		Channel:     cfg.Acceptance.Console.RefreshChannel,
		CountPrefix: cfg.Acceptance.Console.CountPrefix,
		CountTTL:    config.GetDuration(cfg.Acceptance.Console.CountTTL),
	}
	refresher := console.NewRedisRefresher(rdb, consoleOpts, log)
	reader := console.NewReader(index, console.NewCountCache(rdb, consoleOpts), log)

	// --- Identity ---
	keycloak := auth.NewKeycloakClient(
		cfg.Auth.Keycloak.URL,
		cfg.Auth.Keycloak.Realm,
		cfg.Auth.Keycloak.ClientID,
		cfg.Auth.Keycloak.ClientSecret,
		config.GetDuration(cfg.Auth.Keycloak.Timeout),
	)
	if err := keycloak.HealthCheck(ctx); err != nil {
		// tokens are introspected per job, so a slow start is not fatal
		zapLog.Warn("keycloak not reachable yet", zap.Error(err))
	}

	// --- Notifications ---
	sinks, err := buildSinks(ctx, cfg, zeebe, obs)
	if err != nil {
		zapLog.Fatal("notification setup failed", zap.Error(err))
	}
	notifier := notify.NewAsync(sinks, "plan-events", cfg.Acceptance.NotifyBuffer, log)

	lockOpts := lock.DefaultRedisOptions()
	lockOpts.TTL = config.GetDuration(cfg.Acceptance.LockTTL)

	service := acceptance.NewService(
		acceptance.Config{
			MaxCommentLength:   cfg.Acceptance.MaxCommentLength,
			MaxConflictRetries: cfg.Acceptance.MaxConflictRetries,
			BulkMaxParallel:    cfg.Acceptance.BulkMaxParallel,
		},
		store.NewPostgresStore(db, log),
		acceptance.NewTokenIdentity(keycloak, keycloak.ClientID()),
		acceptance.NewGate(acceptance.NewRolePolicy(cfg.Acceptance.Roles)),
		log,
		acceptance.WithLocker(lock.NewRedisLocker(rdb, lockOpts, log)),
		acceptance.WithNotifier(notifier),
		acceptance.WithIndexer(index),
		acceptance.WithRefresher(refresher),
	)

	// --- Register workers ---
	workers := camunda.NewWorkers(zeebe.GetClient(), log)

	spaCfg := spa.FromWorkerConfig(config.GetWorkerConfig(cfg, spa.TaskType))
	spaHandler, err := spa.NewHandler(spaCfg, service, log)
	startWorker(workers, obs, spa.TaskType, spaCfg.WorkerOptions(), spaHandler, err, zapLog)

	sbpaCfg := sbpa.FromWorkerConfig(config.GetWorkerConfig(cfg, sbpa.TaskType))
	sbpaHandler, err := sbpa.NewHandler(sbpaCfg, service, log)
	startWorker(workers, obs, sbpa.TaskType, sbpaCfg.WorkerOptions(), sbpaHandler, err, zapLog)

	lppCfg := lpp.FromWorkerConfig(config.GetWorkerConfig(cfg, lpp.TaskType))
	lppHandler, err := lpp.NewHandler(lppCfg, reader, log)
	startWorker(workers, obs, lpp.TaskType, lppCfg.WorkerOptions(), lppHandler, err, zapLog)

	sbaCfg := sba.FromWorkerConfig(config.GetWorkerConfig(cfg, sba.TaskType))
	sbaHandler, err := sba.NewHandler(sbaCfg, service, log)
	startWorker(workers, obs, sba.TaskType, sbaCfg.WorkerOptions(), sbaHandler, err, zapLog)

	fppCfg := fpp.FromWorkerConfig(config.GetWorkerConfig(cfg, fpp.TaskType))
	fppHandler, err := fpp.NewHandler(fppCfg, service, log)
	startWorker(workers, obs, fpp.TaskType, fppCfg.WorkerOptions(), fppHandler, err, zapLog)

	zapLog.Info("Workers registered", zap.Strings("running", workers.Running()))

	// --- Health & Metrics Server ---
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: healthMux(workers, readinessChecks(zeebe, db, es, rdb)),
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	workers.Close()
	if err := notifier.Close(shutdownCtx); err != nil {
		zapLog.Warn("pending plan events were not delivered", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped")
}

// buildSinks assembles the plan event sinks enabled in configuration.
func buildSinks(ctx context.Context, cfg *config.Config, zeebe *camunda.Client, obs *observability.Observability) (notify.Multi, error) {
	sinks := notify.Multi{
		notify.NewZeebeNotifier(zeebe, cfg.Camunda.StatusMessage, config.GetDuration(cfg.Camunda.StatusMessageTTL)),
		planActionRecorder{obs: obs},
	}

	awsCfg := cfg.Integrations.AWS
	if !awsCfg.SNS.Enabled && !awsCfg.SES.Enabled {
		return sinks, nil
	}

	opts := awsclient.Options{Region: awsCfg.Region, Endpoint: awsCfg.Endpoint}
	sdkCfg, err := awsclient.LoadConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	if awsCfg.SNS.Enabled {
		sinks = append(sinks, notify.NewSNSNotifier(awsclient.NewSNSClient(sdkCfg, opts), awsCfg.SNS.TopicARN))
	}
	if awsCfg.SES.Enabled {
		sinks = append(sinks, notify.NewSESNotifier(awsclient.NewSESClient(sdkCfg, opts), awsCfg.SES.FromEmail, awsCfg.SES.Recipients))
	}
	return sinks, nil
}

// planActionRecorder counts plan events on the OpenTelemetry meter.
type planActionRecorder struct {
	obs *observability.Observability
}

func (r planActionRecorder) Notify(ctx context.Context, event models.PlanEvent) error {
	result := "recorded"
	switch {
	case event.IsRejection():
		result = "rejected"
	case event.StatusChanged():
		result = "advanced"
	}
	r.obs.RecordPlanAction(ctx, string(event.Action), result)
	return nil
}

type jobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

func startWorker(workers *camunda.Workers, obs *observability.Observability, taskType string, opts camunda.WorkerOptions, h jobHandler, err error, log *zap.Logger) {
	if err != nil {
		log.Fatal("worker setup failed", zap.String("taskType", taskType), zap.Error(err))
	}
	workers.Start(taskType, opts, instrument(obs, taskType, h.Handle))
}

// instrument wraps a job handler in a span and records its duration.
func instrument(obs *observability.Observability, taskType string, next worker.JobHandler) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		ctx, span := obs.StartSpan(context.Background(), "job."+taskType,
			attribute.Int64("job.key", job.GetKey()),
			attribute.Int64("job.process_instance_key", job.GetProcessInstanceKey()),
		)
		defer span.End()

		next(client, job)

		obs.RecordJobProcessed(ctx, taskType)
		obs.RecordJobDuration(ctx, time.Since(start), taskType)
	}
}

type readinessCheck func(ctx context.Context) error

func readinessChecks(zeebe *camunda.Client, db *sql.DB, es *elasticsearch.Client, rdb redis.UniversalClient) map[string]readinessCheck {
	return map[string]readinessCheck{
		"zeebe":         zeebe.HealthCheck,
		"postgres":      db.PingContext,
		"elasticsearch": func(ctx context.Context) error { return database.PingElasticsearch(ctx, es) },
		"redis":         func(ctx context.Context) error { return database.PingRedis(ctx, rdb) },
	}
}

func healthMux(workers *camunda.Workers, checks map[string]readinessCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"workers": workers.Running(),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		failures := make(map[string]string)
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failures[name] = err.Error()
			}
		}
		if len(failures) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "not ready", "failures": failures})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
