package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	cacheRedis "github.com/curatehq/labelsmith/internal/cache/redis"
	"github.com/curatehq/labelsmith/internal/config"
	"github.com/curatehq/labelsmith/internal/domain"
	logpkg "github.com/curatehq/labelsmith/internal/logger"
	"github.com/curatehq/labelsmith/internal/metrics"
	"github.com/curatehq/labelsmith/internal/repository/dataset"
	"github.com/curatehq/labelsmith/internal/repository/embcache"
	"github.com/curatehq/labelsmith/internal/transport/httpapi"
	onnxEmb "github.com/curatehq/labelsmith/internal/transport/onnx"
	openaiEmb "github.com/curatehq/labelsmith/internal/transport/openai"
	"github.com/curatehq/labelsmith/internal/usecase/agreement"
	"github.com/curatehq/labelsmith/internal/usecase/annotate"
	"github.com/curatehq/labelsmith/internal/usecase/audit"
	"github.com/curatehq/labelsmith/internal/usecase/embed"
	"github.com/curatehq/labelsmith/internal/usecase/fewshot"
	"github.com/curatehq/labelsmith/internal/usecase/health"
	"github.com/curatehq/labelsmith/internal/usecase/order"
	"github.com/curatehq/labelsmith/internal/usecase/pipeline"
	"github.com/curatehq/labelsmith/internal/usecase/reduce"
	"github.com/curatehq/labelsmith/internal/usecase/selection"
	"github.com/curatehq/labelsmith/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting labelsmith",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("dataset", cfg.Dataset.Path),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	ctx := context.Background()

	// Embedding cache is optional; empty addrs run without it.
	var store *cacheRedis.Store
	if len(cfg.Embedding.Cache.Addrs) > 0 {
		store, err = cacheRedis.NewStore(cacheRedis.Config{
			Addrs:    cfg.Embedding.Cache.Addrs,
			Password: cfg.Embedding.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer store.Close()

		timeout := time.Duration(cfg.Embedding.Cache.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, timeout); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		logger.Info("Connected to embedding cache", zap.Strings("addrs", cfg.Embedding.Cache.Addrs))
	}

	embedder, closeEmbedder, err := buildEmbedder(cfg, store, logger)
	if err != nil {
		logger.Fatal("Failed to build embedder", zap.Error(err))
	}
	defer closeEmbedder()

	// Load the dataset.
	repo, err := dataset.New(dataset.Schema{
		IDColumn:    cfg.Dataset.IDColumn,
		TextColumn:  cfg.Dataset.TextColumn,
		LabelColumn: cfg.Dataset.LabelColumn,
		Labels:      cfg.Dataset.Labels,
	}, logger)
	if err != nil {
		logger.Fatal("Invalid dataset schema", zap.Error(err))
	}
	items, err := repo.Load(cfg.Dataset.Path)
	if err != nil {
		logger.Fatal("Failed to load dataset", zap.Error(err))
	}

	// Batch pipeline: embed -> reduce -> select.
	embedSvc := embed.New(batchAdapter{embedder}, embed.Config{
		Lowercase:    cfg.Embedding.Lowercase,
		MaxTextRunes: cfg.Embedding.MaxTextRunes,
		LengthPolicy: embed.LengthPolicy(cfg.Embedding.LengthPolicy),
		BatchSize:    cfg.Embedding.BatchSize,
		Workers:      cfg.Embedding.Workers,
	}, logger)
	reduceSvc := reduce.New(reduce.Config{
		Dims:      cfg.Pipeline.Reduce.Dims,
		Seed:      cfg.Pipeline.Reduce.Seed,
		Neighbors: cfg.Pipeline.Reduce.Neighbors,
		Mode:      reduce.Mode(cfg.Pipeline.Reduce.Mode),
	}, logger)
	selectSvc := selection.New(logger)

	runner := pipeline.NewRunner(pipeline.Config{Budget: cfg.Pipeline.Selection.Budget},
		embedSvc, reduceSvc, selectSvc, logger)

	result, err := runner.Run(ctx, items)
	if err != nil {
		logger.Fatal("Pipeline run failed", zap.Error(err))
	}

	pool, err := domain.NewPool(result.Items)
	if err != nil {
		logger.Fatal("Failed to build pool", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.Pipeline.OutputDir, 0o755); err != nil {
		logger.Fatal("Failed to create output dir", zap.Error(err))
	}
	outPath := func(name string) string { return filepath.Join(cfg.Pipeline.OutputDir, name) }

	if err := repo.WriteSelectionCSV(outPath("selection.csv"), pool, result.Selection); err != nil {
		logger.Fatal("Failed to write selection", zap.Error(err))
	}
	if err := repo.ExportParquet(outPath("dataset.parquet"), result.Items); err != nil {
		logger.Fatal("Failed to export parquet", zap.Error(err))
	}

	var scatter []dataset.ScatterPoint
	if cfg.Pipeline.Reduce.Dims == 2 {
		if err := repo.WriteScatterJSON(outPath("scatter.json"), result.Items); err != nil {
			logger.Fatal("Failed to write scatter payload", zap.Error(err))
		}
		scatter, _ = dataset.ScatterPayload(result.Items)
	}

	// On a labeled dataset: train few-shot on the selection, evaluate on the
	// rest, then audit the labels.
	var model *fewshot.Model
	var issues []domain.LabelIssue
	if labeled(result.Items) {
		model = trainAndEvaluate(cfg, result, logger)
		issues = auditLabels(ctx, cfg, result.Items, logger)
		if len(issues) > 0 {
			if err := repo.WriteIssuesCSV(outPath("issues.csv"), pool, issues); err != nil {
				logger.Fatal("Failed to write issues", zap.Error(err))
			}
		}
	}

	if !cfg.Pipeline.Serve {
		logger.Info("Batch run complete", zap.String("output_dir", cfg.Pipeline.OutputDir))
		return
	}

	serve(cfg, result, model, issues, scatter, embedder, store, logger)
}

// labeled reports whether every item carries a ground-truth label.
func labeled(items []domain.Item) bool {
	for _, it := range items {
		if !it.HasLabel() {
			return false
		}
	}
	return len(items) > 0
}

// trainAndEvaluate fits the few-shot classifier on the selected items and
// logs per-class metrics over the remainder.
func trainAndEvaluate(cfg config.Config, result pipeline.Result, logger *zap.Logger) *fewshot.Model {
	split := domain.SplitBySelection(result.Items, result.Selection)

	trainer := fewshot.New(fewshot.Config{
		Pairs:        cfg.Pipeline.FewShot.Pairs,
		Epochs:       cfg.Pipeline.FewShot.Epochs,
		LearningRate: cfg.Pipeline.FewShot.LearningRate,
		Seed:         cfg.Pipeline.FewShot.Seed,
		LinearProbe:  cfg.Pipeline.FewShot.LinearProbe,
		Temperature:  cfg.Pipeline.FewShot.Temperature,
	}, logger)

	model, err := trainer.Train(split.Train)
	if err != nil {
		logger.Fatal("Few-shot training failed", zap.Error(err))
	}

	report, err := model.Evaluate(split.Eval)
	if err != nil {
		logger.Fatal("Few-shot evaluation failed", zap.Error(err))
	}

	classes := make([]string, 0, len(report.Classes))
	for c := range report.Classes {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for _, c := range classes {
		m := report.Classes[c]
		logger.Info("Few-shot class metrics",
			zap.String("class", c),
			zap.Float64("precision", m.Precision),
			zap.Float64("recall", m.Recall),
			zap.Float64("f1", m.F1),
			zap.Int("eval_count", m.Support),
		)
	}
	logger.Info("Few-shot evaluation",
		zap.Float64("accuracy", report.Accuracy),
		zap.Int("train_count", len(split.Train)),
		zap.Int("eval_count", len(split.Eval)),
	)
	return model
}

// auditLabels cross-validates the full labeled set and returns the review queue.
func auditLabels(ctx context.Context, cfg config.Config, items []domain.Item, logger *zap.Logger) []domain.LabelIssue {
	trainer := fewshot.New(fewshot.Config{
		Pairs:        cfg.Pipeline.FewShot.Pairs,
		Epochs:       cfg.Pipeline.FewShot.Epochs,
		LearningRate: cfg.Pipeline.FewShot.LearningRate,
		Seed:         cfg.Pipeline.FewShot.Seed,
		// Linear probe keeps F folds of training cheap.
		LinearProbe: true,
		Temperature: cfg.Pipeline.FewShot.Temperature,
	}, logger)

	auditor := audit.New(audit.Config{
		Folds:   cfg.Pipeline.Audit.Folds,
		Workers: cfg.Pipeline.Audit.Workers,
	}, logger)

	report, err := auditor.Audit(ctx, items, func(train []domain.Item) (audit.Classifier, error) {
		return trainer.Train(train)
	})
	if err != nil {
		logger.Fatal("Label audit failed", zap.Error(err))
	}

	for _, cq := range report.Classes {
		logger.Info("Class label quality",
			zap.String("class", cq.Label),
			zap.Float64("mean_margin", cq.MeanMargin),
			zap.Int("support", cq.Support),
		)
	}
	return report.Issues
}

// serve runs the annotation API until SIGTERM.
func serve(
	cfg config.Config,
	result pipeline.Result,
	model *fewshot.Model,
	issues []domain.LabelIssue,
	scatter []dataset.ScatterPoint,
	embedder domain.Embedder,
	store *cacheRedis.Store,
	logger *zap.Logger,
) {
	selected := make([]domain.Item, 0, len(result.Selection.IDs))
	byID := make(map[string]domain.Item, len(result.Items))
	for _, it := range result.Items {
		byID[it.ID] = it
	}
	for _, id := range result.Selection.IDs {
		selected = append(selected, byID[id])
	}

	orderSvc := buildOrderer(cfg, model, embedder, logger)

	queue, err := annotate.NewQueue(annotate.Config{
		AnnotatorsPerItem: cfg.Pipeline.Agreement.AnnotatorsPerItem,
	}, selected, cfg.Dataset.Labels, orderSvc, logger)
	if err != nil {
		logger.Fatal("Failed to build annotation queue", zap.Error(err))
	}

	agreementSvc := agreement.New(logger)

	var cachePinger health.CachePinger
	if store != nil {
		cachePinger = store
	}
	healthSvc := health.New(cachePinger, newEmbeddingHealthChecker(embedder))

	server := httpapi.NewServer(queue, agreementSvc, healthSvc,
		cfg.Pipeline.Agreement.Quorum, issues, scatter, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Mount("/", server.Router(cfg.HTTP.APIKeys))

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting annotation API", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildOrderer wires the ordering strategy with its dependencies.
func buildOrderer(cfg config.Config, model *fewshot.Model, embedder domain.Embedder, logger *zap.Logger) *order.Service {
	rules := make([]order.Rule, len(cfg.Pipeline.Order.Rules))
	for i, rc := range cfg.Pipeline.Order.Rules {
		rules[i] = order.Rule{Label: rc.Label, Keywords: rc.Keywords, Weight: rc.Weight}
	}

	var suggester order.Suggester
	if cfg.Pipeline.Order.Strategy == string(order.StrategyGenerative) {
		suggester = openaiEmb.NewSuggester(&openaiEmb.Config{
			APIKey:  cfg.Embedding.OpenAI.APIKey,
			BaseURL: cfg.Embedding.OpenAI.BaseURL,
			Logger:  logger,
		}, cfg.Embedding.OpenAI.ChatModel)
	}

	var predictor order.Predictor
	if model != nil {
		predictor = model
	}

	return order.New(order.Config{
		Strategy: order.Strategy(cfg.Pipeline.Order.Strategy),
		TopM:     cfg.Pipeline.Order.TopM,
		Rules:    rules,
	}, batchAdapter{embedder}, predictor, suggester, logger)
}

// batchAdapter exposes a domain.Embedder as the batch contract the ordering
// service consumes.
type batchAdapter struct {
	inner domain.Embedder
}

func (a batchAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := a.inner.(domain.BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}
	return domain.BatchFallback(ctx, a.inner, texts)
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// buildEmbedder assembles the decorator chain: provider -> cached -> instruction.
func buildEmbedder(cfg config.Config, store *cacheRedis.Store, logger *zap.Logger) (domain.Embedder, func(), error) {
	closeFn := func() {}

	var embedder domain.Embedder
	switch cfg.Embedding.Provider {
	case "onnx":
		onnx, err := onnxEmb.NewEmbedder(
			cfg.Embedding.ONNX.ModelPath,
			cfg.Embedding.ONNX.Dimensions,
			cfg.Embedding.ONNX.MaxTokens,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("create ONNX embedder: %w", err)
		}
		embedder = onnx
		closeFn = func() { _ = onnx.Close() }
	default:
		embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.Embedding.OpenAI.APIKey,
			BaseURL:    cfg.Embedding.OpenAI.BaseURL,
			Model:      cfg.Embedding.OpenAI.Model,
			Dimensions: cfg.Embedding.OpenAI.Dimensions,
			Provider:   cfg.Embedding.Provider,
			Logger:     logger,
		})
	}

	if store != nil {
		embedder = embcache.New(embedder, store, cfg.Embedding.Cache.KeyPrefix,
			metrics.EmbeddingCacheTotal, logger)
	}

	// Instruction prefix goes outermost so the cache key includes it.
	if instr := cfg.Embedding.OpenAI.Instruction; instr != "" {
		embedder = domain.NewInstructionEmbedder(embedder, instr)
	}

	return embedder, closeFn, nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
