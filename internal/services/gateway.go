package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/voltsight/twin-gateway/internal/cache"
	"github.com/voltsight/twin-gateway/internal/engine"
	"github.com/voltsight/twin-gateway/internal/metrics"
	"github.com/voltsight/twin-gateway/internal/models"
	"github.com/voltsight/twin-gateway/internal/notify"
	"github.com/voltsight/twin-gateway/internal/repo"
	"github.com/voltsight/twin-gateway/internal/utils"
)

// ErrHistoryDisabled is returned by ListAnalyses when no history repository is configured.
var ErrHistoryDisabled = errors.New("analysis history is not enabled")

// ModelProvider generates a structured reply for a prompt.
type ModelProvider interface {
	Generate(ctx context.Context, prompt string, schema *engine.Schema, sampling engine.SamplingConfig) (string, error)
}

// HistoryRepo persists and lists completed analyses.
type HistoryRepo interface {
	SaveAnalysis(ctx context.Context, userID string, in models.GuidedInput, result models.PredictionResult) (models.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, req models.ListAnalysesRequest) ([]models.AnalysisRecord, error)
}

// Notifier accepts alerts for elevated predictions without blocking.
type Notifier interface {
	Notify(alert notify.Alert) bool
}

// Dependencies are the collaborators of GatewayService. Only Model is required.
type Dependencies struct {
	Model    ModelProvider
	Cache    *cache.PredictionCache
	History  HistoryRepo
	Notifier Notifier
}

// Options tunes the model call.
type Options struct {
	// Temperature defaults to engine.DefaultTemperature when zero.
	Temperature          float32
	Timeout              time.Duration
	MaxRetries           int
	RetryInitialInterval time.Duration
	// IsTransient decides which model errors are retried. Defaults to repo.IsTransient.
	IsTransient func(error) bool
}

// GatewayService turns a guided input into a validated prediction.
type GatewayService struct {
	logger    *slog.Logger
	model     ModelProvider
	cache     *cache.PredictionCache
	history   HistoryRepo
	notifier  Notifier
	opts      Options
	latencies *utils.LatencyTracker
	now       func() time.Time
}

// NewGatewayService constructs the analysis facade.
func NewGatewayService(logger *slog.Logger, deps Dependencies, opts Options) *GatewayService {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Temperature == 0 {
		opts.Temperature = engine.DefaultTemperature
	}
	if opts.IsTransient == nil {
		opts.IsTransient = repo.IsTransient
	}
	if opts.RetryInitialInterval <= 0 {
		opts.RetryInitialInterval = 500 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &GatewayService{
		logger:    logger,
		model:     deps.Model,
		cache:     deps.Cache,
		history:   deps.History,
		notifier:  deps.Notifier,
		opts:      opts,
		latencies: utils.NewLatencyTracker(1024),
		now:       time.Now,
	}
}

// Analyze validates in, consults the cache, calls the model and returns the parsed prediction.
// Failures after validation are reported as KindPredictionFailure.
func (s *GatewayService) Analyze(ctx context.Context, identity models.Identity, in models.GuidedInput) (models.PredictionResult, error) {
	const op = "services.Analyze"

	if err := in.Validate(); err != nil {
		return models.PredictionResult{}, err
	}
	if s.model == nil {
		return models.PredictionResult{}, utils.NewKindError(utils.KindPredictionFailure, op, "model provider not configured", nil)
	}

	s.logger.Info("guided analysis request", slog.String("uid", identity.UID), slog.String("vehicle_model", in.VehicleModel))

	start := s.now()
	if cached, ok := s.lookupCache(ctx, in); ok {
		metrics.ObserveAnalysis(s.now().Sub(start), metrics.OutcomeCached)
		return cached, nil
	}

	composition := engine.Compose(in)
	text, err := s.generate(ctx, composition)
	if err != nil {
		metrics.ObserveAnalysis(s.now().Sub(start), metrics.OutcomeError)
		s.logger.Error("model call failed", slog.String("uid", identity.UID), slog.Any("error", err))
		return models.PredictionResult{}, utils.NewKindError(utils.KindPredictionFailure, op, "model call failed", err)
	}

	result, err := engine.ParsePrediction(text)
	if err != nil {
		metrics.ObserveAnalysis(s.now().Sub(start), metrics.OutcomeError)
		s.logger.Error("model reply rejected", slog.String("uid", identity.UID), slog.Any("error", err))
		return models.PredictionResult{}, err
	}

	duration := s.now().Sub(start)
	s.latencies.Observe(duration)
	metrics.ObserveAnalysis(duration, metrics.OutcomeSuccess)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("analysis latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	if err := s.cache.Put(ctx, in, result); err != nil {
		s.logger.Warn("cache prediction failed", slog.Any("error", err))
	}
	s.record(ctx, identity, in, result)
	s.alert(identity, in, result)

	return result, nil
}

// ListAnalyses returns the caller's stored analyses, newest first.
func (s *GatewayService) ListAnalyses(ctx context.Context, identity models.Identity, since time.Time, limit int) ([]models.AnalysisRecord, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	records, err := s.history.ListAnalyses(ctx, models.ListAnalysesRequest{UserID: identity.UID, Since: since, Limit: limit})
	if err != nil {
		return nil, utils.NewAppError("services.ListAnalyses", "list analyses", err)
	}
	return records, nil
}

// LatencyP95 returns the current p95 analysis latency.
func (s *GatewayService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *GatewayService) lookupCache(ctx context.Context, in models.GuidedInput) (models.PredictionResult, bool) {
	if s.cache == nil {
		return models.PredictionResult{}, false
	}
	result, ok, err := s.cache.Get(ctx, in)
	if err != nil {
		s.logger.Warn("prediction cache lookup failed", slog.Any("error", err))
		ok = false
	}
	metrics.ObserveCacheLookup(ok)
	return result, ok
}

// generate calls the model under the configured timeout, retrying transient errors up to MaxRetries times.
func (s *GatewayService) generate(ctx context.Context, composition engine.Composition) (string, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	sampling := engine.SamplingConfig{Temperature: s.opts.Temperature}
	retryable := s.opts.MaxRetries > 0

	operation := func() (string, error) {
		text, err := s.model.Generate(ctx, composition.Prompt, composition.Schema, sampling)
		if err == nil {
			metrics.ObserveModelCall(metrics.ModelResultOK)
			return text, nil
		}
		if retryable && s.opts.IsTransient(err) {
			metrics.ObserveModelCall(metrics.ModelResultTransient)
			s.logger.Warn("transient model error", slog.Any("error", err))
			return "", err
		}
		metrics.ObserveModelCall(metrics.ModelResultError)
		return "", backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.RetryInitialInterval
	policy.MaxElapsedTime = 0
	return backoff.RetryWithData(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.opts.MaxRetries)), ctx))
}

func (s *GatewayService) record(ctx context.Context, identity models.Identity, in models.GuidedInput, result models.PredictionResult) {
	if s.history == nil {
		return
	}
	record, err := s.history.SaveAnalysis(ctx, identity.UID, in, result)
	if err != nil {
		s.logger.Error("save analysis failed", slog.String("uid", identity.UID), slog.Any("error", err))
		return
	}
	s.logger.Debug("analysis saved", slog.String("id", record.ID))
}

func (s *GatewayService) alert(identity models.Identity, in models.GuidedInput, result models.PredictionResult) {
	if s.notifier == nil || !result.AlertLevel.Elevated() {
		return
	}
	s.notifier.Notify(notify.NewAlert(identity, in, result, s.now()))
}
