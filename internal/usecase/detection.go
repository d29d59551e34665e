package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/deepfake-detect/internal/classifier"
	"github.com/example/deepfake-detect/internal/logging"
	"github.com/example/deepfake-detect/internal/repository"
)

const resultTTL = 5 * time.Minute

var (
	// ErrResultNotFound is returned when no store holds the requested detection.
	ErrResultNotFound = errors.New("result not found")
	// ErrMetricsUnavailable is returned when no repository is configured.
	ErrMetricsUnavailable = errors.New("metrics unavailable")
)

// DetectionRepository defines the persistence operations needed by the use case.
type DetectionRepository interface {
	SaveLog(ctx context.Context, log *repository.DetectionLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.DetectionLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Detection is the outcome of classifying one upload.
type Detection struct {
	RequestID           string    `json:"request_id"`
	Filename            string    `json:"filename"`
	Probability         float64   `json:"probability"`
	Result              string    `json:"result"`
	Confidence          float64   `json:"confidence"`
	SHA1Hash            string    `json:"sha1_hash,omitempty"`
	ProcessingLatencyMs int64     `json:"processing_latency_ms"`
	CreatedAt           time.Time `json:"created_at"`
}

// DetectionUseCase runs uploads through the classifier and records the outcome.
// repo and cache are optional.
type DetectionUseCase struct {
	classifier     classifier.Client
	repo           DetectionRepository
	cache          Cache
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

// NewDetectionUseCase wires the classifier with optional repository and cache; pass nil to disable either.
func NewDetectionUseCase(c classifier.Client, repo DetectionRepository, cache Cache, logger *zap.Logger) *DetectionUseCase {
	return &DetectionUseCase{
		classifier:     c,
		repo:           repo,
		cache:          cache,
		logger:         logger.Named("detection_usecase"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
		now:            time.Now,
	}
}

// Detect classifies the image stored at path. Only a classifier failure is
// returned; recording problems are logged.
func (uc *DetectionUseCase) Detect(ctx context.Context, requestID, filename, path string) (*Detection, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.detect", requestID)
	start := uc.now()

	probability, err := uc.classifier.Predict(ctx, path)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.predict", requestID, err)
		opLogger.Error("prediction failed", zap.Error(wrapped), zap.String("filename", filename))
		return nil, wrapped
	}

	verdict := classifier.Interpret(probability)
	detection := &Detection{
		RequestID:           requestID,
		Filename:            filename,
		Probability:         probability,
		Result:              verdict.Label,
		Confidence:          verdict.Confidence,
		ProcessingLatencyMs: uc.now().Sub(start).Milliseconds(),
		CreatedAt:           start.UTC(),
	}
	opLogger.Info("detection complete",
		zap.String("result", detection.Result),
		zap.Float64("probability", probability),
		zap.Int64("latency_ms", detection.ProcessingLatencyMs))

	uc.record(ctx, detection, path)
	return detection, nil
}

func (uc *DetectionUseCase) record(ctx context.Context, d *Detection, path string) {
	if uc.repo == nil && uc.cache == nil {
		return
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.record", d.RequestID)

	hash, err := fileSHA1(path)
	if err != nil {
		opLogger.Warn("failed to hash upload", zap.Error(err))
	}
	d.SHA1Hash = hash

	if uc.repo != nil {
		if err := uc.repo.SaveLog(ctx, toLog(d)); err != nil {
			opLogger.Error("failed to persist detection log", zap.Error(err))
		}
	}

	if uc.cache != nil {
		serialized, err := json.Marshal(d)
		if err != nil {
			opLogger.Error("failed to serialize detection", zap.Error(err))
			return
		}
		if err := uc.withCacheRetry(ctx, d.RequestID, "cache.set.result", func() error {
			return uc.cache.Set(ctx, cacheKey(d.RequestID), string(serialized), resultTTL)
		}); err != nil {
			opLogger.Error("failed to cache detection", zap.Error(err))
		}
	}
}

// GetResult looks a detection up in the cache, then in the repository.
func (uc *DetectionUseCase) GetResult(ctx context.Context, requestID string) (*Detection, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)

	if uc.cache != nil {
		var cached string
		err := uc.withCacheRetry(ctx, requestID, "cache.get.result", func() error {
			var getErr error
			cached, getErr = uc.cache.Get(ctx, cacheKey(requestID))
			return getErr
		})
		switch {
		case err == nil:
			var d Detection
			decodeErr := json.Unmarshal([]byte(cached), &d)
			if decodeErr == nil {
				return &d, nil
			}
			opLogger.Warn("failed to decode cached detection", zap.Error(decodeErr))
		case !errors.Is(err, ErrCacheMiss):
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
	}

	if uc.repo == nil {
		return nil, ErrResultNotFound
	}
	log, err := uc.repo.FindByRequestID(ctx, requestID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromLog(log), nil
}

func (uc *DetectionUseCase) withCacheRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)

	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("cache operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, ErrCacheMiss) || !logging.IsTransient(err) {
			return logging.NewOperationError(operation, requestID, err)
		}
		opLogger.Warn("transient cache error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func cacheKey(requestID string) string {
	return fmt.Sprintf("detection:%s", requestID)
}

func fileSHA1(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func toLog(d *Detection) *repository.DetectionLog {
	return &repository.DetectionLog{
		RequestID:           d.RequestID,
		Filename:            d.Filename,
		SHA1Hash:            d.SHA1Hash,
		Probability:         d.Probability,
		Label:               d.Result,
		Confidence:          d.Confidence,
		ProcessingLatencyMs: d.ProcessingLatencyMs,
		CreatedAt:           d.CreatedAt,
	}
}

func fromLog(log *repository.DetectionLog) *Detection {
	return &Detection{
		RequestID:           log.RequestID,
		Filename:            log.Filename,
		Probability:         log.Probability,
		Result:              log.Label,
		Confidence:          log.Confidence,
		SHA1Hash:            log.SHA1Hash,
		ProcessingLatencyMs: log.ProcessingLatencyMs,
		CreatedAt:           log.CreatedAt,
	}
}
