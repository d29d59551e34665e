package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/deepfake-detect/internal/classifier"
	"github.com/example/deepfake-detect/internal/logging"
)

// DetectionLog is one completed detection. The uploaded image itself is never stored.
type DetectionLog struct {
	ID                  uint      `gorm:"primaryKey"`
	RequestID           string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Filename            string    `gorm:"column:filename;size:255"`
	SHA1Hash            string    `gorm:"column:sha1_hash;index;size:40"`
	Probability         float64   `gorm:"column:probability"`
	Label               string    `gorm:"column:label;size:16;index"`
	Confidence          float64   `gorm:"column:confidence"`
	ProcessingLatencyMs int64     `gorm:"column:processing_latency_ms"`
	CreatedAt           time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (DetectionLog) TableName() string {
	return "detection_logs"
}

// MetricsAggregation holds raw totals computed by the database.
type MetricsAggregation struct {
	TotalCount                 int64
	DeepfakeCount              int64
	AverageConfidence          float64
	AverageProcessingLatencyMs float64
}

// metricsRow receives the aliased columns of the aggregation query.
type metricsRow struct {
	TotalCount                 int64   `gorm:"column:total_count"`
	DeepfakeCount              int64   `gorm:"column:deepfake_count"`
	AverageConfidence          float64 `gorm:"column:average_confidence"`
	AverageProcessingLatencyMs float64 `gorm:"column:average_processing_latency_ms"`
}

// DetectionRepository persists detection logs through GORM.
type DetectionRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewDetectionRepository creates a new repository instance.
func NewDetectionRepository(db *gorm.DB, logger *zap.Logger) *DetectionRepository {
	return &DetectionRepository{
		db:             db,
		logger:         logger.Named("detection_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *DetectionRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&DetectionLog{})
}

// SaveLog persists a detection log entry.
func (r *DetectionRepository) SaveLog(ctx context.Context, log *DetectionLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestID loads one detection; a miss wraps gorm.ErrRecordNotFound.
func (r *DetectionRepository) FindByRequestID(ctx context.Context, requestID string) (*DetectionLog, error) {
	var log DetectionLog
	err := r.executeWithRetry(ctx, "repository.find_by_request_id", requestID, func() error {
		return r.db.WithContext(ctx).First(&log, "request_id = ?", requestID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics summarises every stored detection.
func (r *DetectionRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var row metricsRow
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&DetectionLog{}).
			Select(`COUNT(*) AS total_count,
				COALESCE(SUM(CASE WHEN label = ? THEN 1 ELSE 0 END), 0) AS deepfake_count,
				COALESCE(AVG(confidence), 0) AS average_confidence,
				COALESCE(AVG(processing_latency_ms), 0) AS average_processing_latency_ms`, classifier.LabelDeepfake).
			Scan(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return &MetricsAggregation{
		TotalCount:                 row.TotalCount,
		DeepfakeCount:              row.DeepfakeCount,
		AverageConfidence:          row.AverageConfidence,
		AverageProcessingLatencyMs: row.AverageProcessingLatencyMs,
	}, nil
}

func (r *DetectionRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)

	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, gorm.ErrRecordNotFound) || !logging.IsTransient(err) {
			return logging.NewOperationError(operation, requestID, err)
		}
		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempts", r.retryAttempts))
	return logging.NewOperationError(operation, requestID, err)
}
