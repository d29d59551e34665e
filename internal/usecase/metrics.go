package usecase

import "context"

// MetricsSummary represents aggregated detection insights.
type MetricsSummary struct {
	TotalDetections            int64   `json:"total_detections"`
	DeepfakeDetections         int64   `json:"deepfake_detections"`
	DeepfakeRate               float64 `json:"deepfake_rate"`
	AverageConfidence          float64 `json:"average_confidence"`
	AverageProcessingLatencyMs float64 `json:"average_processing_latency_ms"`
}

// GetMetricsSummary aggregates the persisted detection logs.
func (uc *DetectionUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.repo == nil {
		return nil, ErrMetricsUnavailable
	}

	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalDetections:            aggregation.TotalCount,
		DeepfakeDetections:         aggregation.DeepfakeCount,
		AverageConfidence:          aggregation.AverageConfidence,
		AverageProcessingLatencyMs: aggregation.AverageProcessingLatencyMs,
	}
	if aggregation.TotalCount > 0 {
		summary.DeepfakeRate = float64(aggregation.DeepfakeCount) / float64(aggregation.TotalCount)
	}
	return summary, nil
}
