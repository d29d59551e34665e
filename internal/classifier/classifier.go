package classifier

import (
	"context"
	"errors"
	"math"
)

// Labels reported for a prediction.
const (
	LabelReal     = "Real"
	LabelDeepfake = "Deepfake"
)

// Threshold is the probability at and above which an image is reported as a deepfake.
const Threshold = 0.5

// ErrEmptyOutput is returned when a backend produces no probability.
var ErrEmptyOutput = errors.New("classifier returned no output")

// Client is the inference collaborator: it maps an image on disk to the
// probability, in [0,1], that the image was manipulated.
type Client interface {
	Predict(ctx context.Context, path string) (float64, error)
}

// Verdict is the human readable form of a probability.
type Verdict struct {
	Label      string
	Confidence float64
}

// Interpret thresholds p at 0.5 and derives a confidence of
// 100 - |p-0.5|*200, rounded to two decimals. p is trusted to lie in [0,1].
func Interpret(p float64) Verdict {
	label := LabelReal
	if p >= Threshold {
		label = LabelDeepfake
	}
	confidence := 100 - math.Abs(p-Threshold)*200
	return Verdict{
		Label:      label,
		Confidence: math.Round(confidence*100) / 100,
	}
}
