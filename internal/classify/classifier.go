package classify

import (
	"math"
	"sync"

	"netsentry/internal/logger"
	"netsentry/internal/metrics"
	"netsentry/internal/model"
)

// degradedConfidence is reported when the underlying model cannot produce a
// verdict. Low enough that the threat manager treats it as weak evidence.
const degradedConfidence = 0.1

// Classifier wraps a Scorer with input sanitization and failure containment.
// A broken model never takes the pipeline down: any panic or malformed output
// degrades to a benign verdict instead.
type Classifier struct {
	scorer model.Scorer
	mu     sync.Mutex
	locked bool
}

// NewClassifier wraps the given scorer. Scorers that are not safe for
// concurrent use are serialized behind a mutex.
func NewClassifier(scorer model.Scorer) *Classifier {
	return &Classifier{
		scorer: scorer,
		locked: !scorer.Concurrent(),
	}
}

// Classify scores one closed flow. Never panics and never blocks on anything
// but the scorer itself.
func (c *Classifier) Classify(rec model.FlowRecord, v model.FeatureVector) model.Detection {
	sanitize(&v)

	label, confidence := c.score(v)
	if confidence < 0 || confidence > 1 || math.IsNaN(confidence) {
		logger.Warnf("classify: model returned confidence %f for %s, degrading", confidence, rec.Key)
		label, confidence = model.AttackBenign, degradedConfidence
	}

	metrics.DetectionsTotal.WithLabelValues(string(label)).Inc()
	return model.Detection{
		Label:      label,
		Confidence: confidence,
		Flow:       rec,
		At:         rec.WindowEnd,
	}
}

func (c *Classifier) score(v model.FeatureVector) (label model.AttackType, confidence float64) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("classify: model panic recovered: %v", r)
			label, confidence = model.AttackBenign, degradedConfidence
		}
	}()

	if c.locked {
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	return c.scorer.Score(v)
}

// sanitize zeroes non-finite feature values in place so a single corrupt flow
// cannot poison the model input.
func sanitize(v *model.FeatureVector) {
	for i, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			v[i] = 0
		}
	}
}
