package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"netsentry/internal/feature"
	"netsentry/internal/model"
)

// classWeights is one row of a trained linear model.
type classWeights struct {
	Label   model.AttackType `json:"label"`
	Weights []float64        `json:"weights"`
	Bias    float64          `json:"bias"`
}

// modelFile is the on-disk format produced by the training pipeline.
type modelFile struct {
	FeatureVersion int            `json:"feature_version"`
	Classes        []classWeights `json:"classes"`
}

// LinearScorer scores feature vectors with a multinomial logistic model.
// Weights are read-only after load, so scoring is safe for concurrent use.
type LinearScorer struct {
	classes []classWeights
}

// LoadLinearScorer reads and validates a trained model file.
func LoadLinearScorer(path string) (*LinearScorer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}

	var mf modelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse model file: %w", err)
	}
	if mf.FeatureVersion != feature.SetVersion {
		return nil, fmt.Errorf("model trained against feature set v%d, this build expects v%d",
			mf.FeatureVersion, feature.SetVersion)
	}
	if len(mf.Classes) == 0 {
		return nil, fmt.Errorf("model file has no classes")
	}
	for _, c := range mf.Classes {
		if len(c.Weights) != model.NumFeatures {
			return nil, fmt.Errorf("class %q has %d weights, want %d", c.Label, len(c.Weights), model.NumFeatures)
		}
	}

	return &LinearScorer{classes: mf.Classes}, nil
}

// Score returns the most likely attack label and its softmax probability.
func (s *LinearScorer) Score(v model.FeatureVector) (model.AttackType, float64) {
	logits := make([]float64, len(s.classes))
	maxLogit := math.Inf(-1)
	for i, c := range s.classes {
		z := c.Bias
		for j, w := range c.Weights {
			z += w * v[j]
		}
		logits[i] = z
		if z > maxLogit {
			maxLogit = z
		}
	}

	// Softmax with the max subtracted for numerical stability.
	var sum float64
	for i := range logits {
		logits[i] = math.Exp(logits[i] - maxLogit)
		sum += logits[i]
	}

	best, bestP := 0, 0.0
	for i, e := range logits {
		if p := e / sum; p > bestP {
			best, bestP = i, p
		}
	}
	return s.classes[best].Label, bestP
}

// Concurrent reports that scoring needs no external synchronization.
func (s *LinearScorer) Concurrent() bool { return true }
