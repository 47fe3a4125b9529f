// Package inference is the gateway to the external risk-scoring engine.
package inference

import (
	"context"

	"github.com/careportal/triage/internal/domain/assessment"
)

// Direction tells whether a factor pushed the score up or down.
type Direction string

const (
	Positive Direction = "positive"
	Negative Direction = "negative"
)

// DirectionOf maps an attribution to its direction; zero counts as negative.
func DirectionOf(attribution float64) Direction {
	if attribution > 0 {
		return Positive
	}
	return Negative
}

// Factor is one per-feature contribution reported by the engine.
type Factor struct {
	Feature     string    `json:"feature"`
	Value       float64   `json:"value"`
	Attribution float64   `json:"attribution"`
	Direction   Direction `json:"direction"`
}

// Result is the engine's verdict for a single feature vector.
// Score is on the 0-100 scale. Level is optional and advisory.
type Result struct {
	Score   float64  `json:"score"`
	Level   string   `json:"level,omitempty"`
	Factors []Factor `json:"factors"`
}

// Engine scores a feature vector.
type Engine interface {
	Infer(ctx context.Context, vec assessment.FeatureVector) (*Result, error)
}

// EngineFunc adapts a plain function to Engine.
type EngineFunc func(ctx context.Context, vec assessment.FeatureVector) (*Result, error)

func (f EngineFunc) Infer(ctx context.Context, vec assessment.FeatureVector) (*Result, error) {
	return f(ctx, vec)
}

// wireFactor and wireResponse mirror the engine's JSON contract.
type wireFactor struct {
	Feature   string  `json:"feature"`
	Value     float64 `json:"value"`
	Impact    string  `json:"impact"`
	ShapValue float64 `json:"shap_value"`
}

type wireResponse struct {
	Success    *bool        `json:"success"`
	RiskScore  *float64     `json:"risk_score"`
	RiskLevel  string       `json:"risk_level"`
	TopFactors []wireFactor `json:"top_factors"`
	Error      string       `json:"error"`
}

func (w wireResponse) toResult() *Result {
	res := &Result{
		Score:   *w.RiskScore,
		Level:   w.RiskLevel,
		Factors: make([]Factor, 0, len(w.TopFactors)),
	}
	for _, f := range w.TopFactors {
		res.Factors = append(res.Factors, Factor{
			Feature:     f.Feature,
			Value:       f.Value,
			Attribution: f.ShapValue,
			Direction:   DirectionOf(f.ShapValue),
		})
	}
	return res
}
