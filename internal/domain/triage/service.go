// Package triage runs a checkup through normalization, the scoring engine
// and the classifier.
package triage

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/careportal/triage/internal/domain/assessment"
	"github.com/careportal/triage/internal/domain/inference"
	"github.com/careportal/triage/internal/domain/risk"
	"github.com/careportal/triage/internal/platform/telemetry"
)

// Assessment is a classified checkup together with the features it was
// scored on.
type Assessment struct {
	risk.Classification
	Features   assessment.FeatureVector `json:"features"`
	History    History                  `json:"history"`
	AssessedAt time.Time                `json:"assessed_at"`
}

// History echoes the multi-select answers as they were scored, after
// "None" exclusivity was applied.
type History struct {
	OccupationalExposure []string `json:"occupational_exposure,omitempty"`
	Relatives            []string `json:"relatives,omitempty"`
	ChronicConditions    []string `json:"chronic_conditions,omitempty"`
}

// sharedCallTimeout bounds a deduplicated engine call, which runs detached
// from any single caller's request.
const sharedCallTimeout = 30 * time.Second

type Service struct {
	engine   inference.Engine
	inflight singleflight.Group
	logger   zerolog.Logger
	metrics  *telemetry.Provider
	now      func() time.Time

	sharedTimeout time.Duration
}

// NewService wires the triage pipeline. metrics may be nil.
func NewService(engine inference.Engine, logger zerolog.Logger, metrics *telemetry.Provider) *Service {
	return &Service{
		engine:  engine,
		logger:  logger.With().Str("component", "triage").Logger(),
		metrics: metrics,
		now:     time.Now,

		sharedTimeout: sharedCallTimeout,
	}
}

// Assess normalizes raw, scores it and classifies the result. Concurrent
// calls with the same non-empty key share one engine call; nothing is kept
// once that call returns. The shared call is not tied to the caller that
// started it, so one caller giving up does not fail the others.
func (s *Service) Assess(ctx context.Context, key string, raw assessment.RawInput) (*Assessment, error) {
	if key == "" {
		return s.assess(ctx, raw)
	}

	ch := s.inflight.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sharedTimeout)
		defer cancel()
		return s.assess(callCtx, raw)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug().Str("submission", key).Msg("joined in-flight assessment")
		}
		return res.Val.(*Assessment).clone(), nil
	}
}

func (s *Service) assess(ctx context.Context, raw assessment.RawInput) (*Assessment, error) {
	assessment.NormalizeSelections(&raw)
	vec := assessment.Normalize(raw)

	result, err := s.engine.Infer(ctx, vec)
	if err != nil {
		return nil, err
	}

	a := &Assessment{
		Classification: risk.Classify(*result, vec),
		Features:       vec,
		History: History{
			OccupationalExposure: raw.OccupationalExposure,
			Relatives:            raw.Relatives,
			ChronicConditions:    raw.ChronicConditions,
		},
		AssessedAt: s.now().UTC(),
	}
	s.metrics.RecordAssessment(string(a.Level))

	ev := s.logger.Info().Float64("risk_score", a.Score).Str("risk_level", string(a.Level))
	if a.EngineLevel != "" {
		ev = ev.Str("engine_level", a.EngineLevel)
	}
	ev.Msg("assessment classified")
	return a, nil
}

// clone gives each caller its own slices.
func (a *Assessment) clone() *Assessment {
	cp := *a
	cp.TopFactors = append([]inference.Factor(nil), a.TopFactors...)
	cp.Flags = append([]risk.Flag(nil), a.Flags...)
	cp.History = History{
		OccupationalExposure: append([]string(nil), a.History.OccupationalExposure...),
		Relatives:            append([]string(nil), a.History.Relatives...),
		ChronicConditions:    append([]string(nil), a.History.ChronicConditions...),
	}
	if cp.TopFactors == nil {
		cp.TopFactors = []inference.Factor{}
	}
	if cp.Flags == nil {
		cp.Flags = []risk.Flag{}
	}
	return &cp
}
