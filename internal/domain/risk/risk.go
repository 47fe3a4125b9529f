// Package risk maps an engine score to a triage band and explains it.
package risk

import (
	"math"
	"sort"

	"github.com/careportal/triage/internal/domain/assessment"
	"github.com/careportal/triage/internal/domain/inference"
)

// Level is a triage band.
type Level string

const (
	Low    Level = "Low"
	Medium Level = "Medium"
	High   Level = "High"
)

// Band thresholds on the 0-100 scale. Lower bounds are inclusive.
const (
	MediumThreshold = 33.0
	HighThreshold   = 66.0

	// TopFactorCount is how many factors an explanation keeps.
	TopFactorCount = 3
)

// Ratio thresholds above which a flag is raised.
const (
	NLRThreshold = 3.0
	PLRThreshold = 150.0
)

// Flag names an auxiliary biomarker signal reported next to the score.
type Flag string

const (
	FlagElevatedNLR Flag = "elevated_nlr"
	FlagElevatedPLR Flag = "elevated_plr"
)

// Classification is the explained triage outcome for one assessment.
type Classification struct {
	Score      float64            `json:"risk_score"`
	Level      Level              `json:"risk_level"`
	TopFactors []inference.Factor `json:"top_factors"`
	Flags      []Flag             `json:"flags"`
	// EngineLevel is the band the engine proposed, kept only when it
	// disagrees with Level.
	EngineLevel string `json:"engine_level,omitempty"`
}

// LevelFor bands a score: below 33 is Low, below 66 Medium, otherwise High.
func LevelFor(score float64) Level {
	switch {
	case score < MediumThreshold:
		return Low
	case score < HighThreshold:
		return Medium
	default:
		return High
	}
}

// ClampScore pins a score into [0, 100]; NaN becomes 0.
func ClampScore(score float64) float64 {
	switch {
	case math.IsNaN(score), score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

// Classify bands the engine result, ranks its factors and attaches ratio
// flags from vec. The band is always derived from the score locally.
func Classify(result inference.Result, vec assessment.FeatureVector) Classification {
	score := ClampScore(result.Score)
	level := LevelFor(score)

	c := Classification{
		Score:      score,
		Level:      level,
		TopFactors: RankFactors(result.Factors, TopFactorCount),
		Flags:      RatioFlags(vec.NLR, vec.PLR),
	}
	if result.Level != "" && result.Level != string(level) {
		c.EngineLevel = result.Level
	}
	return c
}

// RankFactors returns up to n factors ordered by descending absolute
// attribution. Ties keep their input order. Direction is recomputed from
// the attribution sign. The input slice is not modified.
func RankFactors(factors []inference.Factor, n int) []inference.Factor {
	ranked := make([]inference.Factor, len(factors))
	copy(ranked, factors)
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Attribution) > math.Abs(ranked[j].Attribution)
	})
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	for i := range ranked {
		ranked[i].Direction = inference.DirectionOf(ranked[i].Attribution)
	}
	return ranked
}

// RatioFlags reports inflammatory ratio signals. They never alter the score.
func RatioFlags(nlr, plr float64) []Flag {
	flags := []Flag{}
	if nlr > NLRThreshold {
		flags = append(flags, FlagElevatedNLR)
	}
	if plr > PLRThreshold {
		flags = append(flags, FlagElevatedPLR)
	}
	return flags
}
