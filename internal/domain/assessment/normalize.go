// Package assessment turns raw checkup submissions into the canonical
// numeric feature vector consumed by the scoring engine.
package assessment

import (
	"math"
	"strings"
)

// FeatureVector is the fully numeric, engine-facing representation of a
// checkup. JSON names follow the scoring engine's column vocabulary. Values
// are always finite.
type FeatureVector struct {
	Age                   float64 `json:"age"`
	Sex                   float64 `json:"sex"`
	BMI                   float64 `json:"bmi"`
	SmokingStatus         float64 `json:"smoking_status"`
	PackYears             float64 `json:"pack_years"`
	AlcoholUse            float64 `json:"alcohol_use"`
	FamilyHistoryCancer   float64 `json:"family_history_cancer"`
	OccupationalExposure  float64 `json:"occupational_exposure"`
	WBCCount              float64 `json:"wbc_count"`
	RBCCount              float64 `json:"rbc_count"`
	Hemoglobin            float64 `json:"hemoglobin"`
	Hematocrit            float64 `json:"hematocrit"`
	PlateletCount         float64 `json:"platelet_count"`
	NeutrophilPct         float64 `json:"neutrophil_pct"`
	LymphocytePct         float64 `json:"lymphocyte_pct"`
	CEALevel              float64 `json:"cea_level"`
	CA125Level            float64 `json:"ca125_level"`
	CRPLevel              float64 `json:"crp_level"`
	MCV                   float64 `json:"mcv"`
	MCH                   float64 `json:"mch"`
	PriorCancerDiagnosis  float64 `json:"prior_cancer_diagnosis"`
	UnexplainedWeightLoss float64 `json:"unexplained_weight_loss"`
	FatigueScore          float64 `json:"fatigue_score"`
	NLR                   float64 `json:"nlr"`
	PLR                   float64 `json:"plr"`
}

// Normalize coerces a raw submission into a FeatureVector. It never fails:
// missing or malformed numbers become 0 (fatigue defaults to 1, the bottom
// of its 1-10 scale).
func Normalize(raw RawInput) FeatureVector {
	wbc := raw.WBC.Float()
	neut := raw.NeutrophilPct.Float()
	lymph := raw.LymphocytePct.Float()
	plat := raw.Platelets.Float()
	nlr, plr := Ratios(wbc, neut, lymph, plat)

	fatigue := raw.Fatigue.Int()
	if fatigue <= 0 {
		fatigue = 1
	}

	exposure := NewMultiSelect(raw.OccupationalExposure...)

	return FeatureVector{
		Age:                   float64(raw.Age.Int()),
		Sex:                   sexCode(raw.Sex),
		BMI:                   raw.DerivedBMI(),
		SmokingStatus:         smokingCode(raw.SmokingStatus),
		PackYears:             raw.PackYears.Float(),
		AlcoholUse:            alcoholCode(raw.AlcoholUse),
		FamilyHistoryCancer:   boolCode(raw.FamilyHistory),
		OccupationalExposure:  boolCode(exposure.HasExposure()),
		WBCCount:              wbc,
		RBCCount:              raw.RBC.Float(),
		Hemoglobin:            raw.Hemoglobin.Float(),
		Hematocrit:            raw.Hematocrit.Float(),
		PlateletCount:         plat,
		NeutrophilPct:         neut,
		LymphocytePct:         lymph,
		CEALevel:              raw.CEA.Float(),
		CA125Level:            raw.CA125.Float(),
		CRPLevel:              raw.CRP.Float(),
		MCV:                   raw.MCV.Float(),
		MCH:                   raw.MCH.Float(),
		PriorCancerDiagnosis:  boolCode(raw.PriorCancer),
		UnexplainedWeightLoss: boolCode(raw.WeightLoss),
		FatigueScore:          float64(fatigue),
		NLR:                   nlr,
		PLR:                   plr,
	}
}

// NormalizeSelections applies NoneOption exclusivity to every multi-select
// field of raw in place.
func NormalizeSelections(raw *RawInput) {
	raw.OccupationalExposure = NewMultiSelect(raw.OccupationalExposure...)
	raw.Relatives = NewMultiSelect(raw.Relatives...)
	raw.ChronicConditions = NewMultiSelect(raw.ChronicConditions...)
}

// Ratios derives the neutrophil-to-lymphocyte and platelet-to-lymphocyte
// ratios from a differential count. Absolute counts are formed from the WBC
// so that both ratios share one lymphocyte denominator. A zero or negative
// WBC or lymphocyte percentage yields 0 for both.
func Ratios(wbc, neutrophilPct, lymphocytePct, platelets float64) (nlr, plr float64) {
	if wbc <= 0 || lymphocytePct <= 0 {
		return 0, 0
	}
	neutCount := neutrophilPct / 100 * wbc
	lymphCount := lymphocytePct / 100 * wbc
	nlr = finite(neutCount / lymphCount)
	plr = finite(platelets / lymphCount)
	return nlr, plr
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func boolCode(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func sexCode(s string) float64 {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "female", "f":
		return 1
	case "other":
		return 2
	default:
		return 0
	}
}

func smokingCode(s string) float64 {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "former":
		return 1
	case "current":
		return 2
	default:
		return 0
	}
}

func alcoholCode(s string) float64 {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return 0
	default:
		return 1
	}
}
