package assessment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Number is a loosely-typed numeric input. It accepts a JSON number, a
// numeric string, an empty string or null, and keeps the raw text until it is
// coerced. Coercion never fails: anything unparsable reads as zero.
type Number string

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*n = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("number: %w", err)
		}
		*n = Number(strings.TrimSpace(s))
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		// Booleans carry no numeric meaning here.
		*n = ""
	default:
		*n = Number(data)
	}
	return nil
}

// MarshalJSON emits the coerced value so that round-trips are stable.
func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float())
}

// Present reports whether any value was supplied.
func (n Number) Present() bool { return strings.TrimSpace(string(n)) != "" }

// Float coerces to float64; missing or invalid input is 0.
func (n Number) Float() float64 { return ParseFloat(string(n)) }

// Int coerces to int; missing or invalid input is 0.
func (n Number) Int() int { return ParseInt(string(n)) }

// ParseFloat is the single coercion rule for numeric clinical fields:
// surrounding whitespace is ignored, and empty, malformed, NaN or infinite
// values become 0.
func ParseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ParseInt coerces an integer field. Decimal input is truncated toward zero
// ("42.9" reads as 42); anything else unparsable is 0.
func ParseInt(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	f := ParseFloat(s)
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0
	}
	return int(f)
}

// RawInput is the request schema for a patient checkup. Every numeric field
// tolerates strings and absence; Normalize turns it into a FeatureVector.
type RawInput struct {
	Name   string `json:"name,omitempty"`
	Age    Number `json:"age"`
	Sex    string `json:"sex"`
	Height Number `json:"height"` // cm
	Weight Number `json:"weight"` // kg
	// BMI is only consulted when height or weight is missing.
	BMI Number `json:"bmi"`

	SmokingStatus        string   `json:"smoking_status"`
	PackYears            Number   `json:"pack_years"`
	AlcoholUse           string   `json:"alcohol_use"`
	UnitsPerWeek         Number   `json:"units_per_week"`
	OccupationalExposure []string `json:"occupational_exposure"`
	FamilyHistory        bool     `json:"family_history"`
	Relatives            []string `json:"relatives"`
	CancerType           string   `json:"cancer_type,omitempty"`
	PriorCancer          bool     `json:"prior_cancer"`
	ChronicConditions    []string `json:"chronic_conditions"`

	WeightLoss      bool   `json:"weight_loss"`
	Fatigue         Number `json:"fatigue"`
	PersistentCough bool   `json:"persistent_cough"`
	Bleeding        bool   `json:"bleeding"`
	BowelChanges    bool   `json:"bowel_changes"`

	WBC           Number `json:"wbc"`
	RBC           Number `json:"rbc"`
	Hemoglobin    Number `json:"hemoglobin"`
	Hematocrit    Number `json:"hematocrit"`
	Platelets     Number `json:"platelets"`
	NeutrophilPct Number `json:"neutrophil_pct"`
	LymphocytePct Number `json:"lymphocyte_pct"`
	CEA           Number `json:"cea"`
	CA125         Number `json:"ca125"`
	CRP           Number `json:"crp"`
	MCV           Number `json:"mcv"`
	MCH           Number `json:"mch"`
}

// DerivedBMI recomputes BMI from the current height and weight. It is
// evaluated on every call, so editing either input is always reflected.
// When either measurement is missing the explicitly supplied BMI is used.
func (r RawInput) DerivedBMI() float64 {
	h, w := r.Height.Float(), r.Weight.Float()
	if h > 0 && w > 0 {
		return BMI(h, w)
	}
	return r.BMI.Float()
}

// BMI returns weight over height squared, rounded to one decimal.
// heightCM must be positive; otherwise 0 is returned.
func BMI(heightCM, weightKG float64) float64 {
	if heightCM <= 0 || weightKG <= 0 {
		return 0
	}
	m := heightCM / 100
	return round(weightKG/(m*m), 1)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
