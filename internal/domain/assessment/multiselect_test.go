package assessment

import (
	"reflect"
	"testing"
)

func TestMultiSelect_NoneIsExclusive(t *testing.T) {
	var m MultiSelect
	m = m.Toggle("Asbestos")
	m = m.Toggle("None")
	if !reflect.DeepEqual(m, MultiSelect{"None"}) {
		t.Fatalf("expected {None}, got %v", m)
	}
	m = m.Toggle("Benzene")
	if !reflect.DeepEqual(m, MultiSelect{"Benzene"}) {
		t.Fatalf("expected {Benzene}, got %v", m)
	}
}

func TestMultiSelect_ToggleDeselects(t *testing.T) {
	m := NewMultiSelect("Asbestos", "Radiation")
	m = m.Toggle("Asbestos")
	if !reflect.DeepEqual(m, MultiSelect{"Radiation"}) {
		t.Errorf("expected {Radiation}, got %v", m)
	}
	m = m.Toggle("Radiation")
	if len(m) != 0 {
		t.Errorf("expected empty set, got %v", m)
	}
}

func TestMultiSelect_SelectIsIdempotent(t *testing.T) {
	m := NewMultiSelect("Pesticides", "Pesticides", "")
	if !reflect.DeepEqual(m, MultiSelect{"Pesticides"}) {
		t.Errorf("expected single entry, got %v", m)
	}
}

func TestMultiSelect_HasExposure(t *testing.T) {
	if NewMultiSelect().HasExposure() {
		t.Error("empty set has no exposure")
	}
	if NewMultiSelect("None").HasExposure() {
		t.Error("None has no exposure")
	}
	if !NewMultiSelect("Benzene").HasExposure() {
		t.Error("Benzene is an exposure")
	}
}

func TestNormalizeSelections(t *testing.T) {
	raw := RawInput{
		OccupationalExposure: []string{"Asbestos", "None"},
		Relatives:            []string{"None", "Mother", "Sister"},
		ChronicConditions:    []string{"Diabetes"},
	}
	NormalizeSelections(&raw)
	if !reflect.DeepEqual([]string(raw.OccupationalExposure), []string{"None"}) {
		t.Errorf("exposure: got %v", raw.OccupationalExposure)
	}
	if !reflect.DeepEqual([]string(raw.Relatives), []string{"Mother", "Sister"}) {
		t.Errorf("relatives: got %v", raw.Relatives)
	}
	if !reflect.DeepEqual([]string(raw.ChronicConditions), []string{"Diabetes"}) {
		t.Errorf("chronic: got %v", raw.ChronicConditions)
	}
}
