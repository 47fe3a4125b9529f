package assessment

// NoneOption is the exclusive sentinel of multi-select history/exposure
// fields.
const NoneOption = "None"

// MultiSelect is an ordered selection set where NoneOption excludes every
// other value.
type MultiSelect []string

// NewMultiSelect folds values in order with Select semantics, so an inbound
// list such as ["Asbestos", "None"] collapses to ["None"].
func NewMultiSelect(values ...string) MultiSelect {
	var m MultiSelect
	for _, v := range values {
		if v == "" {
			continue
		}
		m = m.Select(v)
	}
	return m
}

// Contains reports whether v is selected.
func (m MultiSelect) Contains(v string) bool {
	for _, s := range m {
		if s == v {
			return true
		}
	}
	return false
}

// Select adds v. Selecting NoneOption clears every other value; selecting
// anything else drops NoneOption.
func (m MultiSelect) Select(v string) MultiSelect {
	if m.Contains(v) {
		return m
	}
	if v == NoneOption {
		return MultiSelect{NoneOption}
	}
	out := make(MultiSelect, 0, len(m)+1)
	for _, s := range m {
		if s != NoneOption {
			out = append(out, s)
		}
	}
	return append(out, v)
}

// Toggle deselects v when selected, otherwise selects it.
func (m MultiSelect) Toggle(v string) MultiSelect {
	if !m.Contains(v) {
		return m.Select(v)
	}
	out := make(MultiSelect, 0, len(m))
	for _, s := range m {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

// HasExposure is true when at least one real value is selected.
func (m MultiSelect) HasExposure() bool {
	return len(m) > 0 && !m.Contains(NoneOption)
}
