package assessment

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/careportal/triage/internal/platform/apperr"
)

// LabColumns is the external lab-export vocabulary accepted by ParseCSV.
var LabColumns = []string{
	"wbc_count", "rbc_count", "hemoglobin", "hematocrit", "platelet_count",
	"neutrophil_pct", "lymphocyte_pct", "cea_level", "ca125_level",
	"crp_level", "mcv", "mch",
}

// LabPanel holds one lab-export record keyed by column name. Every entry of
// LabColumns is present; columns absent from the file are "".
type LabPanel map[string]string

// ParseCSV reads a header-mapped CSV and returns its first data record.
// Unknown columns are ignored. It fails only when no header or no data row
// is present.
func ParseCSV(r io.Reader) (LabPanel, error) {
	const op = "assessment.parse_csv"

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperr.Validation(op, "csv is empty")
	}
	if err != nil {
		return nil, apperr.Validation(op, "malformed csv header: %v", err)
	}

	var record []string
	for {
		record, err = cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, apperr.Validation(op, "csv has no data rows")
		}
		if err != nil {
			return nil, apperr.Validation(op, "malformed csv row: %v", err)
		}
		if !blank(record) {
			break
		}
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}

	panel := make(LabPanel, len(LabColumns))
	for _, col := range LabColumns {
		panel[col] = ""
		if i, ok := index[col]; ok && i < len(record) {
			panel[col] = strings.TrimSpace(record[i])
		}
	}
	return panel, nil
}

// ApplyTo overlays the panel's lab values onto raw.
func (p LabPanel) ApplyTo(raw *RawInput) {
	raw.WBC = Number(p["wbc_count"])
	raw.RBC = Number(p["rbc_count"])
	raw.Hemoglobin = Number(p["hemoglobin"])
	raw.Hematocrit = Number(p["hematocrit"])
	raw.Platelets = Number(p["platelet_count"])
	raw.NeutrophilPct = Number(p["neutrophil_pct"])
	raw.LymphocytePct = Number(p["lymphocyte_pct"])
	raw.CEA = Number(p["cea_level"])
	raw.CA125 = Number(p["ca125_level"])
	raw.CRP = Number(p["crp_level"])
	raw.MCV = Number(p["mcv"])
	raw.MCH = Number(p["mch"])
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
