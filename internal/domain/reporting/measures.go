package reporting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/careportal/triage/internal/platform/apperr"
)

// Measure is a named operational query over the triage tables.
type Measure struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SQL         string `json:"-"`
}

// MeasureReport holds the rows produced by evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
}

// Measures lists the measures an admin can evaluate.
var Measures = []Measure{
	{
		ID:          "accounts-by-role",
		Name:        "Accounts by Role",
		Description: "Registered accounts per role",
		SQL:         `SELECT role, COUNT(*) AS total FROM accounts GROUP BY role ORDER BY role`,
	},
	{
		ID:          "doctor-verification",
		Name:        "Doctor Verification",
		Description: "Doctors by credential verification state",
		SQL: `SELECT is_verified, COUNT(*) AS total FROM accounts
			WHERE role = 'doctor' GROUP BY is_verified ORDER BY is_verified`,
	},
	{
		ID:          "appointments-by-status",
		Name:        "Appointments by Status",
		Description: "Appointments per lifecycle status",
		SQL:         `SELECT status, COUNT(*) AS total FROM appointments GROUP BY status ORDER BY total DESC`,
	},
	{
		ID:          "appointments-by-risk",
		Name:        "Appointments by Risk Level",
		Description: "Appointments per risk level captured at booking",
		SQL: `SELECT COALESCE(risk_snapshot->>'risk_level', 'unknown') AS risk_level, COUNT(*) AS total
			FROM appointments GROUP BY 1 ORDER BY total DESC`,
	},
}

// FindMeasure looks up a measure by id.
func FindMeasure(id string) (Measure, bool) {
	for _, m := range Measures {
		if m.ID == id {
			return m, true
		}
	}
	return Measure{}, false
}

// Querier runs read-only SQL. *pgxpool.Pool satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Evaluate runs the measure and returns one map per row keyed by column.
func Evaluate(ctx context.Context, q Querier, m Measure, now time.Time) (*MeasureReport, error) {
	const op = "reporting.evaluate"

	rows, err := q.Query(ctx, m.SQL)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	results := []map[string]interface{}{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, apperr.Internal(op, err)
		}
		row := make(map[string]interface{}, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(op, err)
	}

	return &MeasureReport{
		MeasureID:   m.ID,
		MeasureName: m.Name,
		GeneratedAt: now.UTC(),
		Results:     results,
	}, nil
}
