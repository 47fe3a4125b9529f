package appointment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careportal/triage/internal/domain/account"
	"github.com/careportal/triage/internal/platform/apperr"
	"github.com/careportal/triage/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &appointmentRepoPG{pool: pool} }

func (r *appointmentRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const apptCols = `a.id, a.patient_id, a.doctor_id, to_char(a.appt_date, 'YYYY-MM-DD'), a.appt_time,
	a.status, a.risk_snapshot, a.version, a.created_at, a.updated_at`

const patientCols = `p.id, p.name, p.mobile, p.age`

func scanRecord(row pgx.Row, withPatient bool) (*Record, error) {
	var rec Record
	var snap []byte
	dest := []interface{}{&rec.ID, &rec.PatientID, &rec.DoctorID, &rec.Date, &rec.Time,
		&rec.Status, &snap, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt}
	var p account.Summary
	if withPatient {
		dest = append(dest, &p.ID, &p.Name, &p.Mobile, &p.Age)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snap, &rec.RiskSnapshot); err != nil {
		return nil, fmt.Errorf("decode risk snapshot for %s: %w", rec.ID, err)
	}
	if withPatient {
		rec.Patient = &p
	}
	return &rec, nil
}

// Create inserts the record. risk_snapshot is written here and nowhere
// else.
func (r *appointmentRepoPG) Create(ctx context.Context, rec *Record) error {
	const op = "appointment.create"
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	snap, err := json.Marshal(rec.RiskSnapshot)
	if err != nil {
		return fmt.Errorf("%s: encode snapshot: %w", op, err)
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appt_date, appt_time, status, risk_snapshot, version)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		rec.ID, rec.PatientID, rec.DoctorID, rec.Date, rec.Time, rec.Status, snap, rec.Version,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx, `
		SELECT `+apptCols+`, `+patientCols+`
		FROM appointments a JOIN accounts p ON p.id = a.patient_id
		WHERE a.id = $1`, id), true)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("appointment.get", id.String())
	}
	return rec, err
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, version int) (*Record, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments a SET status = $3, version = a.version + 1, updated_at = NOW()
		WHERE a.id = $1 AND a.version = $2
		RETURNING `+apptCols, id, version, status), false)
	if db.IsNoRows(err) {
		return nil, apperr.Conflict("appointment.transition", id.String(), "appointment was modified concurrently")
	}
	return rec, err
}

func (r *appointmentRepoPG) list(ctx context.Context, column string, id uuid.UUID) ([]*Record, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+`, `+patientCols+`
		FROM appointments a JOIN accounts p ON p.id = a.patient_id
		WHERE a.`+column+` = $1
		ORDER BY a.appt_date ASC, a.appt_time ASC, a.created_at ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := scanRecord(rows, true)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Record, error) {
	return r.list(ctx, "doctor_id", doctorID)
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Record, error) {
	return r.list(ctx, "patient_id", patientID)
}
