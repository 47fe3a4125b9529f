package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careportal/triage/internal/platform/apperr"
	"github.com/careportal/triage/internal/platform/db"
)

type accountRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &accountRepoPG{pool: pool} }

func (r *accountRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const accountCols = `id, role, name, mobile, password_hash, is_verified,
	specialization, license_number, hospital, department, admin_code,
	age, blood_group, current_medications, past_surgeries, known_allergies,
	family_history, current_symptoms, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Role, &a.Name, &a.Mobile, &a.PasswordHash, &a.IsVerified,
		&a.Specialization, &a.LicenseNumber, &a.Hospital, &a.Department, &a.AdminCode,
		&a.Age, &a.BloodGroup, &a.CurrentMedications, &a.PastSurgeries, &a.KnownAllergies,
		&a.FamilyHistory, &a.CurrentSymptoms, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *accountRepoPG) Create(ctx context.Context, a *Account) error {
	const op = "account.create"
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO accounts (id, role, name, mobile, password_hash, is_verified,
			specialization, license_number, hospital, department, admin_code,
			age, blood_group, current_medications, past_surgeries, known_allergies,
			family_history, current_symptoms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING created_at, updated_at`,
		a.ID, a.Role, a.Name, a.Mobile, a.PasswordHash, a.IsVerified,
		a.Specialization, a.LicenseNumber, a.Hospital, a.Department, a.AdminCode,
		a.Age, a.BloodGroup, a.CurrentMedications, a.PastSurgeries, a.KnownAllergies,
		a.FamilyHistory, a.CurrentSymptoms,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict(op, a.Mobile, "mobile number is already registered")
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *accountRepoPG) get(ctx context.Context, op, where string, arg interface{}) (*Account, error) {
	a, err := scanAccount(r.conn(ctx).QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE `+where, arg))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound(op, fmt.Sprint(arg))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

func (r *accountRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.get(ctx, "account.get", "id = $1", id)
}

func (r *accountRepoPG) GetByMobile(ctx context.Context, mobile string) (*Account, error) {
	return r.get(ctx, "account.get_by_mobile", "mobile = $1", mobile)
}

func (r *accountRepoPG) ListRecent(ctx context.Context, limit, offset int) ([]*Account, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+accountCols+` FROM accounts ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// MarkVerified only ever sets is_verified to true; there is no way back.
func (r *accountRepoPG) MarkVerified(ctx context.Context, id uuid.UUID, specialization string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE accounts SET is_verified = TRUE, specialization = $2, updated_at = NOW()
		WHERE id = $1 AND role = 'doctor'`, id, specialization)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("account.mark_verified", id.String())
	}
	return nil
}

const documentCols = `account_id, kind, blob_id, filename, content_type, size_bytes, uploaded_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.AccountID, &d.Kind, &d.BlobID, &d.FileName, &d.ContentType, &d.Size, &d.UploadedAt)
	return &d, err
}

func (r *accountRepoPG) GetDocument(ctx context.Context, accountID uuid.UUID, kind DocumentKind) (*Document, error) {
	d, err := scanDocument(r.conn(ctx).QueryRow(ctx,
		`SELECT `+documentCols+` FROM verification_documents WHERE account_id = $1 AND kind = $2`, accountID, kind))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("account.get_document", string(kind))
	}
	return d, err
}

func (r *accountRepoPG) UpsertDocument(ctx context.Context, d *Document) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO verification_documents (account_id, kind, blob_id, filename, content_type, size_bytes)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (account_id, kind) DO UPDATE SET
			blob_id = EXCLUDED.blob_id, filename = EXCLUDED.filename,
			content_type = EXCLUDED.content_type, size_bytes = EXCLUDED.size_bytes,
			uploaded_at = NOW()
		RETURNING uploaded_at`,
		d.AccountID, d.Kind, d.BlobID, d.FileName, d.ContentType, d.Size,
	).Scan(&d.UploadedAt)
}

func (r *accountRepoPG) ListDocuments(ctx context.Context, accountID uuid.UUID) ([]*Document, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+documentCols+` FROM verification_documents WHERE account_id = $1 ORDER BY kind`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}
