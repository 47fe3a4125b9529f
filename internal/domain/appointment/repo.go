package appointment

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists appointment records. A missing row is apperr
// NotFound. UpdateStatus applies only when the stored version still equals
// version and otherwise returns apperr Conflict.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, version int) (*Record, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Record, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Record, error)
}
