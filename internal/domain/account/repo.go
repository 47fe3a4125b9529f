package account

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists accounts and their verification documents.
// Implementations report a missing row as apperr NotFound and a duplicate
// mobile number as apperr Conflict.
type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByMobile(ctx context.Context, mobile string) (*Account, error)
	ListRecent(ctx context.Context, limit, offset int) ([]*Account, int, error)
	MarkVerified(ctx context.Context, id uuid.UUID, specialization string) error

	GetDocument(ctx context.Context, accountID uuid.UUID, kind DocumentKind) (*Document, error)
	UpsertDocument(ctx context.Context, d *Document) error
	ListDocuments(ctx context.Context, accountID uuid.UUID) ([]*Document, error)
}
