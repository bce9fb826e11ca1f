package photo

import (
	"context"

	"github.com/google/uuid"
)

type UploadRepository interface {
	Create(ctx context.Context, u *PhotoUpload) error
	GetByID(ctx context.Context, id uuid.UUID) (*PhotoUpload, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*PhotoUpload, int, error)
}
