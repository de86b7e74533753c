package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByNumber(ctx context.Context, number int64) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}
