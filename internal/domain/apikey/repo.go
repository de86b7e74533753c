package apikey

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, k *Key) error
	GetByDoctor(ctx context.Context, doctorID uuid.UUID) (*Key, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
