package cases

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Case, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Case, error)
}
