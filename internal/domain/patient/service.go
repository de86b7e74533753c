package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock overrides the service's time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register validates and stores a new patient owned by the registering
// doctor. A patient number already in use fails with ErrNumberTaken.
func (s *Service) Register(ctx context.Context, in RegisterInput, registeredBy uuid.UUID) (*Patient, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	p := &Patient{
		PatientNumber: in.PatientNumber,
		Name:          in.Name,
		DateOfBirth:   in.DateOfBirth,
		Gender:        in.Gender,
		Country:       in.Country,
		Occupation:    in.Occupation,
		Ethnicity:     in.Ethnicity,
		Notes:         in.Notes,
		RegisteredBy:  registeredBy,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetByNumber looks a patient up by patient number. Non-positive numbers
// fail with ErrInvalidNumber before any query runs.
func (s *Service) GetByNumber(ctx context.Context, number int64) (*Patient, error) {
	if number <= 0 {
		return nil, ErrInvalidNumber
	}
	return s.repo.GetByNumber(ctx, number)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// IDByNumber resolves a patient number to the patient's generated ID. Used
// by case creation to bind cases to patients.
func (s *Service) IDByNumber(ctx context.Context, number int64) (uuid.UUID, error) {
	p, err := s.GetByNumber(ctx, number)
	if err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}
