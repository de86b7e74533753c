package apikey

import (
	"context"
	"errors"
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

// WithClock replaces the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Allocate returns the doctor's existing key, or mints a fresh one when the
// doctor has none. Calling it twice for the same doctor yields the same key.
func (s *Service) Allocate(ctx context.Context, doctorID uuid.UUID) (*Key, error) {
	existing, err := s.repo.GetByDoctor(ctx, doctorID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	raw, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	k := &Key{
		DoctorID:  doctorID,
		Key:       raw,
		CreatedAt: now,
		ExpiresAt: now.Add(DefaultTTL),
		Usage:     DefaultUsage,
	}
	if err := s.repo.Create(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// GetByDoctor returns the doctor's key, ErrNotFound when none was allocated.
func (s *Service) GetByDoctor(ctx context.Context, doctorID uuid.UUID) (*Key, error) {
	return s.repo.GetByDoctor(ctx, doctorID)
}

// ActiveKeyForDoctor returns the key only while it has not expired.
func (s *Service) ActiveKeyForDoctor(ctx context.Context, doctorID uuid.UUID) (*Key, error) {
	k, err := s.repo.GetByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if k.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return k, nil
}
