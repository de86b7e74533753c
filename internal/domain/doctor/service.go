package doctor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skindx/skindx/internal/domain/apikey"
	"github.com/skindx/skindx/internal/platform/auth"
	"github.com/skindx/skindx/internal/platform/db"
)

type Service struct {
	repo       Repository
	keys       *apikey.Service
	tokens     *auth.TokenIssuer
	pool       *pgxpool.Pool
	bcryptCost int
	now        func() time.Time
}

func NewService(repo Repository, keys *apikey.Service, tokens *auth.TokenIssuer, pool *pgxpool.Pool, bcryptCost int) *Service {
	return &Service{
		repo:       repo,
		keys:       keys,
		tokens:     tokens,
		pool:       pool,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// WithClock overrides the service's time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// inTx runs fn in a database transaction when a pool is configured. Unit
// tests run against plain in-memory repositories and pass a nil pool.
func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.pool == nil {
		return fn(ctx)
	}
	return db.InTx(ctx, s.pool, fn)
}

// Register creates a doctor account with the standard doctor role and
// allocates its API key in the same transaction. The returned key carries
// the raw key material; it is shown once, in the registration response.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Doctor, *apikey.Key, error) {
	return s.register(ctx, in, RoleDoctor)
}

// RegisterAdmin provisions an account with the admin role. The registration
// endpoint always assigns the doctor role, so admin accounts are created
// through the server's command line instead.
func (s *Service) RegisterAdmin(ctx context.Context, in RegisterInput) (*Doctor, *apikey.Key, error) {
	return s.register(ctx, in, RoleAdmin)
}

func (s *Service) register(ctx context.Context, in RegisterInput, role string) (*Doctor, *apikey.Key, error) {
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	d := &Doctor{
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}

	var key *apikey.Key
	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, d); err != nil {
			return err
		}
		key, err = s.keys.Allocate(ctx, d.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return d, key, nil
}

// Authenticate verifies the doctor's credentials and returns a signed access
// token. Unknown emails and wrong passwords both map to
// ErrInvalidCredentials so callers cannot probe which emails exist.
func (s *Service) Authenticate(ctx context.Context, in LoginInput) (string, error) {
	if in.Email == "" || in.Password == "" {
		return "", errors.New("email and password are required")
	}

	d, err := s.repo.GetByEmail(ctx, NormalizeEmail(in.Email))
	if errors.Is(err, ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}

	if !auth.CheckPassword(d.PasswordHash, in.Password) {
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(d.ID.String(), d.Email, []string{d.Role})
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*Doctor, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.repo.List(ctx, limit, offset)
}
