package apikey

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skindx/skindx/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const keyCols = `id, doctor_id, key, created_at, expires_at, usage_limit`

func scanKey(row pgx.Row) (*Key, error) {
	var k Key
	err := row.Scan(&k.ID, &k.DoctorID, &k.Key, &k.CreatedAt, &k.ExpiresAt, &k.Usage)
	return &k, err
}

func (r *repoPG) Create(ctx context.Context, k *Key) error {
	k.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO api_keys (id, doctor_id, key, created_at, expires_at, usage_limit)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		k.ID, k.DoctorID, k.Key, k.CreatedAt, k.ExpiresAt, k.Usage)
	return err
}

func (r *repoPG) GetByDoctor(ctx context.Context, doctorID uuid.UUID) (*Key, error) {
	k, err := scanKey(r.conn(ctx).QueryRow(ctx, `
		SELECT `+keyCols+` FROM api_keys WHERE doctor_id = $1`, doctorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
