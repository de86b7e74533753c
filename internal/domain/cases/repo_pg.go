package cases

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

const caseCols = `id, doctor_id, patient_id, malignant, benign, notes, image_id, created_at`

// scanCase reassembles the nullable probability columns into a Diagnosis.
// A row whose probabilities are both NULL carries no diagnosis.
func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	var malignant, benign *float64
	err := row.Scan(&c.ID, &c.DoctorID, &c.PatientID, &malignant, &benign,
		&c.Notes, &c.ImageID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if malignant != nil || benign != nil {
		c.Diagnosis = &Diagnosis{Malignant: malignant, Benign: benign}
	}
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Case) error {
	c.ID = uuid.New()
	var malignant, benign *float64
	if c.Diagnosis != nil {
		malignant = c.Diagnosis.Malignant
		benign = c.Diagnosis.Benign
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO cases (id, doctor_id, patient_id, malignant, benign, notes, image_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.DoctorID, c.PatientID, malignant, benign, c.Notes, c.ImageID, c.CreatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Case, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+caseCols+` FROM cases WHERE id = $1`, id)
	c, err := scanCase(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Case, error) {
	return r.list(ctx, `SELECT `+caseCols+` FROM cases WHERE doctor_id = $1 ORDER BY created_at, id`, doctorID)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Case, error) {
	return r.list(ctx, `SELECT `+caseCols+` FROM cases WHERE patient_id = $1 ORDER BY created_at, id`, patientID)
}

func (r *repoPG) list(ctx context.Context, query string, arg interface{}) ([]*Case, error) {
	rows, err := r.conn(ctx).Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
