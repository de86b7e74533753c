package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skindx/skindx/internal/platform/db"
)

// DefaultChunkSize is the size of a single image_chunks row payload. Blobs
// larger than this are split across multiple rows and reassembled in seq
// order on download.
const DefaultChunkSize = 255 * 1024

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGBlobStore stores blobs in PostgreSQL, metadata in the images table and
// content split into fixed-size rows in image_chunks.
type PGBlobStore struct {
	pool      *pgxpool.Pool
	maxSize   int64
	chunkSize int
}

// NewPGBlobStore returns a PGBlobStore backed by pool. A maxSize of zero or
// less falls back to DefaultMaxFileSize.
func NewPGBlobStore(pool *pgxpool.Pool, maxSize int64) *PGBlobStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &PGBlobStore{pool: pool, maxSize: maxSize, chunkSize: DefaultChunkSize}
}

func (s *PGBlobStore) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return s.pool
}

const imageCols = `id, file_name, content_type, size, chunk_size, patient_id, hash, created_by, created_at`

func scanImage(row pgx.Row) (*BlobMetadata, error) {
	var m BlobMetadata
	err := row.Scan(&m.ID, &m.FileName, &m.ContentType, &m.Size, &m.ChunkSize,
		&m.PatientID, &m.Hash, &m.CreatedBy, &m.CreatedAt)
	return &m, err
}

// Upload reads the content, computes a SHA-256 hash, and writes the images
// row plus its chunks inside a single transaction. Joining a transaction
// already present on ctx makes the write part of the caller's unit of work.
func (s *PGBlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}

	data, err := io.ReadAll(io.LimitReader(content, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)

	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.ChunkSize = s.chunkSize
	meta.Hash = fmt.Sprintf("%x", h)
	meta.CreatedAt = time.Now().UTC()

	err = db.InTx(ctx, s.pool, func(ctx context.Context) error {
		q := s.conn(ctx)
		_, err := q.Exec(ctx, `
			INSERT INTO images (id, file_name, content_type, size, chunk_size, patient_id, hash, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			meta.ID, meta.FileName, meta.ContentType, meta.Size, meta.ChunkSize,
			meta.PatientID, meta.Hash, meta.CreatedBy, meta.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert image: %w", err)
		}
		for seq, chunk := range splitChunks(data, s.chunkSize) {
			if _, err := q.Exec(ctx, `
				INSERT INTO image_chunks (image_id, seq, data) VALUES ($1,$2,$3)`,
				meta.ID, seq, chunk); err != nil {
				return fmt.Errorf("insert chunk %d: %w", seq, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := meta // copy
	return &out, nil
}

// Download reassembles the blob content from its chunks in seq order.
func (s *PGBlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	meta, err := s.GetMetadata(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.conn(ctx).Query(ctx, `
		SELECT data FROM image_chunks WHERE image_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	buf := bytes.NewBuffer(make([]byte, 0, meta.Size))
	for rows.Next() {
		var chunk []byte
		if err := rows.Scan(&chunk); err != nil {
			return nil, nil, fmt.Errorf("scan chunk: %w", err)
		}
		buf.Write(chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read chunks: %w", err)
	}

	return io.NopCloser(buf), meta, nil
}

// Delete removes the images row; chunks go with it via ON DELETE CASCADE.
func (s *PGBlobStore) Delete(ctx context.Context, id string) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlobNotFound
	}
	return nil
}

// GetMetadata returns blob metadata without touching the chunk rows.
func (s *PGBlobStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	m, err := scanImage(s.conn(ctx).QueryRow(ctx, `
		SELECT `+imageCols+` FROM images WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// splitChunks slices data into size-byte pieces. The final chunk carries the
// remainder; empty data yields no chunks.
func splitChunks(data []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}
