package cases

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/skindx/skindx/internal/domain/apikey"
	"github.com/skindx/skindx/internal/domain/patient"
	"github.com/skindx/skindx/internal/platform/blobstore"
	"github.com/skindx/skindx/internal/platform/db"
	"github.com/skindx/skindx/internal/platform/mldiag"
)

type Service struct {
	repo     Repository
	patients *patient.Service
	keys     *apikey.Service
	blobs    blobstore.BlobStore
	diag     mldiag.Diagnoser
	pool     *pgxpool.Pool
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(
	repo Repository,
	patients *patient.Service,
	keys *apikey.Service,
	blobs blobstore.BlobStore,
	diag mldiag.Diagnoser,
	pool *pgxpool.Pool,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		keys:     keys,
		blobs:    blobs,
		diag:     diag,
		pool:     pool,
		logger:   logger.With().Str("component", "cases").Logger(),
		now:      time.Now,
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

// Create stores the uploaded image and the case record that references it.
// The patient is resolved before the image is stored so a bad patient number
// never leaves a blob behind; if the case insert itself fails, the stored
// image is deleted again. The diagnosis call is best effort: any failure is
// logged and the case is created without a diagnosis.
func (s *Service) Create(ctx context.Context, doctorID uuid.UUID, in CreateInput) (*Case, error) {
	contentType, err := blobstore.ContentTypeForFile(in.FileName)
	if err != nil {
		return nil, err
	}

	patientID, err := s.patients.IDByNumber(ctx, in.PatientNumber)
	if err != nil {
		return nil, err
	}

	storedName := imageFileName(in.FileName, s.now())
	uploaded, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    storedName,
		ContentType: contentType,
		PatientID:   patientID.String(),
		CreatedBy:   doctorID.String(),
	}, bytes.NewReader(in.Image))
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	imageID, err := uuid.Parse(uploaded.ID)
	if err != nil {
		s.releaseImage(ctx, uploaded.ID)
		return nil, fmt.Errorf("parse image id %q: %w", uploaded.ID, err)
	}

	notes := in.Notes
	if len(notes) == 0 {
		notes = []string{""}
	}

	c := &Case{
		DoctorID:  doctorID,
		PatientID: patientID,
		Diagnosis: s.diagnose(ctx, doctorID, in.Image, storedName),
		Notes:     notes,
		ImageID:   imageID,
		CreatedAt: s.now().UTC(),
	}

	if err := s.inTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, c)
	}); err != nil {
		s.releaseImage(ctx, uploaded.ID)
		return nil, fmt.Errorf("insert case: %w", err)
	}

	c.ImageURL = imageURL(c.ID)
	return c, nil
}

// diagnose fetches the doctor's API key and calls the diagnosis service.
// A missing or expired key and an unreachable service both degrade to a nil
// diagnosis rather than failing case creation.
func (s *Service) diagnose(ctx context.Context, doctorID uuid.UUID, image []byte, fileName string) *Diagnosis {
	if s.diag == nil {
		return nil
	}

	key, err := s.keys.ActiveKeyForDoctor(ctx, doctorID)
	if err != nil {
		s.logger.Warn().Err(err).Stringer("doctor_id", doctorID).
			Msg("no usable API key, storing case without diagnosis")
		return nil
	}

	res, err := s.diag.Diagnose(ctx, image, fileName, key.Key)
	if err != nil {
		s.logger.Warn().Err(err).Stringer("doctor_id", doctorID).
			Msg("diagnosis unavailable, storing case without diagnosis")
		return nil
	}
	return &Diagnosis{Malignant: res.Malignant, Benign: res.Benign}
}

// releaseImage deletes a stored image after a failed case insert so no
// unreferenced blob stays behind.
func (s *Service) releaseImage(ctx context.Context, imageID string) {
	if err := s.blobs.Delete(ctx, imageID); err != nil {
		s.logger.Warn().Err(err).Str("image_id", imageID).
			Msg("failed to release image of failed case")
	}
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Case, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.ImageURL = imageURL(c.ID)
	return c, nil
}

// ListByDoctor returns every case created by the doctor, oldest first.
func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Case, error) {
	items, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	for _, c := range items {
		c.ImageURL = imageURL(c.ID)
	}
	return items, nil
}

// ListByPatient returns every case recorded for the patient, oldest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Case, error) {
	items, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	for _, c := range items {
		c.ImageURL = imageURL(c.ID)
	}
	return items, nil
}

// Image opens the case's stored image for streaming. The caller closes the
// returned reader.
func (s *Service) Image(ctx context.Context, caseID uuid.UUID) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	c, err := s.repo.GetByID(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	return s.blobs.Download(ctx, c.ImageID.String())
}

func imageURL(caseID uuid.UUID) string {
	return fmt.Sprintf("/cases/%s/image", caseID)
}
