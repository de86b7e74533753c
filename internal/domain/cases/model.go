// Package cases implements diagnosis cases: a case binds an uploaded skin
// image to a patient and the submitting doctor, optionally carrying the
// malignancy probabilities returned by the external diagnosis service.
package cases

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("case not found")

// Diagnosis holds the probabilities returned by the diagnosis service.
// Pointers distinguish an absent probability from a zero one.
type Diagnosis struct {
	Malignant *float64 `json:"malignant"`
	Benign    *float64 `json:"benign"`
}

// Case maps to the cases table. Diagnosis is nil while no result is
// available, either because the diagnosis service was unreachable at
// creation or because the doctor had no usable API key.
type Case struct {
	ID        uuid.UUID  `db:"id" json:"case_id"`
	DoctorID  uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	PatientID uuid.UUID  `db:"patient_id" json:"patient_id"`
	Diagnosis *Diagnosis `db:"-" json:"diagnosis"`
	Notes     []string   `db:"notes" json:"notes"`
	ImageID   uuid.UUID  `db:"image_id" json:"image_id"`
	ImageURL  string     `db:"-" json:"image_url,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// CreateInput carries the multipart fields of a case creation request.
type CreateInput struct {
	PatientNumber int64
	Notes         []string
	FileName      string
	Image         []byte
}

// imageFileName builds the stored name for an uploaded image. The original
// extension is kept so the file remains recognizable when exported.
func imageFileName(originalName string, now time.Time) string {
	ext := originalName
	if i := strings.LastIndex(originalName, "."); i >= 0 {
		ext = originalName[i+1:]
	}
	u := uuid.New()
	return fmt.Sprintf("image_%s_%x.%s", now.UTC().Format("20060102150405"), u[:4], ext)
}
