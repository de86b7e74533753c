// Package patient implements the patient registry. Patients are created by
// an authenticated doctor and looked up by their human-readable patient
// number, which is unique across the registry.
package patient

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrNotFound      = errors.New("patient not found")
	ErrNumberTaken   = errors.New("patient number already exists")
	ErrInvalidNumber = errors.New("invalid patient number")
)

// DateLayout is the wire format for a patient's date of birth.
const DateLayout = "2006-01-02"

// Patient maps to the patients table. DateOfBirth is kept as its wire string
// so the stored value is exactly what was validated at registration.
type Patient struct {
	ID            uuid.UUID `db:"id" json:"patient_id"`
	PatientNumber int64     `db:"patient_number" json:"patient_number"`
	Name          string    `db:"name" json:"name"`
	DateOfBirth   string    `db:"date_of_birth" json:"date_of_birth"`
	Gender        string    `db:"gender" json:"gender"`
	Country       *string   `db:"country" json:"country,omitempty"`
	Occupation    *string   `db:"occupation" json:"occupation,omitempty"`
	Ethnicity     *string   `db:"ethnicity" json:"ethnicity,omitempty"`
	Notes         []string  `db:"notes" json:"notes"`
	RegisteredBy  uuid.UUID `db:"registered_by" json:"registered_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// RegisterInput carries the fields of a patient registration request.
type RegisterInput struct {
	PatientNumber int64    `json:"patient_number"`
	Name          string   `json:"name"`
	DateOfBirth   string   `json:"date_of_birth"`
	Gender        string   `json:"gender"`
	Country       *string  `json:"country"`
	Occupation    *string  `json:"occupation"`
	Ethnicity     *string  `json:"ethnicity"`
	Notes         []string `json:"notes"`
}

// Validate checks the input and normalizes its fields in place: the name and
// the optional demographic fields are title-cased, gender is lowercased, and
// the date of birth must parse as YYYY-MM-DD.
func (in *RegisterInput) Validate() error {
	if in.PatientNumber <= 0 {
		return ErrInvalidNumber
	}

	in.Name = titleCase(in.Name)
	if in.Name == "" {
		return errors.New("name is required")
	}

	if _, err := time.Parse(DateLayout, in.DateOfBirth); err != nil {
		return fmt.Errorf("invalid date_of_birth format, expected YYYY-MM-DD: %q", in.DateOfBirth)
	}

	in.Gender = strings.ToLower(strings.TrimSpace(in.Gender))
	if in.Gender == "" {
		return errors.New("gender is required")
	}

	in.Country = titleCaseOpt(in.Country)
	in.Occupation = titleCaseOpt(in.Occupation)
	in.Ethnicity = titleCaseOpt(in.Ethnicity)

	if in.Notes == nil {
		in.Notes = []string{}
	}
	return nil
}

func titleCase(s string) string {
	return cases.Title(language.Und).String(strings.TrimSpace(s))
}

// titleCaseOpt title-cases an optional field, collapsing blank values to nil.
func titleCaseOpt(s *string) *string {
	if s == nil {
		return nil
	}
	t := titleCase(*s)
	if t == "" {
		return nil
	}
	return &t
}
