// Package doctor implements doctor accounts: registration, credential
// verification, and the admin-facing roster. Passwords are stored as bcrypt
// hashes and never serialized.
package doctor

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrNotFound           = errors.New("doctor not found")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Roles assignable to a doctor account. Registration always produces
// RoleDoctor; RoleAdmin is granted out of band.
const (
	RoleDoctor = "doctor"
	RoleAdmin  = "admin"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// Doctor maps to the doctors table.
type Doctor struct {
	ID           uuid.UUID `db:"id" json:"doctor_id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Validate checks the input and normalizes email and name in place.
func (in *RegisterInput) Validate() error {
	in.Email = NormalizeEmail(in.Email)
	in.Name = NormalizeName(in.Name)

	if in.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("invalid email address: %q", in.Email)
	}
	if in.Name == "" {
		return errors.New("name is required")
	}
	if len(in.Password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// LoginInput carries the fields of a login request.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// NormalizeEmail lowercases and trims an email address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeName trims a display name and title-cases each word.
func NormalizeName(name string) string {
	return cases.Title(language.Und).String(strings.TrimSpace(name))
}
