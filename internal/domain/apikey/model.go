// Package apikey manages the per-doctor credentials used for the outbound
// diagnosis service call. Keys are allocated once at doctor registration and
// returned raw, so the doctor (and the case-creation flow) can present them
// later.
package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("api key not found")

const (
	// DefaultTTL is how long an allocated key stays valid.
	DefaultTTL = 30 * 24 * time.Hour
	// DefaultUsage is the call allowance granted with a fresh key.
	DefaultUsage = 1000
)

// Key maps to the api_keys table.
type Key struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Key       string    `db:"key" json:"key"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Usage     int       `db:"usage_limit" json:"usage"`
}

// Expired reports whether the key is past its expiry at the given instant.
func (k *Key) Expired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}

// GenerateKey returns a 64-character hex credential from crypto/rand.
func GenerateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
