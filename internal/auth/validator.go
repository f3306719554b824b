// Package auth maps drone API keys to source identities.
package auth

import (
	"context"
	"errors"
	"fmt"

	"droneops-relay/internal/scan"
	"droneops-relay/internal/store"
)

// ErrInvalidAPIKey is returned for unknown or inactive keys.
var ErrInvalidAPIKey = errors.New("invalid API key")

// Validator resolves API keys against a credential store. It has no side
// effects and never retries.
type Validator struct {
	creds store.CredentialStore
}

// NewValidator returns a Validator backed by creds.
func NewValidator(creds store.CredentialStore) *Validator {
	return &Validator{creds: creds}
}

// Validate returns the drone identity bound to key. Unknown, empty and
// inactive keys yield ErrInvalidAPIKey; store failures are wrapped and
// returned as-is so callers can tell an outage from a bad key.
func (v *Validator) Validate(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrInvalidAPIKey
	}
	cred, err := v.creds.LookupKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidAPIKey
	}
	if err != nil {
		return "", fmt.Errorf("credential lookup: %w", err)
	}
	if !usable(cred, key) {
		return "", ErrInvalidAPIKey
	}
	return cred.DroneID, nil
}

func usable(c scan.Credential, key string) bool {
	return c.Active && c.Key == key && c.DroneID != ""
}
