package models

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	ErrAlreadyRegistered = errors.New("organizer already registered")
	ErrNotFound          = errors.New("organizer not found")
	ErrInactive          = errors.New("organizer is inactive")
	ErrInvalidTier       = errors.New("invalid organizer tier")
	ErrInvalidPublicKey  = errors.New("invalid organizer public key")
)

// Tier is the commercial tier of an organizer.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	}
	return false
}

// Profile is the allowlist entry for an organizer. The raffle core treats
// this as a read-only eligibility oracle; only the admin API mutates it.
type Profile struct {
	PublicKey          string   `json:"public_key"` // hex-encoded ed25519 public key (32 bytes)
	EnterpriseID       string   `json:"enterprise_id"`
	Tier               Tier     `json:"tier"`
	AllowedCollections []string `json:"allowed_collections"`
	Active             bool     `json:"active"`
	RegisteredAt       int64    `json:"registered_at"`
}

// DecodePublicKey parses a hex-encoded 32-byte ed25519 public key.
func DecodePublicKey(s string) ([]byte, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes, want 32", ErrInvalidPublicKey, len(raw))
	}
	return raw, nil
}

// RegisterRequest is the admin payload for registering an organizer.
type RegisterRequest struct {
	PublicKey          string   `json:"public_key" binding:"required"`
	EnterpriseID       string   `json:"enterprise_id" binding:"required"`
	Tier               Tier     `json:"tier" binding:"required"`
	AllowedCollections []string `json:"allowed_collections"`
}

// StatusUpdate toggles an organizer's active flag.
type StatusUpdate struct {
	Active bool `json:"active"`
}
