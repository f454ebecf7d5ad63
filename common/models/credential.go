package models

import (
	"time"

	"github.com/google/uuid"
)

// SSH key algorithms accepted by the vault
const (
	KeyTypeRSA     = "rsa"
	KeyTypeEd25519 = "ed25519"
	KeyTypeECDSA   = "ecdsa"
)

// SSHKey is a user's public key. Fingerprint is unique across all keys.
type SSHKey struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"userId"`
	Title       string     `db:"title" json:"title"`
	PublicKey   string     `db:"public_key" json:"publicKey"`
	Fingerprint string     `db:"fingerprint" json:"fingerprint"`
	KeyType     string     `db:"key_type" json:"keyType"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expiresAt,omitempty"`
	LastUsedAt  *time.Time `db:"last_used_at" json:"lastUsedAt,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

// PersonalAccessToken stores only a bcrypt hash of the token.
// TokenPrefix holds the first hex characters after the fixed prefix and
// narrows verification to a handful of hash comparisons.
type PersonalAccessToken struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"userId"`
	Name        string     `db:"name" json:"name"`
	TokenHash   string     `db:"token_hash" json:"-"`
	TokenPrefix string     `db:"token_prefix" json:"tokenPrefix"`
	Scopes      []string   `db:"scopes" json:"scopes"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expiresAt,omitempty"`
	LastUsedAt  *time.Time `db:"last_used_at" json:"lastUsedAt,omitempty"`
	Revoked     bool       `db:"revoked" json:"revoked"`
	RevokedAt   *time.Time `db:"revoked_at" json:"revokedAt,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

// OAuthApplication is a registered OAuth client
type OAuthApplication struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"userId"`
	Name             string     `db:"name" json:"name"`
	Description      string     `db:"description" json:"description,omitempty"`
	HomepageURL      string     `db:"homepage_url" json:"homepageUrl,omitempty"`
	ClientID         string     `db:"client_id" json:"clientId"`
	ClientSecretHash string     `db:"client_secret_hash" json:"-"`
	RedirectURIs     []string   `db:"redirect_uris" json:"redirectUris"`
	Scopes           []string   `db:"scopes" json:"scopes"`
	Active           bool       `db:"active" json:"active"`
	LastUsedAt       *time.Time `db:"last_used_at" json:"lastUsedAt,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

// AuditLog records who changed what
type AuditLog struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	UserID     string         `db:"user_id" json:"userId"`
	Action     string         `db:"action" json:"action"`
	EntityType string         `db:"entity_type" json:"entityType"`
	EntityID   string         `db:"entity_id" json:"entityId"`
	Metadata   map[string]any `db:"metadata" json:"metadata,omitempty"`
	Timestamp  time.Time      `db:"timestamp" json:"timestamp"`
}
