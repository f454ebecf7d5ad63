package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/exprsn/platform/common/db"
	"github.com/exprsn/platform/common/models"
)

const (
	sshKeyColumns = `id, user_id, title, public_key, fingerprint, key_type, expires_at, last_used_at, created_at`
	tokenColumns  = `id, user_id, name, token_hash, token_prefix, scopes, expires_at, last_used_at, revoked, revoked_at, created_at`
	oauthColumns  = `id, user_id, name, description, homepage_url, client_id, client_secret_hash, redirect_uris,
		scopes, active, last_used_at, created_at, updated_at`
)

// CredentialRepository handles database operations for SSH keys, personal
// access tokens, OAuth applications and the audit log
type CredentialRepository struct {
	db *db.DB
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(database *db.DB) *CredentialRepository {
	return &CredentialRepository{db: database}
}

func scanSSHKey(row pgx.Row) (*models.SSHKey, error) {
	k := &models.SSHKey{}
	err := row.Scan(&k.ID, &k.UserID, &k.Title, &k.PublicKey, &k.Fingerprint, &k.KeyType, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt)
	return k, err
}

func scanToken(row pgx.Row) (*models.PersonalAccessToken, error) {
	t := &models.PersonalAccessToken{}
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.TokenHash, &t.TokenPrefix, &t.Scopes, &t.ExpiresAt, &t.LastUsedAt, &t.Revoked, &t.RevokedAt, &t.CreatedAt)
	return t, err
}

func scanOAuthApp(row pgx.Row) (*models.OAuthApplication, error) {
	a := &models.OAuthApplication{}
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Name,
		&a.Description,
		&a.HomepageURL,
		&a.ClientID,
		&a.ClientSecretHash,
		&a.RedirectURIs,
		&a.Scopes,
		&a.Active,
		&a.LastUsedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

// collect scans every row with scan
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *CredentialRepository) touch(ctx context.Context, table string, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE `+table+` SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to touch %s: %w", table, err)
	}
	return nil
}

func (r *CredentialRepository) remove(ctx context.Context, table, resource string, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return translate(err, "delete", resource, id)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "delete", resource, id)
	}
	return nil
}

// CreateSSHKey inserts a key. A duplicate fingerprint is a conflict.
func (r *CredentialRepository) CreateSSHKey(ctx context.Context, k *models.SSHKey) error {
	_, err := r.db.Exec(ctx, `INSERT INTO ssh_key (`+sshKeyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		k.ID, k.UserID, k.Title, k.PublicKey, k.Fingerprint, k.KeyType, k.ExpiresAt, k.LastUsedAt, k.CreatedAt)
	return translate(err, "create", "ssh key", k.Fingerprint)
}

// GetSSHKey retrieves a key by ID
func (r *CredentialRepository) GetSSHKey(ctx context.Context, id uuid.UUID) (*models.SSHKey, error) {
	k, err := scanSSHKey(r.db.QueryRow(ctx, `SELECT `+sshKeyColumns+` FROM ssh_key WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get", "ssh key", id)
	}
	return k, nil
}

// GetSSHKeyByFingerprint retrieves a key by its SHA256 fingerprint
func (r *CredentialRepository) GetSSHKeyByFingerprint(ctx context.Context, fingerprint string) (*models.SSHKey, error) {
	k, err := scanSSHKey(r.db.QueryRow(ctx, `SELECT `+sshKeyColumns+` FROM ssh_key WHERE fingerprint = $1`, fingerprint))
	if err != nil {
		return nil, translate(err, "get", "ssh key", fingerprint)
	}
	return k, nil
}

// ListSSHKeys returns the keys of a user, newest first
func (r *CredentialRepository) ListSSHKeys(ctx context.Context, userID string) ([]*models.SSHKey, error) {
	rows, err := r.db.Query(ctx, `SELECT `+sshKeyColumns+` FROM ssh_key WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ssh keys: %w", err)
	}
	keys, err := collect(rows, scanSSHKey)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ssh keys: %w", err)
	}
	return keys, nil
}

// DeleteSSHKey removes a key
func (r *CredentialRepository) DeleteSSHKey(ctx context.Context, id uuid.UUID) error {
	return r.remove(ctx, "ssh_key", "ssh key", id)
}

// TouchSSHKey records a successful verification
func (r *CredentialRepository) TouchSSHKey(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.touch(ctx, "ssh_key", id, at)
}

// CreateToken inserts a personal access token hash
func (r *CredentialRepository) CreateToken(ctx context.Context, t *models.PersonalAccessToken) error {
	_, err := r.db.Exec(ctx, `INSERT INTO personal_access_token (`+tokenColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.UserID, t.Name, t.TokenHash, t.TokenPrefix, textArray(t.Scopes), t.ExpiresAt, t.LastUsedAt, t.Revoked, t.RevokedAt, t.CreatedAt)
	return translate(err, "create", "token", t.ID)
}

// GetToken retrieves a token by ID
func (r *CredentialRepository) GetToken(ctx context.Context, id uuid.UUID) (*models.PersonalAccessToken, error) {
	t, err := scanToken(r.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM personal_access_token WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get", "token", id)
	}
	return t, nil
}

// ListTokens returns the tokens of a user, newest first
func (r *CredentialRepository) ListTokens(ctx context.Context, userID string) ([]*models.PersonalAccessToken, error) {
	rows, err := r.db.Query(ctx, `SELECT `+tokenColumns+` FROM personal_access_token WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	tokens, err := collect(rows, scanToken)
	if err != nil {
		return nil, fmt.Errorf("failed to scan tokens: %w", err)
	}
	return tokens, nil
}

// ListTokensByPrefix returns the verification candidates for a prefix
func (r *CredentialRepository) ListTokensByPrefix(ctx context.Context, prefix string) ([]*models.PersonalAccessToken, error) {
	rows, err := r.db.Query(ctx, `SELECT `+tokenColumns+` FROM personal_access_token WHERE token_prefix = $1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens by prefix: %w", err)
	}
	tokens, err := collect(rows, scanToken)
	if err != nil {
		return nil, fmt.Errorf("failed to scan tokens: %w", err)
	}
	return tokens, nil
}

// RevokeToken marks a token revoked
func (r *CredentialRepository) RevokeToken(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE personal_access_token SET revoked = TRUE, revoked_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return translate(err, "revoke", "token", id)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "revoke", "token", id)
	}
	return nil
}

// TouchToken records a successful verification
func (r *CredentialRepository) TouchToken(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.touch(ctx, "personal_access_token", id, at)
}

// CreateOAuthApp inserts an OAuth application
func (r *CredentialRepository) CreateOAuthApp(ctx context.Context, a *models.OAuthApplication) error {
	_, err := r.db.Exec(ctx, `INSERT INTO oauth_application (`+oauthColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.UserID, a.Name, a.Description, a.HomepageURL, a.ClientID, a.ClientSecretHash,
		textArray(a.RedirectURIs), textArray(a.Scopes), a.Active, a.LastUsedAt, a.CreatedAt, a.UpdatedAt)
	return translate(err, "create", "oauth application", a.ClientID)
}

// GetOAuthApp retrieves an application by ID
func (r *CredentialRepository) GetOAuthApp(ctx context.Context, id uuid.UUID) (*models.OAuthApplication, error) {
	a, err := scanOAuthApp(r.db.QueryRow(ctx, `SELECT `+oauthColumns+` FROM oauth_application WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get", "oauth application", id)
	}
	return a, nil
}

// GetOAuthAppByClientID retrieves an application by client id
func (r *CredentialRepository) GetOAuthAppByClientID(ctx context.Context, clientID string) (*models.OAuthApplication, error) {
	a, err := scanOAuthApp(r.db.QueryRow(ctx, `SELECT `+oauthColumns+` FROM oauth_application WHERE client_id = $1`, clientID))
	if err != nil {
		return nil, translate(err, "get", "oauth application", clientID)
	}
	return a, nil
}

// ListOAuthApps returns the applications of a user
func (r *CredentialRepository) ListOAuthApps(ctx context.Context, userID string) ([]*models.OAuthApplication, error) {
	rows, err := r.db.Query(ctx, `SELECT `+oauthColumns+` FROM oauth_application WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list oauth applications: %w", err)
	}
	apps, err := collect(rows, scanOAuthApp)
	if err != nil {
		return nil, fmt.Errorf("failed to scan oauth applications: %w", err)
	}
	return apps, nil
}

// UpdateOAuthApp writes every mutable field of an application
func (r *CredentialRepository) UpdateOAuthApp(ctx context.Context, a *models.OAuthApplication) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE oauth_application
		SET name = $2, description = $3, homepage_url = $4, client_secret_hash = $5,
		    redirect_uris = $6, scopes = $7, active = $8, updated_at = $9
		WHERE id = $1
	`, a.ID, a.Name, a.Description, a.HomepageURL, a.ClientSecretHash,
		textArray(a.RedirectURIs), textArray(a.Scopes), a.Active, a.UpdatedAt)
	if err != nil {
		return translate(err, "update", "oauth application", a.ID)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "update", "oauth application", a.ID)
	}
	return nil
}

// DeleteOAuthApp removes an application
func (r *CredentialRepository) DeleteOAuthApp(ctx context.Context, id uuid.UUID) error {
	return r.remove(ctx, "oauth_application", "oauth application", id)
}

// TouchOAuthApp records a successful client verification
func (r *CredentialRepository) TouchOAuthApp(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.touch(ctx, "oauth_application", id, at)
}

// InsertAudit appends an audit entry
func (r *CredentialRepository) InsertAudit(ctx context.Context, e *models.AuditLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_log (id, user_id, action, entity_type, entity_id, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.UserID, e.Action, e.EntityType, e.EntityID, jsonObject(e.Metadata), e.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}
