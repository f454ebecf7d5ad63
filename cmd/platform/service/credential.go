package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/models"
	"github.com/exprsn/platform/common/ratelimit"
)

// Credential formats
const (
	TokenPrefix       = "exprsn_pat_"
	ClientIDPrefix    = "exprsn_oauth_"
	tokenHexLen       = 64
	clientIDHexLen    = 32
	secretHexLen      = 64
	lookupPrefixLen   = 8
	defaultBcryptCost = bcrypt.DefaultCost
)

// Throttle limits verification attempts per subject. *ratelimit.RateLimiter
// satisfies it.
type Throttle interface {
	Allow(ctx context.Context, scope ratelimit.Scope, subject string) (*ratelimit.RateLimitResult, error)
}

// CredentialService is the credential vault
type CredentialService struct {
	store      CredentialStore
	throttle   Throttle
	bcryptCost int
	log        *logger.Logger
	now        func() time.Time
}

// NewCredentialService creates a credential vault. throttle may be nil.
func NewCredentialService(store CredentialStore, throttle Throttle, bcryptCost int, log *logger.Logger) *CredentialService {
	if bcryptCost == 0 {
		bcryptCost = defaultBcryptCost
	}
	return &CredentialService{
		store:      store,
		throttle:   throttle,
		bcryptCost: bcryptCost,
		log:        log,
		now:        time.Now,
	}
}

// GeneratedToken carries the only copy of a token's plaintext
type GeneratedToken struct {
	Token     *models.PersonalAccessToken `json:"token"`
	Plaintext string                      `json:"plaintext"`
}

// OAuthAppInput is the mutable part of an OAuth application
type OAuthAppInput struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	HomepageURL  string   `json:"homepageUrl"`
	RedirectURIs []string `json:"redirectUris"`
	Scopes       []string `json:"scopes"`
	Active       *bool    `json:"active,omitempty"`
}

// OAuthCredentials carries the only copy of a client secret
type OAuthCredentials struct {
	Application  *models.OAuthApplication `json:"application"`
	ClientSecret string                   `json:"clientSecret"`
}

// SSH keys

// AddSSHKey parses an authorized_keys line and stores it under userID
func (s *CredentialService) AddSSHKey(ctx context.Context, userID, title, publicKey string, expiresAt *time.Time) (*models.SSHKey, error) {
	if strings.TrimSpace(title) == "" {
		return nil, apperr.Validation("title is required")
	}
	pub, keyType, err := parsePublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	fingerprint := ssh.FingerprintSHA256(pub)

	_, err = s.store.GetSSHKeyByFingerprint(ctx, fingerprint)
	switch {
	case err == nil:
		return nil, apperr.Conflict("ssh key already registered: %s", fingerprint)
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	key := &models.SSHKey{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       title,
		PublicKey:   strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub))),
		Fingerprint: fingerprint,
		KeyType:     keyType,
		ExpiresAt:   expiresAt,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateSSHKey(ctx, key); err != nil {
		return nil, err
	}

	s.audit(ctx, userID, "ssh_key.created", "ssh_key", key.ID.String(), map[string]any{"fingerprint": fingerprint, "keyType": keyType})
	s.log.Info("ssh key added", "user_id", userID, "fingerprint", fingerprint)
	return key, nil
}

// ListSSHKeys returns the keys of userID
func (s *CredentialService) ListSSHKeys(ctx context.Context, userID string) ([]*models.SSHKey, error) {
	return s.store.ListSSHKeys(ctx, userID)
}

// DeleteSSHKey removes a key owned by userID
func (s *CredentialService) DeleteSSHKey(ctx context.Context, userID string, id uuid.UUID) error {
	key, err := s.store.GetSSHKey(ctx, id)
	if err != nil {
		return err
	}
	if key.UserID != userID {
		return apperr.Forbidden("ssh key %s belongs to another user", id)
	}
	if err := s.store.DeleteSSHKey(ctx, id); err != nil {
		return err
	}

	s.audit(ctx, userID, "ssh_key.deleted", "ssh_key", id.String(), map[string]any{"fingerprint": key.Fingerprint})
	return nil
}

// VerifySSHKey authenticates a presented public key
func (s *CredentialService) VerifySSHKey(ctx context.Context, publicKey string) (*models.SSHKey, error) {
	pub, _, err := parsePublicKey(publicKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAuth, err, "invalid ssh key")
	}
	fingerprint := ssh.FingerprintSHA256(pub)
	if err := s.allow(ctx, ratelimit.ScopeSSHVerify, fingerprint); err != nil {
		return nil, err
	}

	key, err := s.store.GetSSHKeyByFingerprint(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Auth("invalid ssh key")
		}
		return nil, err
	}
	now := s.now().UTC()
	if expired(key.ExpiresAt, now) {
		return nil, apperr.Auth("ssh key expired")
	}

	if err := s.store.TouchSSHKey(ctx, key.ID, now); err != nil {
		s.log.Warn("failed to record ssh key use", "key_id", key.ID, "error", err)
	}
	key.LastUsedAt = &now
	return key, nil
}

func parsePublicKey(publicKey string) (ssh.PublicKey, string, error) {
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(strings.TrimSpace(publicKey)))
	if err != nil {
		return nil, "", apperr.Validation("invalid public key: %v", err)
	}

	switch t := pub.Type(); {
	case t == ssh.KeyAlgoRSA:
		return pub, models.KeyTypeRSA, nil
	case t == ssh.KeyAlgoED25519:
		return pub, models.KeyTypeEd25519, nil
	case strings.HasPrefix(t, "ecdsa-sha2-"):
		return pub, models.KeyTypeECDSA, nil
	default:
		return nil, "", apperr.Validation("unsupported key type: %s", t)
	}
}

// Personal access tokens

// GenerateToken creates a token. The plaintext is only ever in the result.
func (s *CredentialService) GenerateToken(ctx context.Context, userID, name string, scopes []string, expiresAt *time.Time) (*GeneratedToken, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperr.Validation("name is required")
	}
	now := s.now().UTC()
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, apperr.Validation("expiresAt must be in the future")
	}

	secret, err := randomHex(tokenHexLen / 2)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash token: %w", err)
	}
	if scopes == nil {
		scopes = []string{}
	}

	token := &models.PersonalAccessToken{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        name,
		TokenHash:   string(hash),
		TokenPrefix: secret[:lookupPrefixLen],
		Scopes:      scopes,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return nil, err
	}

	s.audit(ctx, userID, "token.created", "personal_access_token", token.ID.String(), map[string]any{"name": name, "scopes": scopes})
	s.log.Info("personal access token generated", "user_id", userID, "token_id", token.ID, "prefix", token.TokenPrefix)
	return &GeneratedToken{Token: token, Plaintext: TokenPrefix + secret}, nil
}

// ListTokens returns the tokens of userID without any secret material
func (s *CredentialService) ListTokens(ctx context.Context, userID string) ([]*models.PersonalAccessToken, error) {
	return s.store.ListTokens(ctx, userID)
}

// RevokeToken revokes a token owned by userID
func (s *CredentialService) RevokeToken(ctx context.Context, userID string, id uuid.UUID) error {
	token, err := s.store.GetToken(ctx, id)
	if err != nil {
		return err
	}
	if token.UserID != userID {
		return apperr.Forbidden("token %s belongs to another user", id)
	}
	if token.Revoked {
		return nil
	}
	if err := s.store.RevokeToken(ctx, id, s.now().UTC()); err != nil {
		return err
	}

	s.audit(ctx, userID, "token.revoked", "personal_access_token", id.String(), nil)
	return nil
}

// VerifyToken authenticates a presented token
func (s *CredentialService) VerifyToken(ctx context.Context, plaintext string) (*models.PersonalAccessToken, error) {
	secret, ok := strings.CutPrefix(plaintext, TokenPrefix)
	if !ok || len(secret) != tokenHexLen || !isHex(secret) {
		return nil, apperr.Auth("invalid token")
	}
	prefix := secret[:lookupPrefixLen]
	if err := s.allow(ctx, ratelimit.ScopePATVerify, prefix); err != nil {
		return nil, err
	}

	candidates, err := s.store.ListTokensByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	for _, t := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(t.TokenHash), []byte(secret)) != nil {
			continue
		}
		if t.Revoked {
			return nil, apperr.Auth("token revoked")
		}
		if expired(t.ExpiresAt, now) {
			return nil, apperr.Auth("token expired")
		}
		if err := s.store.TouchToken(ctx, t.ID, now); err != nil {
			s.log.Warn("failed to record token use", "token_id", t.ID, "error", err)
		}
		t.LastUsedAt = &now
		return t, nil
	}
	return nil, apperr.Auth("invalid token")
}

// OAuth applications

// RegisterOAuthApp creates an OAuth client. The secret is only ever in the
// result.
func (s *CredentialService) RegisterOAuthApp(ctx context.Context, userID string, in OAuthAppInput) (*OAuthCredentials, error) {
	if err := validateOAuthInput(in); err != nil {
		return nil, err
	}

	clientHex, err := randomHex(clientIDHexLen / 2)
	if err != nil {
		return nil, err
	}
	secret, hash, err := s.newSecret()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	app := &models.OAuthApplication{
		ID:               uuid.New(),
		UserID:           userID,
		Name:             in.Name,
		Description:      in.Description,
		HomepageURL:      in.HomepageURL,
		ClientID:         ClientIDPrefix + clientHex,
		ClientSecretHash: hash,
		RedirectURIs:     in.RedirectURIs,
		Scopes:           nonNil(in.Scopes),
		Active:           in.Active == nil || *in.Active,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateOAuthApp(ctx, app); err != nil {
		return nil, err
	}

	s.audit(ctx, userID, "oauth_app.created", "oauth_application", app.ID.String(), map[string]any{"clientId": app.ClientID})
	s.log.Info("oauth application registered", "user_id", userID, "client_id", app.ClientID)
	return &OAuthCredentials{Application: app, ClientSecret: secret}, nil
}

// ListOAuthApps returns the OAuth applications of userID
func (s *CredentialService) ListOAuthApps(ctx context.Context, userID string) ([]*models.OAuthApplication, error) {
	return s.store.ListOAuthApps(ctx, userID)
}

// UpdateOAuthApp replaces the mutable fields of an application
func (s *CredentialService) UpdateOAuthApp(ctx context.Context, userID string, id uuid.UUID, in OAuthAppInput) (*models.OAuthApplication, error) {
	if err := validateOAuthInput(in); err != nil {
		return nil, err
	}
	app, err := s.ownedOAuthApp(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	app.Name = in.Name
	app.Description = in.Description
	app.HomepageURL = in.HomepageURL
	app.RedirectURIs = in.RedirectURIs
	app.Scopes = nonNil(in.Scopes)
	if in.Active != nil {
		app.Active = *in.Active
	}
	app.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateOAuthApp(ctx, app); err != nil {
		return nil, err
	}

	s.audit(ctx, userID, "oauth_app.updated", "oauth_application", id.String(), map[string]any{"active": app.Active})
	return app, nil
}

// DeleteOAuthApp removes an application owned by userID
func (s *CredentialService) DeleteOAuthApp(ctx context.Context, userID string, id uuid.UUID) error {
	app, err := s.ownedOAuthApp(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteOAuthApp(ctx, id); err != nil {
		return err
	}

	s.audit(ctx, userID, "oauth_app.deleted", "oauth_application", id.String(), map[string]any{"clientId": app.ClientID})
	return nil
}

// RegenerateOAuthSecret replaces the client secret and returns the new one
func (s *CredentialService) RegenerateOAuthSecret(ctx context.Context, userID string, id uuid.UUID) (*OAuthCredentials, error) {
	app, err := s.ownedOAuthApp(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	secret, hash, err := s.newSecret()
	if err != nil {
		return nil, err
	}

	app.ClientSecretHash = hash
	app.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateOAuthApp(ctx, app); err != nil {
		return nil, err
	}

	s.audit(ctx, userID, "oauth_app.secret_regenerated", "oauth_application", id.String(), nil)
	return &OAuthCredentials{Application: app, ClientSecret: secret}, nil
}

// VerifyOAuthClient authenticates a client id and secret pair
func (s *CredentialService) VerifyOAuthClient(ctx context.Context, clientID, secret string) (*models.OAuthApplication, error) {
	if !strings.HasPrefix(clientID, ClientIDPrefix) || secret == "" {
		return nil, apperr.Auth("invalid client credentials")
	}
	if err := s.allow(ctx, ratelimit.ScopeOAuthVerify, clientID); err != nil {
		return nil, err
	}

	app, err := s.store.GetOAuthAppByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Auth("invalid client credentials")
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(app.ClientSecretHash), []byte(secret)) != nil {
		return nil, apperr.Auth("invalid client credentials")
	}
	if !app.Active {
		return nil, apperr.Auth("oauth application is disabled")
	}

	now := s.now().UTC()
	if err := s.store.TouchOAuthApp(ctx, app.ID, now); err != nil {
		s.log.Warn("failed to record oauth client use", "client_id", clientID, "error", err)
	}
	app.LastUsedAt = &now
	return app, nil
}

func (s *CredentialService) ownedOAuthApp(ctx context.Context, userID string, id uuid.UUID) (*models.OAuthApplication, error) {
	app, err := s.store.GetOAuthApp(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.UserID != userID {
		return nil, apperr.Forbidden("oauth application %s belongs to another user", id)
	}
	return app, nil
}

func (s *CredentialService) newSecret() (string, string, error) {
	secret, err := randomHex(secretHexLen / 2)
	if err != nil {
		return "", "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return secret, string(hash), nil
}

func validateOAuthInput(in OAuthAppInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation("name is required")
	}
	if len(in.RedirectURIs) == 0 {
		return apperr.Validation("at least one redirect URI is required")
	}
	for _, raw := range in.RedirectURIs {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return apperr.Validation("invalid redirect URI: %s", raw)
		}
	}
	return nil
}

// allow consults the throttle and fails open when it is unreachable
func (s *CredentialService) allow(ctx context.Context, scope ratelimit.Scope, subject string) error {
	if s.throttle == nil {
		return nil
	}
	res, err := s.throttle.Allow(ctx, scope, subject)
	if err != nil {
		s.log.Warn("rate limit check failed", "scope", scope, "error", err)
		return nil
	}
	if !res.Allowed {
		return apperr.Auth("too many verification attempts, retry in %ds", res.RetryAfterSeconds).
			WithDetails(map[string]any{"retryAfterSeconds": res.RetryAfterSeconds})
	}
	return nil
}

func (s *CredentialService) audit(ctx context.Context, userID, action, entityType, entityID string, metadata map[string]any) {
	entry := &models.AuditLog{
		ID:         uuid.New(),
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   metadata,
		Timestamp:  s.now().UTC(),
	}
	if err := s.store.InsertAudit(ctx, entry); err != nil {
		s.log.Error("failed to write audit entry", "action", action, "entity_id", entityID, "error", err)
	}
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

func expired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && !expiresAt.After(now)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
