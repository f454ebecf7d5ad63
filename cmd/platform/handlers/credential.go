package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/exprsn/platform/cmd/platform/middleware"
	"github.com/exprsn/platform/cmd/platform/service"
	"github.com/exprsn/platform/common/apperr"
)

// CredentialHandler exposes the credential vault
type CredentialHandler struct {
	vault *service.CredentialService
}

// NewCredentialHandler creates a new credential handler
func NewCredentialHandler(vault *service.CredentialService) *CredentialHandler {
	return &CredentialHandler{vault: vault}
}

type sshKeyRequest struct {
	Title     string     `json:"title"`
	PublicKey string     `json:"publicKey"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// AddSSHKey registers a public key for the caller
// POST /git/api/credentials/ssh-keys
func (h *CredentialHandler) AddSSHKey(c echo.Context) error {
	var req sshKeyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	key, err := h.vault.AddSSHKey(c.Request().Context(), middleware.GetUserID(c), req.Title, req.PublicKey, req.ExpiresAt)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, key)
}

// ListSSHKeys GET /git/api/credentials/ssh-keys
func (h *CredentialHandler) ListSSHKeys(c echo.Context) error {
	keys, err := h.vault.ListSSHKeys(c.Request().Context(), middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, keys)
}

// DeleteSSHKey DELETE /git/api/credentials/ssh-keys/:keyId
func (h *CredentialHandler) DeleteSSHKey(c echo.Context) error {
	id, err := pathUUID(c, "keyId")
	if err != nil {
		return err
	}
	if err := h.vault.DeleteSSHKey(c.Request().Context(), middleware.GetUserID(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type tokenRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// GenerateToken creates a personal access token. The plaintext is in this
// response only.
// POST /git/api/credentials/tokens
func (h *CredentialHandler) GenerateToken(c echo.Context) error {
	var req tokenRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	tok, err := h.vault.GenerateToken(c.Request().Context(), middleware.GetUserID(c), req.Name, req.Scopes, req.ExpiresAt)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, tok)
}

// ListTokens GET /git/api/credentials/tokens
func (h *CredentialHandler) ListTokens(c echo.Context) error {
	tokens, err := h.vault.ListTokens(c.Request().Context(), middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, tokens)
}

// RevokeToken DELETE /git/api/credentials/tokens/:tokenId
func (h *CredentialHandler) RevokeToken(c echo.Context) error {
	id, err := pathUUID(c, "tokenId")
	if err != nil {
		return err
	}
	if err := h.vault.RevokeToken(c.Request().Context(), middleware.GetUserID(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// RegisterOAuthApp POST /git/api/credentials/oauth-apps
func (h *CredentialHandler) RegisterOAuthApp(c echo.Context) error {
	var in service.OAuthAppInput
	if err := bind(c, &in); err != nil {
		return err
	}
	creds, err := h.vault.RegisterOAuthApp(c.Request().Context(), middleware.GetUserID(c), in)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, creds)
}

// ListOAuthApps GET /git/api/credentials/oauth-apps
func (h *CredentialHandler) ListOAuthApps(c echo.Context) error {
	apps, err := h.vault.ListOAuthApps(c.Request().Context(), middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, apps)
}

// UpdateOAuthApp PUT /git/api/credentials/oauth-apps/:appId
func (h *CredentialHandler) UpdateOAuthApp(c echo.Context) error {
	id, err := pathUUID(c, "appId")
	if err != nil {
		return err
	}
	var in service.OAuthAppInput
	if err := bind(c, &in); err != nil {
		return err
	}
	app, err := h.vault.UpdateOAuthApp(c.Request().Context(), middleware.GetUserID(c), id, in)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, app)
}

// DeleteOAuthApp DELETE /git/api/credentials/oauth-apps/:appId
func (h *CredentialHandler) DeleteOAuthApp(c echo.Context) error {
	id, err := pathUUID(c, "appId")
	if err != nil {
		return err
	}
	if err := h.vault.DeleteOAuthApp(c.Request().Context(), middleware.GetUserID(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// RegenerateOAuthSecret POST /git/api/credentials/oauth-apps/:appId/secret
func (h *CredentialHandler) RegenerateOAuthSecret(c echo.Context) error {
	id, err := pathUUID(c, "appId")
	if err != nil {
		return err
	}
	creds, err := h.vault.RegenerateOAuthSecret(c.Request().Context(), middleware.GetUserID(c), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, creds)
}

type verifyRequest struct {
	PublicKey    string `json:"publicKey"`
	Token        string `json:"token"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// Verify checks a credential for the git transport and OAuth server.
// :kind is ssh-key, token or oauth-client.
// POST /git/api/credentials/verify/:kind
func (h *CredentialHandler) Verify(c echo.Context) error {
	var req verifyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	switch c.Param("kind") {
	case "ssh-key":
		key, err := h.vault.VerifySSHKey(ctx, req.PublicKey)
		if err != nil {
			return err
		}
		return ok(c, http.StatusOK, map[string]any{"valid": true, "userId": key.UserID, "keyId": key.ID})
	case "token":
		tok, err := h.vault.VerifyToken(ctx, req.Token)
		if err != nil {
			return err
		}
		return ok(c, http.StatusOK, map[string]any{"valid": true, "userId": tok.UserID, "scopes": tok.Scopes})
	case "oauth-client":
		app, err := h.vault.VerifyOAuthClient(ctx, req.ClientID, req.ClientSecret)
		if err != nil {
			return err
		}
		return ok(c, http.StatusOK, map[string]any{"valid": true, "userId": app.UserID, "scopes": app.Scopes})
	default:
		return apperr.Validation("unknown credential kind: %s", c.Param("kind"))
	}
}
