package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/exprsn/platform/common/apperr"
)

// Notification priorities understood by Herald
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Notification is an in-app notification for one user
type Notification struct {
	UserID   string         `json:"userId"`
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Priority string         `json:"priority,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Email is a templated email with optional link attachments
type Email struct {
	To          []string       `json:"to"`
	Subject     string         `json:"subject"`
	Template    string         `json:"template,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
}

// Attachment references a downloadable file
type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// HeraldClient talks to the notification service
type HeraldClient struct {
	baseURL string
	http    *HTTPClient
	logger  Logger
}

// NewHeraldClient creates a Herald client
func NewHeraldClient(baseURL string, timeout time.Duration, logger Logger) *HeraldClient {
	return &HeraldClient{
		baseURL: baseURL,
		http:    NewHTTPClient(&http.Client{Timeout: timeout}, logger),
		logger:  logger,
	}
}

// Notify sends an in-app notification
func (c *HeraldClient) Notify(ctx context.Context, n Notification) error {
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/api/notifications", n, nil); err != nil {
		return apperr.External("herald", err)
	}
	c.logger.Debug("notification sent", "user_id", n.UserID, "type", n.Type)
	return nil
}

// SendEmail dispatches an email through Herald's email gateway
func (c *HeraldClient) SendEmail(ctx context.Context, e Email) error {
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/api/email/send", e, nil); err != nil {
		return apperr.External("herald", err)
	}
	c.logger.Debug("email sent", "recipients", len(e.To), "subject", e.Subject)
	return nil
}
