package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/exprsn/platform/common/apperr"
)

// WebhookClient posts JSON payloads to user-configured URLs
type WebhookClient struct {
	http   *HTTPClient
	logger Logger
}

// NewWebhookClient creates a webhook client whose every call is bounded by timeout
func NewWebhookClient(timeout time.Duration, logger Logger) *WebhookClient {
	return &WebhookClient{
		http:   NewHTTPClient(&http.Client{Timeout: timeout}, logger),
		logger: logger,
	}
}

// Post sends payload to url. Any non-2xx status is a delivery error.
func (c *WebhookClient) Post(ctx context.Context, url string, payload any) error {
	if err := c.http.DoJSON(ctx, http.MethodPost, url, payload, nil); err != nil {
		return apperr.Delivery(err, "webhook %s", url)
	}
	return nil
}
