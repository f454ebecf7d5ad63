package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/exprsn/platform/common/apperr"
)

// SparkEvent is a real-time message fanned out to subscribers of Channel
type SparkEvent struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Data    any    `json:"data"`
}

// SparkClient publishes events to the real-time messaging service
type SparkClient struct {
	baseURL string
	http    *HTTPClient
	logger  Logger
}

// NewSparkClient creates a Spark client
func NewSparkClient(baseURL string, timeout time.Duration, logger Logger) *SparkClient {
	return &SparkClient{
		baseURL: baseURL,
		http:    NewHTTPClient(&http.Client{Timeout: timeout}, logger),
		logger:  logger,
	}
}

// Publish sends one event
func (c *SparkClient) Publish(ctx context.Context, channel, event string, data any) error {
	msg := SparkEvent{Channel: channel, Event: event, Data: data}
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/api/events/publish", msg, nil); err != nil {
		return apperr.External("spark", err)
	}
	c.logger.Debug("spark event published", "channel", channel, "event", event)
	return nil
}
