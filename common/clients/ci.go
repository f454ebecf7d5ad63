package clients

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/exprsn/platform/common/apperr"
)

// PipelineTrigger describes why a pipeline run is requested
type PipelineTrigger struct {
	RepositoryID  string `json:"repositoryId"`
	PullRequestID string `json:"pullRequestId,omitempty"`
	PRNumber      int    `json:"prNumber,omitempty"`
	Branch        string `json:"branch"`
	CommitSHA     string `json:"commitSha,omitempty"`
	Event         string `json:"event"`
	TriggeredBy   string `json:"triggeredBy,omitempty"`
}

// PipelineRun is the CI service's acknowledgement
type PipelineRun struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

// CIClient triggers pipeline runs on the CI service
type CIClient struct {
	baseURL string
	http    *HTTPClient
	logger  Logger
}

// NewCIClient creates a CI client
func NewCIClient(baseURL string, timeout time.Duration, logger Logger) *CIClient {
	return &CIClient{
		baseURL: baseURL,
		http:    NewHTTPClient(&http.Client{Timeout: timeout}, logger),
		logger:  logger,
	}
}

// TriggerPipeline starts a run of pipelineID
func (c *CIClient) TriggerPipeline(ctx context.Context, pipelineID string, t PipelineTrigger) (*PipelineRun, error) {
	url := fmt.Sprintf("%s/api/pipelines/%s/trigger", c.baseURL, pipelineID)

	var run PipelineRun
	if err := c.http.DoJSON(ctx, http.MethodPost, url, t, &run); err != nil {
		return nil, apperr.External("ci", err)
	}

	c.logger.Info("pipeline triggered",
		"pipeline_id", pipelineID,
		"run_id", run.RunID,
		"event", t.Event)
	return &run, nil
}
