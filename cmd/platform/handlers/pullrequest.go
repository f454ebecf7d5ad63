package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/exprsn/platform/cmd/platform/middleware"
	"github.com/exprsn/platform/cmd/platform/service"
	"github.com/exprsn/platform/common/models"
)

// PullRequestHandler exposes the pull-request engine
type PullRequestHandler struct {
	prs *service.PullRequestService
}

// NewPullRequestHandler creates a new pull request handler
func NewPullRequestHandler(prs *service.PullRequestService) *PullRequestHandler {
	return &PullRequestHandler{prs: prs}
}

// Create opens a pull request
// POST /git/api/repositories/:id/pulls
func (h *PullRequestHandler) Create(c echo.Context) error {
	repoID, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var in service.CreatePullRequestInput
	if err := bind(c, &in); err != nil {
		return err
	}

	pr, err := h.prs.Create(c.Request().Context(), repoID, middleware.GetUserID(c), in)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, pr)
}

// List returns pull requests, optionally filtered by ?state=
// GET /git/api/repositories/:id/pulls
func (h *PullRequestHandler) List(c echo.Context) error {
	repoID, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	prs, err := h.prs.List(c.Request().Context(), repoID, models.PRState(c.QueryParam("state")))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, prs)
}

// Get returns one pull request
// GET /git/api/repositories/:id/pulls/:number
func (h *PullRequestHandler) Get(c echo.Context) error {
	return h.withPR(c, h.prs.Get)
}

// MarkReady moves a draft to open
// POST /git/api/repositories/:id/pulls/:number/ready
func (h *PullRequestHandler) MarkReady(c echo.Context) error {
	return h.withPR(c, h.prs.MarkReady)
}

// Close closes an open or draft pull request
// POST /git/api/repositories/:id/pulls/:number/close
func (h *PullRequestHandler) Close(c echo.Context) error {
	return h.withPR(c, h.prs.Close)
}

type reviewersRequest struct {
	Reviewers []string `json:"reviewers"`
}

// RequestReview adds reviewers
// POST /git/api/repositories/:id/pulls/:number/reviewers
func (h *PullRequestHandler) RequestReview(c echo.Context) error {
	var req reviewersRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.withPR(c, func(ctx context.Context, repoID uuid.UUID, number int) (*models.PullRequest, error) {
		return h.prs.RequestReview(ctx, repoID, number, req.Reviewers)
	})
}

type reviewRequest struct {
	Status models.ReviewStatus `json:"status"`
}

// SubmitReview records the caller's verdict
// POST /git/api/repositories/:id/pulls/:number/reviews
func (h *PullRequestHandler) SubmitReview(c echo.Context) error {
	var req reviewRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.withPR(c, func(ctx context.Context, repoID uuid.UUID, number int) (*models.PullRequest, error) {
		return h.prs.SubmitReview(ctx, repoID, number, middleware.GetUserID(c), req.Status)
	})
}

type ciStatusRequest struct {
	Status models.CIStatus `json:"status"`
}

// UpdateCIStatus is the CI callback
// POST /git/api/repositories/:id/pulls/:number/ci-status
func (h *PullRequestHandler) UpdateCIStatus(c echo.Context) error {
	var req ciStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.withPR(c, func(ctx context.Context, repoID uuid.UUID, number int) (*models.PullRequest, error) {
		return h.prs.UpdateCIStatus(ctx, repoID, number, req.Status)
	})
}

type mergeRequest struct {
	Message string `json:"message"`
}

// Merge merges an open, mergeable pull request
// POST /git/api/repositories/:id/pulls/:number/merge
func (h *PullRequestHandler) Merge(c echo.Context) error {
	var req mergeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.withPR(c, func(ctx context.Context, repoID uuid.UUID, number int) (*models.PullRequest, error) {
		return h.prs.Merge(ctx, repoID, number, middleware.GetUserID(c), req.Message)
	})
}

func (h *PullRequestHandler) withPR(c echo.Context, fn func(context.Context, uuid.UUID, int) (*models.PullRequest, error)) error {
	repoID, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	number, err := pathInt(c, "number")
	if err != nil {
		return err
	}

	pr, err := fn(c.Request().Context(), repoID, number)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, pr)
}
