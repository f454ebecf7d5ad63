package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatchingThroughWrapping(t *testing.T) {
	err := fmt.Errorf("load migration: %w", NotFound("migration", "m1"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := IO(cause, "write %s", "entities/customer.json")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrIO)
	assert.Equal(t, "write entities/customer.json: disk full", err.Error())
}

func TestCustomCodeIsPreserved(t *testing.T) {
	err := &Error{Kind: KindValidation, Code: "UNKNOWN_ARTIFACT_KIND", Message: "unknown kind"}

	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "UNKNOWN_ARTIFACT_KIND", CodeOf(err))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestUnclassifiedErrorIsInternal(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.Nil(t, DetailsOf(err))
}

func TestDetails(t *testing.T) {
	err := Conflict("version mismatch").WithDetails(map[string]any{"type": "version_mismatch"})

	assert.Equal(t, "version_mismatch", DetailsOf(fmt.Errorf("wrapped: %w", err))["type"])
}
