package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_UnwrapAndStatus(t *testing.T) {
	cause := errors.New("fork/exec: resource temporarily unavailable")
	appErr := InternalError("failed to start agent", cause)

	assert.ErrorIs(t, appErr, cause)
	assert.Contains(t, appErr.Error(), "INTERNAL_ERROR")
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(appErr))

	wrapped := fmt.Errorf("handler: %w", Conflict("already running"))
	assert.Equal(t, http.StatusConflict, GetHTTPStatus(wrapped))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("plain")))
}

func TestValidationError_CarriesDetails(t *testing.T) {
	appErr := ValidationError("Invalid request data",
		FieldError{Field: "channel_name", Tag: "required", Message: "channel_name is required"})

	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	assert.Len(t, appErr.Details, 1)
	assert.Equal(t, "channel_name", appErr.Details[0].Field)
}
