package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventports "github.com/Apurer/worktrack/internal/domains/eventlog/ports"
	"github.com/Apurer/worktrack/internal/shared/command"
)

var errMissing = errors.New("thing not found")

func TestCommandMapper(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		detail string
	}{
		{"rejection", command.Reject("case %s is closed", "c-1"), http.StatusUnprocessableEntity, command.CodeValidationRejected, "case c-1 is closed"},
		{"wrapped rejection", fmt.Errorf("resolve: %w", command.Reject("no")), http.StatusUnprocessableEntity, command.CodeValidationRejected, "no"},
		{"conflict", fmt.Errorf("%w: expected 3, current 4", eventports.ErrConcurrencyConflict), http.StatusConflict, command.CodeConcurrencyConflict, "concurrency conflict: expected 3, current 4"},
		{"unknown", fmt.Errorf("%w: Teleport", command.ErrUnknownCommand), http.StatusBadRequest, command.CodeUnknownCommand, "unknown command: Teleport"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			problem, ok := CommandMapper(tc.err)
			require.True(t, ok)
			assert.Equal(t, tc.status, problem.Status)
			assert.Equal(t, tc.code, problem.Code)
			assert.Equal(t, tc.detail, problem.Detail)
		})
	}

	_, ok := CommandMapper(errors.New("disk full"))
	assert.False(t, ok)
}

func TestResponderFallsBackToInternal(t *testing.T) {
	r := NewResponder("", CommandMapper, NotFoundMapper(errMissing))

	assert.Equal(t, http.StatusNotFound, r.Problem(fmt.Errorf("%w: wi-9", errMissing)).Status)
	assert.Equal(t, command.CodeNotFound, r.Problem(errMissing).Code)

	internal := r.Problem(errors.New("disk full"))
	assert.Equal(t, http.StatusInternalServerError, internal.Status)
	assert.Empty(t, internal.Code)
}

func TestRespondWritesProblemJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/commands", nil)

	NewResponder("https://worktrack.dev", CommandMapper).RespondError(c, command.Reject("subject is required"))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, ContentTypeProblemJSON, rec.Header().Get("Content-Type"))
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://worktrack.dev"+TypeValidation, body.Type)
	assert.Equal(t, "validation_rejected", body.Code)
	assert.Equal(t, "subject is required", body.Detail)
	assert.Equal(t, "/v1/commands", body.Instance)
}
