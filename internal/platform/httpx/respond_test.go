package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("pack 1: %w", ErrNotFound):       http.StatusNotFound,
		fmt.Errorf("bad: %w", ErrValidation):        http.StatusBadRequest,
		fmt.Errorf("pending: %w", ErrConflict):      http.StatusConflict,
		fmt.Errorf("backend down: %w", ErrUpstream): http.StatusBadGateway,
		fmt.Errorf("boom"):                          http.StatusInternalServerError,
	}
	for err, status := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, err)
		assert.Equal(t, status, rr.Code, err.Error())
		assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	}
}

func TestValidationProblemCarriesFields(t *testing.T) {
	rr := httptest.NewRecorder()
	ValidationProblem(rr, "Please fill in all required fields for Summary.", map[string]string{"summaryMonth": "Month is required"})

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, body.Status)
	assert.Equal(t, "about:blank", body.Type)
	assert.Equal(t, "Month is required", body.Errors["summaryMonth"])
}
