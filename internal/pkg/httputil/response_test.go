package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestJSONSetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]string{"status": "healthy"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestDecodeRejectsBadJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{nope"))

	var dst map[string]any
	assert.False(t, Decode(rec, req, &dst))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "invalid JSON")
}

func TestFailureStatusFollowsClassification(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"configuration", ingesterr.NewConfigurationFailure("bad locator", "locator", nil), http.StatusBadRequest, "ConfigurationFailure"},
		{"service", ingesterr.NewServiceFailure("s3", "GetObject", errors.New("timeout")), http.StatusInternalServerError, "ServiceFailure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Failure(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			body := decodeBody(t, rec)
			errMap, ok := body["error"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.kind, errMap["error_type"])
		})
	}
}

func TestFailureHidesUnclassifiedErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	Failure(rec, errors.New("secret dsn in here"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeBody(t, rec)["error"])
}
