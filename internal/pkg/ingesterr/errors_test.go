package ingesterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       Classified
		category  Category
		severity  Severity
		retryable bool
	}{
		{"validation", NewValidationIssue("bad code", "code", "0", "500"), CategoryValidation, SeverityLow, false},
		{"transformation", NewTransformationFailure("1001", "variants", errors.New("boom")), CategoryTransformation, SeverityMedium, false},
		{"data quality", NewDataQualityWarning("1001", []string{"no images"}), CategoryDataQuality, SeverityLow, false},
		{"service", NewServiceFailure("s3", "GetObject", errors.New("timeout")), CategoryService, SeverityHigh, true},
		{"configuration", NewConfigurationFailure("missing bucket", "bucket", nil), CategoryConfiguration, SeverityCritical, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category())
			assert.Equal(t, tt.severity, tt.err.Severity())
			assert.Equal(t, tt.retryable, tt.err.Retryable())
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestIsRetryableUnwraps(t *testing.T) {
	wrapped := fmt.Errorf("fetch: %w", NewServiceFailure("s3", "GetObject", nil))
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestErrorIncludesCause(t *testing.T) {
	err := NewServiceFailure("events", "PutEvents", errors.New("throttled"))
	assert.Equal(t, "events PutEvents failed: throttled", err.Error())
	assert.ErrorContains(t, err, "throttled")
	assert.Equal(t, "missing bucket", NewConfigurationFailure("missing bucket", "bucket", nil).Error())
}

func TestToMap(t *testing.T) {
	err := NewServiceFailure("events", "PutEvents", errors.New("throttled")).
		WithProgress(Progress{Published: 10, Failed: 15, Total: 25})
	m := ToMap(fmt.Errorf("publish: %w", err))

	assert.Equal(t, "ServiceFailure", m["error_type"])
	assert.Equal(t, "high", m["severity"])
	assert.Equal(t, "aws_service", m["category"])
	assert.Equal(t, true, m["retryable"])
	assert.Equal(t, "throttled", m["original_exception"])

	ctx, ok := m["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "events", ctx["aws_service"])
	assert.Equal(t, 10, ctx["published"])
	assert.Equal(t, 15, ctx["failed_count"])
	assert.Equal(t, 25, ctx["total"])
}

func TestToMapUnclassified(t *testing.T) {
	m := ToMap(errors.New("disk on fire"))
	assert.Equal(t, "disk on fire", m["message"])
	assert.NotContains(t, m, "retryable")
	assert.Nil(t, ToMap(nil))
}

func TestValidationIssueContext(t *testing.T) {
	err := NewValidationIssue("Missing productInfo", "info.productInfo", "object", nil)
	assert.Equal(t, "info.productInfo", err.Fields()["field_name"])
	assert.NotContains(t, err.Fields(), "actual_value")

	err.With("index", 3)
	assert.Equal(t, 3, err.Fields()["index"])
}
