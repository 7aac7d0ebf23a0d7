package runctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewGeneratesIDs(t *testing.T) {
	r := New("", "", nil)
	assert.NotEmpty(t, r.CorrelationID)
	assert.NotEmpty(t, r.BatchID)
	assert.NotEqual(t, r.CorrelationID, r.BatchID)
	assert.NotNil(t, r.Logger())
}

func TestWithBatchKeepsCorrelation(t *testing.T) {
	r := New("corr-1", "batch-1", nil)
	next := r.WithBatch("batch-2")
	assert.Equal(t, "corr-1", next.CorrelationID)
	assert.Equal(t, "batch-2", next.BatchID)
	assert.Equal(t, "batch-1", r.BatchID)
}

func TestZeroRunLogger(t *testing.T) {
	var r Run
	assert.NotNil(t, r.Logger())
}
