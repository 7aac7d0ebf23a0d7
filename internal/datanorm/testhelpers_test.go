package datanorm

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ignite/product-ingest/internal/pkg/logger"
	"github.com/ignite/product-ingest/internal/pkg/runctx"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testRun() runctx.Run {
	return runctx.New("corr-test", "batch-test", logger.New("test", io.Discard))
}

func testTransformer() *Transformer {
	return NewTransformer(Options{Now: func() time.Time { return fixedNow }})
}

func loadFixture(t *testing.T, name string) Raw {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	recs, err := ParseRecords(data)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec, ok := AsRaw(recs[0])
	require.True(t, ok)
	return rec
}

// mustRaw decodes an inline JSON record the same way production input is decoded.
func mustRaw(t *testing.T, js string) Raw {
	t.Helper()
	recs, err := ParseRecords([]byte(js))
	require.NoError(t, err)
	rec, ok := AsRaw(recs[0])
	require.True(t, ok)
	return rec
}
