package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const batch = `[
  {"code": "0", "info": {"productInfo": {"goods_id": "1001", "goods_name": "INAWLY Summer Maxi Dress",
    "skuList": [{"sku_code": "1001-S", "stock": 4, "price": {"salePrice": {"amount": "49.00"}}}]}}},
  {"code": "500"},
  {"code": "0", "info": {"productInfo": {"goods_id": "1003", "goods_name": "Acme Red Dress"}}}
]`

func writeBatch(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(batch), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (map[string]any, error) {
	t.Helper()
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("AWS_REGION", "us-east-1")

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()

	var out map[string]any
	if stdout.Len() > 0 {
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &out), stdout.String())
	}
	return out, err
}

func TestTransformCommand(t *testing.T) {
	out, err := execute(t, "transform", writeBatch(t))
	require.NoError(t, err)

	assert.Len(t, out["products"], 2)
	summary := out["summary"].(map[string]any)
	assert.Equal(t, float64(2), summary["success_count"])
	assert.Equal(t, float64(1), summary["skipped_count"])
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", writeBatch(t))
	require.NoError(t, err)

	assert.Equal(t, true, out["valid"])
	assert.Equal(t, float64(2), out["validCount"])
	assert.Equal(t, float64(1), out["invalidCount"])

	records := out["records"].([]any)
	require.Len(t, records, 3)
	bad := records[1].(map[string]any)
	assert.Equal(t, false, bad["valid"])
	assert.Equal(t, "unknown", bad["product_id"])
	assert.Equal(t, []any{"Product has non-success code: 500"}, bad["issues"])
	assert.Equal(t, "1003", records[2].(map[string]any)["product_id"])
}

func TestRunCommandWithMemoryBus(t *testing.T) {
	out, err := execute(t, "--bus", "memory", "run", "--correlation-id", "cli-1", "file://"+writeBatch(t))
	require.NoError(t, err)

	assert.Equal(t, float64(200), out["statusCode"])
	body := out["body"].(map[string]any)
	assert.Equal(t, "cli-1", body["correlationId"])
	pub := body["publishing"].(map[string]any)
	assert.Equal(t, float64(2), pub["published"])
}

func TestRunCommandMissingFileFails(t *testing.T) {
	out, err := execute(t, "--bus", "memory", "run", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Equal(t, float64(400), out["statusCode"])
}

func TestTransformRequiresArgument(t *testing.T) {
	_, err := execute(t, "transform")
	assert.Error(t, err)
}
