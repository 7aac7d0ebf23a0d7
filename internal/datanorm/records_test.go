package datanorm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordsArray(t *testing.T) {
	recs, err := ParseRecords([]byte(`[{"code":"0"},{"code":"1"}]`))
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestParseRecordsWrapsObject(t *testing.T) {
	recs, err := ParseRecords([]byte(`{"code":"0","info":{"productInfo":{"goods_id":9007199254740993}}}`))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec, ok := AsRaw(recs[0])
	require.True(t, ok)
	info, ok := rec.Path("info", "productInfo")
	require.True(t, ok)
	assert.Equal(t, json.Number("9007199254740993"), info["goods_id"])
	assert.Equal(t, "9007199254740993", info.Str("goods_id"))
}

func TestParseRecordsInvalid(t *testing.T) {
	_, err := ParseRecords([]byte(`{"code":`))
	assert.Error(t, err)

	_, err = ParseRecords([]byte(`{} {}`))
	assert.Error(t, err)
}
