package storage

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/product-ingest/internal/config"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func run(batch, locator string, offset time.Duration) RunRecord {
	return RunRecord{
		BatchID:       batch,
		CorrelationID: "corr-" + batch,
		Locator:       locator,
		StatusCode:    200,
		Succeeded:     2,
		Skipped:       1,
		Published:     2,
		StartedAt:     t0.Add(offset),
		DurationMS:    12.5,
	}
}

func TestMemoryStore(t *testing.T) {
	s, err := New(config.StorageConfig{Type: config.StorageMemory})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SaveRun(ctx, run("b1", "s3://raw/a.json", 0)))
	require.NoError(t, s.SaveRun(ctx, run("b2", "s3://raw/b.json", time.Minute)))
	require.NoError(t, s.SaveRun(ctx, run("b3", "s3://raw/a.json", 2*time.Minute)))

	got, err := s.GetRun(ctx, "b2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s3://raw/b.json", got.Locator)

	missing, err := s.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	runs, err := s.ListRuns(ctx, "s3://raw/a.json", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b3", runs[0].BatchID)
	assert.Equal(t, "b1", runs[1].BatchID)

	all, err := s.ListRuns(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []string{"b3", "b2"}, []string{all[0].BatchID, all[1].BatchID})
}

func TestLocalStoreReloads(t *testing.T) {
	cfg := config.StorageConfig{Type: config.StorageLocal, LocalPath: t.TempDir()}
	ctx := context.Background()

	first, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, first.SaveRun(ctx, run("b1", "file://x.json", 0)))

	second, err := New(cfg)
	require.NoError(t, err)
	got, err := second.GetRun(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "corr-b1", got.CorrelationID)
	assert.True(t, t0.Equal(got.StartedAt))
}

// fakeDynamo is a single table keyed by PK and SK.
type fakeDynamo struct {
	items map[string]map[string]map[string]types.AttributeValue
	err   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]map[string]types.AttributeValue{}}
}

func str(av types.AttributeValue) string {
	return av.(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	pk, sk := str(in.Item["PK"]), str(in.Item["SK"])
	if f.items[pk] == nil {
		f.items[pk] = map[string]map[string]types.AttributeValue{}
	}
	f.items[pk][sk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[str(in.Key["PK"])][str(in.Key["SK"])]}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	part := f.items[str(in.ExpressionAttributeValues[":pk"])]
	keys := make([]string, 0, len(part))
	for sk := range part {
		keys = append(keys, sk)
	}
	sort.Strings(keys)
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	}
	if in.Limit != nil && int(*in.Limit) < len(keys) {
		keys = keys[:*in.Limit]
	}
	out := &dynamodb.QueryOutput{}
	for _, k := range keys {
		out.Items = append(out.Items, part[k])
	}
	return out, nil
}

func TestDynamoStoreRoundTrip(t *testing.T) {
	db := newFakeDynamo()
	s := NewDynamoStore(db, "ingest-runs", 24*time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveRun(ctx, run("b"+strconv.Itoa(i), "s3://raw/a.json", time.Duration(i)*time.Minute)))
	}

	item := db.items["RUN#b1"]["RUN"]
	require.NotNil(t, item)
	ttl := item["TTL"].(*types.AttributeValueMemberN).Value
	assert.Equal(t, strconv.FormatInt(t0.Add(time.Minute+24*time.Hour).Unix(), 10), ttl)

	got, err := s.GetRun(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "corr-b1", got.CorrelationID)
	assert.Equal(t, 2, got.Published)
	assert.True(t, t0.Add(time.Minute).Equal(got.StartedAt))

	runs, err := s.ListRuns(ctx, "s3://raw/a.json", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b2", runs[0].BatchID)
	assert.Equal(t, "b1", runs[1].BatchID)
}

func TestDynamoStoreMissingAndErrors(t *testing.T) {
	db := newFakeDynamo()
	s := NewDynamoStore(db, "ingest-runs", 0)
	ctx := context.Background()

	got, err := s.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = s.ListRuns(ctx, "", 10)
	assert.Error(t, err)

	db.err = errors.New("throttled")
	assert.ErrorContains(t, s.SaveRun(ctx, run("b9", "s3://raw/a.json", 0)), "throttled")
	_, err = s.GetRun(ctx, "b9")
	assert.Error(t, err)
}
