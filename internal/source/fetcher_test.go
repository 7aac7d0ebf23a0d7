package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/product-ingest/internal/pkg/httpretry"
	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
	"github.com/ignite/product-ingest/internal/pkg/logger"
	"github.com/ignite/product-ingest/internal/pkg/retry"
)

func instantPolicy() *retry.Policy {
	return DefaultPolicy(
		retry.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		retry.WithLogger(logger.New("test", io.Discard)),
	)
}

type fakeS3 struct {
	failures int
	calls    int
	bodies   map[string]string
	lastIn   *s3.GetObjectInput
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls++
	f.lastIn = in
	if f.calls <= f.failures {
		return nil, errors.New("SlowDown")
	}
	body, ok := f.bodies[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(body))}, nil
}

func TestS3FetcherReadsObject(t *testing.T) {
	api := &fakeS3{failures: 1, bodies: map[string]string{"raw/in/p.json": `[{"code":"0"}]`}}
	data, err := NewS3Fetcher(api, instantPolicy()).Get(context.Background(), "s3://raw/in/p.json")
	require.NoError(t, err)
	assert.Equal(t, `[{"code":"0"}]`, string(data))
	assert.Equal(t, 2, api.calls)
	assert.Equal(t, "in/p.json", aws.ToString(api.lastIn.Key))
}

func TestS3FetcherExhaustsAsServiceFailure(t *testing.T) {
	api := &fakeS3{failures: 10}
	_, err := NewS3Fetcher(api, instantPolicy()).Get(context.Background(), "s3://raw/p.json")

	var sf *ingesterr.ServiceFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, "s3", sf.Service)
	assert.Equal(t, "GetObject", sf.Operation)
	assert.Equal(t, "raw", sf.Fields()["bucket"])
	assert.True(t, ingesterr.IsRetryable(err))
	assert.Equal(t, 3, api.calls)
}

func TestS3FetcherRejectsOtherSchemes(t *testing.T) {
	api := &fakeS3{}
	_, err := NewS3Fetcher(api, instantPolicy()).Get(context.Background(), "https://x/y")
	var cf *ingesterr.ConfigurationFailure
	assert.ErrorAs(t, err, &cf)
	assert.Zero(t, api.calls)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			io.WriteString(w, `{"code":"0"}`)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(httpretry.NewRetryClient(srv.Client(), instantPolicy()))

	data, err := f.Get(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"0"}`, string(data))

	_, err = f.Get(context.Background(), srv.URL+"/missing")
	var cf *ingesterr.ConfigurationFailure
	assert.ErrorAs(t, err, &cf)

	_, err = f.Get(context.Background(), srv.URL+"/down")
	var sf *ingesterr.ServiceFailure
	assert.ErrorAs(t, err, &sf)
}

func TestFileFetcherAndRouter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p.json"), []byte(`[]`), 0o644))

	r := NewRouter().Register(FileFetcher{Root: dir}, SchemeFile)

	data, err := r.Get(context.Background(), "p.json")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	data, err = r.Get(context.Background(), "file://"+filepath.Join(dir, "p.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	_, err = r.Get(context.Background(), "missing.json")
	var cf *ingesterr.ConfigurationFailure
	assert.ErrorAs(t, err, &cf)
	assert.False(t, ingesterr.IsRetryable(err))

	_, err = r.Get(context.Background(), "s3://b/k")
	assert.ErrorAs(t, err, &cf)

	_, err = r.Get(context.Background(), "")
	assert.ErrorAs(t, err, &cf)
}

func TestFileFetcherStaysInsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "drop")
	require.NoError(t, os.Mkdir(root, 0o755))
	secret := filepath.Join(parent, "secret.json")
	require.NoError(t, os.WriteFile(secret, []byte(`[{"code":"0"}]`), 0o644))

	f := FileFetcher{Root: root}
	for _, loc := range []string{
		secret,
		"file://" + secret,
		"../secret.json",
		"file://../secret.json",
		"nested/../../secret.json",
		"/etc/passwd",
	} {
		t.Run(loc, func(t *testing.T) {
			data, err := f.Get(context.Background(), loc)
			assert.Nil(t, data)
			var cf *ingesterr.ConfigurationFailure
			require.ErrorAs(t, err, &cf)
			assert.Contains(t, cf.Error(), "outside the source root")
		})
	}

	// without a root the same path is readable
	data, err := FileFetcher{}.Get(context.Background(), secret)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"code":"0"}]`, string(data))
}

func TestFileFetcherRootDoesNotMatchSiblingPrefix(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "drop")
	require.NoError(t, os.Mkdir(root, 0o755))
	require.NoError(t, os.Mkdir(root+"-other", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root+"-other", "p.json"), []byte(`[]`), 0o644))

	_, err := FileFetcher{Root: root}.Get(context.Background(), filepath.Join(root+"-other", "p.json"))
	var cf *ingesterr.ConfigurationFailure
	assert.ErrorAs(t, err, &cf)
}
