package source

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/product-ingest/internal/pkg/httpretry"
	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
)

// HTTPFetcher GETs http(s) locators. Retries live in the doer, normally an
// *httpretry.RetryClient.
type HTTPFetcher struct {
	client httpretry.HTTPDoer
}

func NewHTTPFetcher(client httpretry.HTTPDoer) *HTTPFetcher {
	if client == nil {
		client = httpretry.NewRetryClient(nil, DefaultPolicy())
	}
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Get(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, ingesterr.NewConfigurationFailure("invalid url locator", "locator", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, httpFailure(locator, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, httpFailure(locator, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		cf := ingesterr.NewConfigurationFailure(fmt.Sprintf("source returned status %d", resp.StatusCode), "locator", nil)
		cf.With("locator", locator)
		return nil, cf
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, httpFailure(locator, fmt.Errorf("read body: %w", err))
	}
	return data, nil
}

func httpFailure(locator string, err error) error {
	sf := ingesterr.NewServiceFailure("http", "GET", err)
	sf.With("locator", locator)
	return sf
}
