package livesync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/conneroisu/postcard/internal/catalog"
	"github.com/conneroisu/postcard/internal/preview"
)

// HTTPFetcher reads render results from a running preview server.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// Fetch implements Fetcher. The server reports NotFound and render faults
// inside a 200 result; only transport failures are returned as errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, template, function string) (preview.Result, error) {
	var res preview.Result
	err := f.get(ctx, "/api/previews/"+url.PathEscape(template)+"/"+url.PathEscape(function), &res)
	return res, err
}

// Catalog reads the server's preview catalog.
func (f *HTTPFetcher) Catalog(ctx context.Context) (catalog.Catalog, error) {
	var body struct {
		Previews catalog.Catalog `json:"previews"`
	}
	if err := f.get(ctx, "/api/previews", &body); err != nil {
		return nil, err
	}
	return body.Previews, nil
}

func (f *HTTPFetcher) get(ctx context.Context, path string, v any) error {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	endpoint := strings.TrimRight(f.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: %s: %s", endpoint, resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", endpoint, err)
	}
	return nil
}

// ServiceFetcher renders in-process.
type ServiceFetcher struct {
	Service *preview.Service
}

// Fetch implements Fetcher. It never fails; render faults are part of the
// result.
func (f ServiceFetcher) Fetch(ctx context.Context, template, function string) (preview.Result, error) {
	return f.Service.Render(ctx, template, function), nil
}
