// internal/drivers/history.go
package drivers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxHistoryBody = 8 << 20

// HTTPClient é o GET one-shot usado para buscar histórico e snapshots
// nas câmeras.
type HTTPClient struct {
	client *http.Client
}

func NewHTTPClient(opts Options, timeout time.Duration) *HTTPClient {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if opts.TLS != nil {
		tr.TLSClientConfig = opts.TLS
	}
	return &HTTPClient{client: &http.Client{Timeout: timeout, Transport: tr}}
}

func (c *HTTPClient) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHistoryBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	return body, nil
}
