package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mixtape/internal/config"
)

// navidromeService asks a Navidrome server to rescan its library so new
// downloads show up without waiting for the scheduled scan.
type navidromeService struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func newNavidromeService(baseURL, apiKey string, timeout time.Duration) *navidromeService {
	return &navidromeService{
		endpoint: strings.TrimRight(baseURL, "/") + config.NavidromeScanEndpoint,
		apiKey:   strings.TrimSpace(apiKey),
		client:   &http.Client{Timeout: timeout},
	}
}

func (n *navidromeService) BatchFinished(ctx context.Context, _ Summary) error {
	return n.triggerScan(ctx)
}

func (n *navidromeService) TestNotification(ctx context.Context) error {
	return n.triggerScan(ctx)
}

func (n *navidromeService) triggerScan(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, nil)
	if err != nil {
		return fmt.Errorf("build navidrome request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("X-API-Key", n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("trigger navidrome scan: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("navidrome returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
