package remote

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rawblock/babel-engine/internal/generator"
	"github.com/rawblock/babel-engine/pkg/models"
)

// Remote Page Source
//
// Thin HTTP client for a Babel mirror: GET {base}/pages/{address} returns
// the raw 3200-char page body. Every response is validated against the
// alphabet contract before it reaches the pipeline; a mirror that serves
// malformed pages is treated the same as one that is down.

// Config holds the mirror connection settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client fetches pages from a remote Babel mirror.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient builds a mirror client. The base URL must be absolute.
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("%w: invalid mirror URL %q", models.ErrInvalidConfig, cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	log.Printf("[Remote] Babel mirror configured at %s (timeout %s)", cfg.BaseURL, timeout)
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// FetchPage retrieves the page behind an address from the mirror. Every
// failure path (transport, status, malformed body) wraps ErrRemoteFetch
// so the pipeline can log and skip the candidate.
func (c *Client) FetchPage(ctx context.Context, address string) (string, error) {
	endpoint := c.baseURL + "/pages/" + url.PathEscape(address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrRemoteFetch, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrRemoteFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: mirror returned %d for %s", models.ErrRemoteFetch, resp.StatusCode, address)
	}

	// Bounded read: a page is exactly 3200 bytes, anything larger is junk.
	body, err := io.ReadAll(io.LimitReader(resp.Body, generator.PageLength+1))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrRemoteFetch, err)
	}

	page := string(body)
	if ok, reason := generator.ValidatePage(page); !ok {
		return "", fmt.Errorf("%w: malformed page for %s: %s", models.ErrRemoteFetch, address, reason)
	}
	return page, nil
}
