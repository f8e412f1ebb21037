package release

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultCheckTimeout = 12 * time.Second
	defaultUserAgent    = "xenoupdate"
	maxMetadataBytes    = 2 << 20
)

// Options configures metadata requests.
type Options struct {
	HTTPClient *http.Client
	// Timeout bounds a single metadata request. Zero means 12s.
	Timeout   time.Duration
	AuthToken string
	UserAgent string
	// ApprovalToken is looked for in the descriptor's rollout fields.
	ApprovalToken string
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return defaultCheckTimeout
}

func (o Options) userAgent() string {
	if ua := strings.TrimSpace(o.UserAgent); ua != "" {
		return ua
	}
	return defaultUserAgent
}

var errTooManyRedirects = errors.New("too many redirects")

// boundedClient returns a copy of base that refuses to follow more than
// MaxRedirects redirects.
func boundedClient(base *http.Client) *http.Client {
	c := &http.Client{}
	if base != nil {
		*c = *base
	}
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > MaxRedirects {
			return fmt.Errorf("%w (max %d)", errTooManyRedirects, MaxRedirects)
		}
		return nil
	}
	return c
}

func applyAuthHeader(req *http.Request, token string) {
	if req == nil {
		return
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// getJSON fetches url and decodes the body into out. An empty 2xx body leaves
// out untouched.
func getJSON(ctx context.Context, url, accept string, opts Options, out any) error {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &ResolutionError{URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", opts.userAgent())
	applyAuthHeader(req, opts.AuthToken)

	resp, err := boundedClient(opts.HTTPClient).Do(req)
	if err != nil {
		return &ResolutionError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return &ResolutionError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ResolutionError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status body=%s", strings.TrimSpace(string(body))),
		}
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ResolutionError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode JSON: %w", err)}
	}
	return nil
}
