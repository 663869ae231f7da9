package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mailledger/internal/domain/fx"
)

const (
	DefaultBaseURL  = "https://api.exchangerate.host"
	DefaultName     = "exchangerate.host"
	defaultTimeout  = 15 * time.Second
	convertPath     = "/convert"
	maxErrorBodyLen = 512
	maxBodyLen      = 1 << 20
)

// Client fetches daily conversion rates from an exchangerate.host style
// /convert endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	name       string
	accessKey  string
}

var _ fx.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithName sets the provider name recorded with cached rates.
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithAccessKey adds the access_key query parameter to every request.
func WithAccessKey(key string) Option {
	return func(c *Client) { c.accessKey = key }
}

// NewClient creates a new exchange rate client
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: DefaultBaseURL,
		name:    DefaultName,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider name used in fx cache keys.
func (c *Client) Name() string {
	return c.name
}

// ConvertResponse is the subset of the /convert payload the client reads.
// Some deployments report the rate under info.rate, others only as the
// converted result of amount=1.
type ConvertResponse struct {
	Success *bool `json:"success,omitempty"`
	Info    struct {
		Rate *float64 `json:"rate"`
	} `json:"info"`
	Result *float64 `json:"result"`
	Error  any      `json:"error,omitempty"`
}

// rate returns info.rate, falling back to result.
func (r *ConvertResponse) rate() (float64, bool) {
	if r.Info.Rate != nil {
		return *r.Info.Rate, true
	}
	if r.Result != nil {
		return *r.Result, true
	}
	return 0, false
}

// Rate returns how much of quote one unit of base buys on date (YYYY-MM-DD).
func (c *Client) Rate(ctx context.Context, date, base, quote string) (float64, error) {
	q := url.Values{}
	q.Set("from", base)
	q.Set("to", quote)
	q.Set("amount", "1")
	q.Set("date", date)
	if c.accessKey != "" {
		q.Set("access_key", c.accessKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+convertPath+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyLen+1))
	if err != nil {
		return 0, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > maxBodyLen {
		return 0, fmt.Errorf("fx response exceeds %d bytes", maxBodyLen)
	}

	if resp.StatusCode != http.StatusOK {
		if len(body) > maxErrorBodyLen {
			body = body[:maxErrorBodyLen]
		}
		return 0, fmt.Errorf("fx request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var convResp ConvertResponse
	if err := json.Unmarshal(body, &convResp); err != nil {
		return 0, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if convResp.Success != nil && !*convResp.Success {
		return 0, fmt.Errorf("fx API returned success=false: %v", convResp.Error)
	}

	rate, ok := convResp.rate()
	if !ok {
		return 0, fmt.Errorf("fx response carries no rate")
	}
	return rate, nil
}
