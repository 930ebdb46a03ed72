// Package indodax implements venue.Venue against the Indodax REST API.
package indodax

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"btc-dca-agent/internal/venue"
)

// DefaultBaseURL is the production API host.
const DefaultBaseURL = "https://indodax.com"

// Config holds client settings.
type Config struct {
	BaseURL         string
	APIKey          string
	SecretKey       string
	RateLimitPerSec float64
	Timeout         time.Duration
	RecvWindow      time.Duration
}

// Client is a rate-limited Indodax HTTP client.
type Client struct {
	baseURL    string
	apiKey     string
	secretKey  string
	recvWindow time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewClient creates a client. Zero values fall back to defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RecvWindow <= 0 {
		cfg.RecvWindow = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		recvWindow: cfg.RecvWindow,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), 1),
		now:        time.Now,
	}
}

// privateEnvelope is the common shape of /tapi responses.
type privateEnvelope struct {
	Success   int             `json:"success"`
	Return    json.RawMessage `json:"return"`
	Error     string          `json:"error"`
	ErrorCode string          `json:"error_code"`
}

// callPublic performs a GET against the public API and decodes the body into target.
func (c *Client) callPublic(ctx context.Context, op, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("indodax: create %s request: %w", op, err)
	}
	body, err := c.do(op, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return &venue.ExchangeError{Message: fmt.Sprintf("decode %s response: %v", op, err)}
	}
	return nil
}

// callPrivate performs a signed POST to /tapi and decodes the "return" object into target.
func (c *Client) callPrivate(ctx context.Context, method string, params url.Values, target any) error {
	if c.apiKey == "" || c.secretKey == "" {
		return &venue.AuthenticationError{Message: "indodax API key or secret not configured"}
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("method", method)
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
	payload := params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tapi", strings.NewReader(payload))
	if err != nil {
		return fmt.Errorf("indodax: create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Key", c.apiKey)
	req.Header.Set("Sign", sign(c.secretKey, payload))

	body, err := c.do(method, req)
	if err != nil {
		return err
	}

	var env privateEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &venue.ExchangeError{Message: fmt.Sprintf("decode %s response: %v", method, err)}
	}
	if env.Success != 1 {
		return classify(env.ErrorCode, env.Error)
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(env.Return, target); err != nil {
		return &venue.ExchangeError{Message: fmt.Sprintf("decode %s return: %v", method, err)}
	}
	return nil
}

// do waits for the limiter, executes req and maps transport and status failures.
func (c *Client) do(op string, req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, &venue.NetworkError{Op: op, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &venue.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &venue.NetworkError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &venue.RateLimitError{Message: fmt.Sprintf("%s: http 429", op)}
	case resp.StatusCode >= 500:
		return nil, &venue.NetworkError{Op: op, Err: fmt.Errorf("http %d: %s", resp.StatusCode, truncate(body))}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &venue.AuthenticationError{Message: fmt.Sprintf("%s: http %d", op, resp.StatusCode)}
	case resp.StatusCode >= 400:
		var env privateEnvelope
		if json.Unmarshal(body, &env) == nil && (env.Error != "" || env.ErrorCode != "") {
			return nil, classify(env.ErrorCode, env.Error)
		}
		return nil, &venue.ExchangeError{Code: strconv.Itoa(resp.StatusCode), Message: truncate(body)}
	}
	return body, nil
}

// classify maps an Indodax error code/message to the venue error taxonomy.
func classify(code, msg string) error {
	lower := strings.ToLower(code + " " + msg)
	switch {
	case strings.Contains(lower, "credential"),
		strings.Contains(lower, "bad_sign"),
		strings.Contains(lower, "invalid_key"),
		strings.Contains(lower, "permission"):
		return &venue.AuthenticationError{Message: msg}
	case strings.Contains(lower, "too_many_requests"),
		strings.Contains(lower, "rate limit"):
		return &venue.RateLimitError{Message: msg}
	case strings.Contains(lower, "insufficient"):
		return &venue.InsufficientFunds{Message: msg}
	case strings.Contains(lower, "minimum"),
		strings.Contains(lower, "invalid_pair"),
		strings.Contains(lower, "invalid amount"):
		return &venue.InvalidOrder{Message: msg}
	default:
		return &venue.ExchangeError{Code: code, Message: msg}
	}
}

// sign returns hex(HMAC-SHA512(secret, payload)).
func sign(secret, payload string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
