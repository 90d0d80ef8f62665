package rolegate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Client talks to the rolegate admin API.
type Client struct {
	serverAddr string
	apiKey     string
	failMode   string
	timeout    time.Duration
	httpClient *http.Client

	// Allowed checks are cached; rejections never are.
	cache        sync.Map
	cacheTTL     time.Duration
	cacheMaxSize int
	cacheCount   int64
	cacheMu      sync.Mutex

	logger *slog.Logger
}

type cacheEntry struct {
	response  *CheckResponse
	expiresAt time.Time
	createdAt time.Time
}

// NewClient creates a client. It reads ROLEGATE_* environment variables
// by default; options override them.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr:   envOrDefault("ROLEGATE_SERVER_ADDR", "http://127.0.0.1:8545"),
		apiKey:       os.Getenv("ROLEGATE_API_KEY"),
		failMode:     envOrDefault("ROLEGATE_FAIL_MODE", "closed"),
		timeout:      parseDurationEnv("ROLEGATE_TIMEOUT", 5*time.Second),
		cacheTTL:     parseDurationEnv("ROLEGATE_CACHE_TTL", 5*time.Second),
		cacheMaxSize: parseIntEnv("ROLEGATE_CACHE_MAX_SIZE", 1000),
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// Check asks whether req.Role allows the transaction. A rejection returns
// a *RejectedError. When the server is unreachable and the fail mode is
// "open", the transaction is reported allowed.
func (c *Client) Check(ctx context.Context, req CheckRequest) (*CheckResponse, error) {
	key := checkCacheKey(req)
	if resp, ok := c.getFromCache(key); ok {
		return resp, nil
	}

	var resp CheckResponse
	err := c.doRequest(ctx, http.MethodPost, "/admin/api/check", wireCheck{
		Role:   req.Role,
		wireTx: newWireTx(req.To, req.Value, req.Data, req.Operation),
	}, &resp)
	if err != nil {
		var unreachable *ServerUnreachableError
		if errors.As(err, &unreachable) && c.failMode == "open" {
			c.logger.Warn("rolegate server unreachable, failing open",
				"server_addr", c.serverAddr,
				"error", unreachable.Cause,
			)
			return &CheckResponse{Allowed: true, Reason: "server unreachable, fail-open"}, nil
		}
		return nil, err
	}

	c.putInCache(key, &resp)
	return &resp, nil
}

// Allowed is Check reduced to a boolean. Rejections are not errors.
func (c *Client) Allowed(ctx context.Context, req CheckRequest) (bool, error) {
	resp, err := c.Check(ctx, req)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			return false, nil
		}
		return false, err
	}
	return resp.Allowed, nil
}

// Exec executes the transaction through the avatar. A reverted inner call
// returns an *ExecFailedError when ShouldRevert is set and a response with
// Success false otherwise.
func (c *Client) Exec(ctx context.Context, req ExecRequest) (*ExecResponse, error) {
	var wire wireExecResponse
	err := c.doRequest(ctx, http.MethodPost, "/admin/api/exec", wireExec{
		Module:       req.Module,
		Role:         req.Role,
		ShouldRevert: req.ShouldRevert,
		wireTx:       newWireTx(req.To, req.Value, req.Data, req.Operation),
	}, &wire)

	var failed *ExecFailedError
	if errors.As(err, &failed) {
		return nil, failed
	}
	if err != nil {
		return nil, err
	}

	data, err := decodeHex(wire.ReturnData)
	if err != nil {
		return nil, fmt.Errorf("decode return data: %w", err)
	}
	return &ExecResponse{Role: wire.Role, Success: wire.Success, ReturnData: data}, nil
}

// Events lists recent events, newest first.
func (c *Client) Events(ctx context.Context, q EventQuery) ([]Event, error) {
	values := url.Values{}
	set := func(k, v string) {
		if v != "" {
			values.Set(k, v)
		}
	}
	set("kind", q.Kind)
	set("event", q.Event)
	set("module", q.Module)
	set("decision", q.Decision)
	if q.Role != nil {
		values.Set("role", strconv.Itoa(int(*q.Role)))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}

	path := "/admin/api/events"
	if len(values) > 0 {
		path += "?" + values.Encode()
	}
	var resp wireEvents
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// doRequest performs an HTTP request and maps error statuses to typed
// errors.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	target := strings.TrimRight(c.serverAddr, "/") + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &ServerUnreachableError{Cause: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return statusError(httpResp, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

func statusError(resp *http.Response, body []byte) error {
	switch resp.StatusCode {
	case http.StatusForbidden:
		var rej wireRejection
		if json.Unmarshal(body, &rej) == nil && rej.Reason != "" {
			return &RejectedError{Reason: rej.Reason, Message: rej.Error}
		}
	case http.StatusUnprocessableEntity:
		var out wireExecResponse
		if json.Unmarshal(body, &out) == nil {
			data, _ := decodeHex(out.ReturnData)
			return &ExecFailedError{Role: out.Role, ReturnData: data}
		}
	case http.StatusTooManyRequests:
		e := &RateLimitedError{Message: errorMessage(body)}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
		return e
	}
	return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

// checkCacheKey hashes every field the decision depends on.
func checkCacheKey(req CheckRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|", req.Role, strings.ToLower(req.To))
	if req.Value != nil {
		h.Write(req.Value.Bytes())
	}
	fmt.Fprintf(h, "|%s|", req.Operation)
	h.Write(req.Data)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) getFromCache(key string) (*CheckResponse, bool) {
	if c.cacheTTL <= 0 {
		return nil, false
	}
	val, ok := c.cache.Load(key)
	if !ok {
		return nil, false
	}
	entry := val.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		if _, loaded := c.cache.LoadAndDelete(key); loaded {
			c.cacheMu.Lock()
			c.cacheCount--
			c.cacheMu.Unlock()
		}
		return nil, false
	}
	return entry.response, true
}

func (c *Client) putInCache(key string, resp *CheckResponse) {
	if c.cacheTTL <= 0 || c.cacheMaxSize <= 0 {
		return
	}
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	// Drop expired entries first, then the oldest if still full.
	if c.cacheCount >= int64(c.cacheMaxSize) {
		now := time.Now()
		c.cache.Range(func(k, v any) bool {
			if now.After(v.(*cacheEntry).expiresAt) {
				if _, loaded := c.cache.LoadAndDelete(k); loaded {
					c.cacheCount--
				}
			}
			return true
		})

		if c.cacheCount >= int64(c.cacheMaxSize) {
			var oldest time.Time
			var oldestKey any
			c.cache.Range(func(k, v any) bool {
				entry := v.(*cacheEntry)
				if oldestKey == nil || entry.createdAt.Before(oldest) {
					oldest = entry.createdAt
					oldestKey = k
				}
				return true
			})
			if oldestKey != nil {
				c.cache.Delete(oldestKey)
				c.cacheCount--
			}
		}
	}

	now := time.Now()
	if _, loaded := c.cache.Swap(key, &cacheEntry{
		response:  resp,
		expiresAt: now.Add(c.cacheTTL),
		createdAt: now,
	}); !loaded {
		c.cacheCount++
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// parseDurationEnv accepts whole seconds or a time.ParseDuration string.
func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}

func parseIntEnv(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return defaultVal
}
