package rolegate

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const testTarget = "0x00000000000000000000000000000000000000a1"

// unreachableAddr returns an address nothing listens on.
func unreachableAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := listener.Addr().String()
	listener.Close()
	return "http://" + addr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestCheckAllowed(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/api/check" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		writeJSON(w, http.StatusOK, CheckResponse{Allowed: true, Reason: "allowed"})
	}))
	defer server.Close()

	client := NewClient(WithServerAddr(server.URL), WithAPIKey("test-key"))

	resp, err := client.Check(context.Background(), CheckRequest{
		Role:      3,
		To:        testTarget,
		Value:     big.NewInt(255),
		Data:      []byte{0xa9, 0x05, 0x9c, 0xbb},
		Operation: OperationCall,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Allowed || resp.Reason != "allowed" {
		t.Errorf("response = %+v", resp)
	}

	want := map[string]any{
		"role":      float64(3),
		"to":        testTarget,
		"value":     "0xff",
		"data":      "0xa9059cbb",
		"operation": "call",
	}
	for k, v := range want {
		if received[k] != v {
			t.Errorf("body[%s] = %v, want %v", k, received[k], v)
		}
	}
}

func TestCheckOmitsEmptyFields(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		writeJSON(w, http.StatusOK, CheckResponse{Allowed: true, Reason: "allowed"})
	}))
	defer server.Close()

	client := NewClient(WithServerAddr(server.URL))
	if _, err := client.Check(context.Background(), CheckRequest{Role: 1, To: testTarget}); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"value", "data", "operation"} {
		if _, ok := received[k]; ok {
			t.Errorf("body has %q, want it omitted", k)
		}
	}
}

func TestCheckRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"allowed": false,
			"reason":  "parameter_greater_than_allowed",
			"error":   "parameter greater than allowed",
		})
	}))
	defer server.Close()

	client := NewClient(WithServerAddr(server.URL))
	_, err := client.Check(context.Background(), CheckRequest{Role: 1, To: testTarget})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("error = %v, want ErrRejected", err)
	}
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected *RejectedError, got %T", err)
	}
	if rejected.Reason != "parameter_greater_than_allowed" || rejected.Message == "" {
		t.Errorf("rejected = %+v", rejected)
	}

	allowed, err := client.Allowed(context.Background(), CheckRequest{Role: 1, To: testTarget})
	if err != nil || allowed {
		t.Errorf("Allowed() = %v, %v; want false, nil", allowed, err)
	}
}

func TestCheckCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, CheckResponse{Allowed: true, Reason: "allowed"})
	}))
	defer server.Close()

	client := NewClient(WithServerAddr(server.URL), WithCacheTTL(time.Minute))
	req := CheckRequest{Role: 1, To: testTarget, Data: []byte{1, 2, 3, 4}}

	for range 3 {
		if _, err := client.Check(context.Background(), req); err != nil {
			t.Fatal(err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}

	req.Data = []byte{1, 2, 3, 5}
	if _, err := client.Check(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	req.Role = 2
	if _, err := client.Check(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3 (different data and role miss the cache)", got)
	}
}

func TestCheckCacheExpiry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, CheckResponse{Allowed: true, Reason: "allowed"})
	}))
	defer server.Close()

	client := NewClient(WithServerAddr(server.URL), WithCacheTTL(50*time.Millisecond))
	req := CheckRequest{Role: 1, To: testTarget}

	_, _ = client.Check(context.Background(), req)
	time.Sleep(100 * time.Millisecond)
	_, _ = client.Check(context.Background(), req)

	if got := calls.Load(); got != 2 {
		t.Errorf("server calls = %d, want 2 after expiry", got)
	}
}

func TestCheckCacheMaxSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, CheckResponse{Allowed: true, Reason: "allowed"})
	}))
	defer server.Close()

	client := NewClient(WithServerAddr(server.URL), WithCacheTTL(time.Minute), WithCacheMaxSize(2))
	for i := range 5 {
		if _, err := client.Check(context.Background(), CheckRequest{Role: uint16(i), To: testTarget}); err != nil {
			t.Fatal(err)
		}
	}
	if client.cacheCount > 2 {
		t.Errorf("cacheCount = %d, want at most 2", client.cacheCount)
	}
}

func TestRejectionNotCached(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusForbidden, map[string]any{"allowed": false, "reason": "function_not_allowed"})
	}))
	defer server.Close()

	client := NewClient(WithServerAddr(server.URL), WithCacheTTL(time.Minute))
	req := CheckRequest{Role: 1, To: testTarget}
	_, _ = client.Check(context.Background(), req)
	_, _ = client.Check(context.Background(), req)

	if got := calls.Load(); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
}

func TestFailClosed(t *testing.T) {
	client := NewClient(
		WithServerAddr(unreachableAddr(t)),
		WithFailMode("closed"),
		WithTimeout(500*time.Millisecond),
	)

	_, err := client.Check(context.Background(), CheckRequest{Role: 1, To: testTarget})
	if !errors.Is(err, ErrServerUnreachable) {
		t.Fatalf("error = %v (%T), want ErrServerUnreachable", err, err)
	}
	var srvErr *ServerUnreachableError
	if !errors.As(err, &srvErr) || srvErr.Cause == nil {
		t.Errorf("expected *ServerUnreachableError with a cause, got %v", err)
	}
}

func TestFailOpen(t *testing.T) {
	client := NewClient(
		WithServerAddr(unreachableAddr(t)),
		WithFailMode("open"),
		WithTimeout(500*time.Millisecond),
	)

	resp, err := client.Check(context.Background(), CheckRequest{Role: 1, To: testTarget})
	if err != nil {
		t.Fatalf("fail-open should not return error, got: %v", err)
	}
	if !resp.Allowed {
		t.Errorf("fail-open should allow, got %+v", resp)
	}

	// Exec never fails open.
	if _, err := client.Exec(context.Background(), ExecRequest{Module: testTarget, To: testTarget}); !errors.Is(err, ErrServerUnreachable) {
		t.Errorf("Exec error = %v, want ErrServerUnreachable", err)
	}
}

func TestTimeoutIsUnreachable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(WithServerAddr(server.URL), WithTimeout(100*time.Millisecond), WithFailMode("closed"))
	_, err := client.Check(context.Background(), CheckRequest{Role: 1, To: testTarget})
	if !errors.Is(err, ErrServerUnreachable) {
		t.Errorf("error = %v, want ErrServerUnreachable", err)
	}
}

func TestExec(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/api/exec" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		writeJSON(w, http.StatusOK, map[string]any{"role": 2, "success": true, "return_data": "0x0102"})
	}))
	defer server.Close()

	client := NewClient(WithServerAddr(server.URL))
	role := uint16(2)
	resp, err := client.Exec(context.Background(), ExecRequest{
		Module:       "0x0000000000000000000000000000000000001111",
		Role:         &role,
		ShouldRevert: true,
		To:           testTarget,
		Data:         []byte{0xa9, 0x05, 0x9c, 0xbb},
	})
	if err != nil {
		t.Fatalf("Exec() error: %v", err)
	}
	if resp.Role != 2 || !resp.Success || len(resp.ReturnData) != 2 || resp.ReturnData[1] != 0x02 {
		t.Errorf("response = %+v", resp)
	}
	if received["role"] != float64(2) || received["should_revert"] != true || received["module"] == nil {
		t.Errorf("body = %v", received)
	}
}

func TestExecDefaultRoleOmitsRole(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		writeJSON(w, http.StatusOK, map[string]any{"role": 1, "success": false, "return_data": "0x"})
	}))
	defer server.Close()

	client := NewClient(WithServerAddr(server.URL))
	resp, err := client.Exec(context.Background(), ExecRequest{Module: testTarget, To: testTarget})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := received["role"]; ok {
		t.Errorf("body has role, want it omitted: %v", received)
	}
	if resp.Success || resp.ReturnData != nil {
		t.Errorf("response = %+v", resp)
	}
}

func TestErrorTypes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		header  string
		wantIs  error
		inspect func(t *testing.T, err error)
	}{
		{
			name:   "exec failed",
			status: http.StatusUnprocessableEntity,
			body:   map[string]any{"role": 4, "success": false, "return_data": "0xdead", "error": "module transaction failed"},
			wantIs: ErrExecFailed,
			inspect: func(t *testing.T, err error) {
				var failed *ExecFailedError
				if !errors.As(err, &failed) || failed.Role != 4 || len(failed.ReturnData) != 2 {
					t.Errorf("ExecFailedError = %+v", failed)
				}
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   map[string]any{"error": "rate limit exceeded"},
			header: "7",
			wantIs: ErrRateLimited,
			inspect: func(t *testing.T, err error) {
				var limited *RateLimitedError
				if !errors.As(err, &limited) || limited.RetryAfter != 7*time.Second {
					t.Errorf("RateLimitedError = %+v", limited)
				}
			},
		},
		{
			name:   "no default role",
			status: http.StatusForbidden,
			body:   map[string]any{"allowed": false, "reason": "no_default_role"},
			wantIs: ErrRejected,
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			body:   map[string]any{"error": "to is required"},
			inspect: func(t *testing.T, err error) {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 || apiErr.Message != "to is required" {
					t.Errorf("APIError = %+v", apiErr)
				}
			},
		},
		{
			name:   "forbidden without reason",
			status: http.StatusForbidden,
			body:   map[string]any{"error": "invalid admin key"},
			inspect: func(t *testing.T, err error) {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.StatusCode != 403 {
					t.Errorf("error = %v, want *APIError 403", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				writeJSON(w, tt.status, tt.body)
			}))
			defer server.Close()

			client := NewClient(WithServerAddr(server.URL))
			_, err := client.Exec(context.Background(), ExecRequest{Module: testTarget, To: testTarget, ShouldRevert: true})
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("error = %v, want %v", err, tt.wantIs)
			}
			if errors.Is(err, ErrServerUnreachable) {
				t.Errorf("HTTP error reported as unreachable: %v", err)
			}
			if tt.inspect != nil {
				tt.inspect(t, err)
			}
		})
	}
}

func TestEvents(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/api/events" || r.Method != http.MethodGet {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		query = r.URL.RawQuery
		writeJSON(w, http.StatusOK, map[string]any{
			"records": []map[string]any{
				{"id": "e2", "kind": "check", "event": "check", "role": 1, "decision": "deny", "reason": "function_not_allowed"},
				{"id": "e1", "kind": "role", "event": "scope_target", "role": 1, "target": testTarget},
			},
			"count": 2,
		})
	}))
	defer server.Close()

	client := NewClient(WithServerAddr(server.URL))
	role := uint16(1)
	events, err := client.Events(context.Background(), EventQuery{Role: &role, Kind: "check", Limit: 10})
	if err != nil {
		t.Fatalf("Events() error: %v", err)
	}
	if query != "kind=check&limit=10&role=1" {
		t.Errorf("query = %q", query)
	}
	if len(events) != 2 || events[0].ID != "e2" || events[0].Reason != "function_not_allowed" {
		t.Errorf("events = %+v", events)
	}
	if events[1].Role == nil || *events[1].Role != 1 || events[1].Target != testTarget {
		t.Errorf("events[1] = %+v", events[1])
	}
}

func TestEnvVarConfiguration(t *testing.T) {
	t.Setenv("ROLEGATE_SERVER_ADDR", "http://rolegate:9000")
	t.Setenv("ROLEGATE_API_KEY", "env-key")
	t.Setenv("ROLEGATE_FAIL_MODE", "open")
	t.Setenv("ROLEGATE_TIMEOUT", "3")
	t.Setenv("ROLEGATE_CACHE_TTL", "250ms")
	t.Setenv("ROLEGATE_CACHE_MAX_SIZE", "nope")

	c := NewClient()
	if c.serverAddr != "http://rolegate:9000" || c.apiKey != "env-key" || c.failMode != "open" {
		t.Errorf("client = %+v", c)
	}
	if c.timeout != 3*time.Second || c.cacheTTL != 250*time.Millisecond {
		t.Errorf("timeout/cacheTTL = %s/%s", c.timeout, c.cacheTTL)
	}
	if c.cacheMaxSize != 1000 {
		t.Errorf("cacheMaxSize = %d, want the default for an invalid value", c.cacheMaxSize)
	}

	c = NewClient(WithServerAddr("http://other"), WithFailMode("closed"))
	if c.serverAddr != "http://other" || c.failMode != "closed" {
		t.Errorf("options did not override env: %+v", c)
	}
}

func TestWithHTTPClient(t *testing.T) {
	var used atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, CheckResponse{Allowed: true, Reason: "allowed"})
	}))
	defer server.Close()

	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		used.Store(true)
		return http.DefaultTransport.RoundTrip(r)
	})}
	client := NewClient(WithServerAddr(server.URL), WithHTTPClient(hc))
	if _, err := client.Check(context.Background(), CheckRequest{Role: 1, To: testTarget}); err != nil {
		t.Fatal(err)
	}
	if !used.Load() {
		t.Error("custom http.Client was not used")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
