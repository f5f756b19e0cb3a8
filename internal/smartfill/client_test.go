package smartfill

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

func newTestClient(url string) (*Client, *[]time.Duration) {
	delays := &[]time.Duration{}
	c := NewClient(Config{URL: url, Timeout: time.Second, MaxRetries: 3, InitialBackoff: time.Second})
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
	c.newID = func() string { return "req-1" }
	return c, delays
}

func TestFetchTankLevels_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		var req rpcRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			return
		}
		if req.JSONRPC != "2.0" || req.Method != "Tank:Level" || req.ID != "req-1" {
			t.Errorf("unexpected request envelope: %+v", req)
		}
		if req.Parameters.ClientReference != "ref" || req.Parameters.ClientSecret != "secret" {
			t.Errorf("unexpected credentials: %+v", req.Parameters)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","result":{"columns":["Unit Number","Volume"],"values":[["U1",100],["U2","250.5"]]}}`))
	}))
	defer server.Close()

	client, delays := newTestClient(server.URL)
	result, err := client.FetchTankLevels(context.Background(), "ref", "secret")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}
	if len(*delays) != 0 {
		t.Errorf("expected no backoff, got %v", *delays)
	}
	if len(result.Payload.Columns) != 2 || len(result.Payload.Values) != 2 {
		t.Fatalf("unexpected payload: %+v", result.Payload)
	}
	if result.Payload.Values[1][1] != "250.5" {
		t.Errorf("expected raw string value to be preserved, got %v", result.Payload.Values[1][1])
	}
}

func TestFetchTankLevels_APIErrorRetriesWithBackoff(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":500,"message":"Internal error"}}`))
	}))
	defer server.Close()

	client, delays := newTestClient(server.URL)
	result, err := client.FetchTankLevels(context.Background(), "ref", "secret")
	if err == nil {
		t.Fatalf("expected error, got result %+v", result)
	}

	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Errorf("expected 4 attempts, got %d", got)
	}

	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*delays) != len(expected) {
		t.Fatalf("expected delays %v, got %v", expected, *delays)
	}
	for i, d := range expected {
		if (*delays)[i] != d {
			t.Errorf("delay %d: expected %s, got %s", i, d, (*delays)[i])
		}
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fetchErr.Attempts != 4 {
		t.Errorf("expected 4 attempts recorded, got %d", fetchErr.Attempts)
	}
	if fetchErr.Last.Kind != KindAPI || fetchErr.Last.Code != 500 || fetchErr.Last.Message != "Internal error" {
		t.Errorf("unexpected last error: %+v", fetchErr.Last)
	}
	if IsTransport(err) {
		t.Error("API error must not be classified as transport")
	}
}

func TestFetchTankLevels_HTTPErrorThenSuccess(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","result":{"columns":[],"values":[]}}`))
	}))
	defer server.Close()

	client, delays := newTestClient(server.URL)
	result, err := client.FetchTankLevels(context.Background(), "ref", "secret")
	if err != nil {
		t.Fatalf("expected success on retry, got %v", err)
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
	if len(*delays) != 1 || (*delays)[0] != time.Second {
		t.Errorf("expected single 1s backoff, got %v", *delays)
	}
}

func TestFetchTankLevels_HTTPErrorClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL)
	client.cfg.MaxRetries = 0

	_, err := client.FetchTankLevels(context.Background(), "ref", "secret")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fetchErr.Last.Kind != KindHTTP || fetchErr.Last.StatusCode != http.StatusUnauthorized {
		t.Errorf("unexpected classification: %+v", fetchErr.Last)
	}
	if fetchErr.Attempts != 1 {
		t.Errorf("expected 1 attempt with retries disabled, got %d", fetchErr.Attempts)
	}
}

func TestFetchTankLevels_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, _ := newTestClient(server.URL)
	client.cfg.Timeout = 50 * time.Millisecond
	client.cfg.MaxRetries = 1

	_, err := client.FetchTankLevels(context.Background(), "ref", "secret")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fetchErr.Last.Kind != KindTransport || !fetchErr.Last.Timeout {
		t.Errorf("expected transport timeout, got %+v", fetchErr.Last)
	}
	if !IsTransport(err) {
		t.Error("expected IsTransport to report true")
	}
}

func TestFetchTankLevels_CancelledDuringBackoff(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	client.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := client.FetchTankLevels(ctx, "ref", "secret")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected cancellation to stop retries after 1 call, got %d", got)
	}
	if fetchErr.Attempts != 1 {
		t.Errorf("expected 1 attempt recorded, got %d", fetchErr.Attempts)
	}
}

func TestFetchTankLevels_UnexpectedResultShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","result":"no tanks"}`))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL)
	result, err := client.FetchTankLevels(context.Background(), "ref", "secret")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Payload == nil || len(result.Payload.Columns) != 0 || len(result.Payload.Values) != 0 {
		t.Errorf("expected empty payload, got %+v", result.Payload)
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("expected nil for zero delay, got %v", err)
	}
}

func TestFetchTankLevels_ZeroConfigMakesSingleAttempt(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	if client.cfg.Timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %s", client.cfg.Timeout)
	}

	_, err := client.FetchTankLevels(context.Background(), "ref", "secret")
	if err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 attempt for zero MaxRetries, got %d", n)
	}

	defaults := NewClient(Config{URL: server.URL, MaxRetries: -1, InitialBackoff: -1})
	if defaults.cfg.MaxRetries != DefaultMaxRetries || defaults.cfg.InitialBackoff != DefaultInitialBackoff {
		t.Errorf("expected negative values to select defaults, got %+v", defaults.cfg)
	}
}

func TestFetchTankLevels_HTTPErrorBodyStaysValidUTF8(t *testing.T) {
	body := strings.Repeat("a", maxErrorBodyLength-1) + strings.Repeat("é", 20)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL)
	client.cfg.MaxRetries = 0

	_, err := client.FetchTankLevels(context.Background(), "ref", "secret")
	if err == nil {
		t.Fatal("expected error")
	}
	if !utf8.ValidString(err.Error()) {
		t.Errorf("error message is not valid UTF-8: %q", err.Error())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"ascii", "abcdef", 3, "abc..."},
		{"splits two-byte rune", "aé", 2, "a..."},
		{"splits three-byte rune", "ab€", 4, "ab..."},
		{"rune boundary", "aéb", 3, "aé..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
			}
		})
	}
}
