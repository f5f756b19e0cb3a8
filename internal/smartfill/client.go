package smartfill

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/vipul43/tanksync-worker/internal/logging"
	"github.com/vipul43/tanksync-worker/internal/metrics"
)

const (
	ProtocolVersion = "2.0"
	MethodTankLevel = "Tank:Level"

	DefaultTimeout        = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 1000 * time.Millisecond

	maxErrorBodyLength = 512
)

// Config controls request timeout and retry behaviour. A zero Timeout means
// DefaultTimeout. Zero MaxRetries makes a single attempt and zero InitialBackoff
// retries without waiting; negative values select the defaults.
type Config struct {
	URL            string
	Timeout        time.Duration // per attempt
	MaxRetries     int           // additional attempts after the first
	InitialBackoff time.Duration // doubled after every failed attempt
}

// Payload is the tabular result of a Tank:Level call.
type Payload struct {
	Columns []string        `json:"columns"`
	Values  [][]interface{} `json:"values"`
}

// FetchResult is a successful Tank:Level response.
type FetchResult struct {
	Payload      *Payload
	ResponseTime time.Duration
	Attempts     int
}

type rpcRequest struct {
	JSONRPC    string        `json:"jsonrpc"`
	Method     string        `json:"method"`
	Parameters rpcParameters `json:"parameters"`
	ID         string        `json:"id"`
}

type rpcParameters struct {
	ClientReference string `json:"clientReference"`
	ClientSecret    string `json:"clientSecret"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
	newID      func() string
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.InitialBackoff < 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	return &Client{
		cfg: cfg,
		// Deadlines are applied per attempt through the request context.
		httpClient: &http.Client{},
		sleep:      sleepContext,
		newID:      uuid.NewString,
	}
}

// FetchTankLevels calls Tank:Level with the customer's credentials, retrying
// failed attempts with exponential backoff.
func (c *Client) FetchTankLevels(ctx context.Context, apiReference, apiSecret string) (*FetchResult, error) {
	start := time.Now()
	backoff := c.cfg.InitialBackoff
	attempts := c.cfg.MaxRetries + 1

	var lastErr *Error
	made := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		made = attempt
		payload, err := c.doAttempt(ctx, apiReference, apiSecret)
		if err == nil {
			metrics.RecordFetchAttempt("success")
			return &FetchResult{
				Payload:      payload,
				ResponseTime: time.Since(start),
				Attempts:     attempt,
			}, nil
		}

		lastErr = err
		metrics.RecordFetchAttempt(string(err.Kind))
		logging.Warn().
			Str("kind", string(err.Kind)).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Err(err).
			Msg("SmartFill request failed")

		if attempt == attempts {
			break
		}
		if sleepErr := c.sleep(ctx, backoff); sleepErr != nil {
			break
		}
		backoff *= 2
	}

	return nil, &FetchError{
		Last:     lastErr,
		Attempts: made,
		Elapsed:  time.Since(start),
	}
}

func (c *Client) doAttempt(ctx context.Context, apiReference, apiSecret string) (*Payload, *Error) {
	if err := ctx.Err(); err != nil {
		return nil, transportError(err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: ProtocolVersion,
		Method:  MethodTankLevel,
		Parameters: rpcParameters{
			ClientReference: apiReference,
			ClientSecret:    apiSecret,
		},
		ID: c.newID(),
	})
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	// Read under the attempt deadline so a late body counts as a timeout.
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Kind:       KindHTTP,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), maxErrorBodyLength)),
		}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, &Error{Kind: KindTransport, Message: fmt.Sprintf("failed to parse response: %v", err)}
	}

	if rpcResp.Error != nil {
		return nil, &Error{
			Kind:    KindAPI,
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
	}

	return decodePayload(rpcResp.Result), nil
}

// decodePayload returns an empty payload when result is not {columns, values}.
func decodePayload(raw json.RawMessage) *Payload {
	payload := &Payload{}
	if len(raw) == 0 {
		return payload
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		logging.Warn().Err(err).Msg("SmartFill result has unexpected shape, treating as empty")
		return &Payload{}
	}
	return payload
}

func transportError(err error) *Error {
	timeout := errors.Is(err, context.DeadlineExceeded)
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	msg := err.Error()
	if timeout {
		msg = fmt.Sprintf("request timed out: %v", err)
	}
	return &Error{Kind: KindTransport, Timeout: timeout, Message: msg, cause: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return strings.ToValidUTF8(s[:n], "") + "..."
}
