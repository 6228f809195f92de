package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/flover-luffy/newboy/models"
)

const (
	defaultMaxAttempts    = 3
	defaultAttemptTimeout = 15 * time.Second
	defaultRequestTimeout = 60 * time.Second
	defaultMaxInFlight    = 4
	defaultBaseDelay      = 500 * time.Millisecond
	defaultMaxJitter      = 250 * time.Millisecond

	maxBodyBytes = 8 << 20
)

// ErrorKind classifies transport failures for the caller.
type ErrorKind string

const (
	KindTimeout          ErrorKind = "timeout"
	KindConnectionFailed ErrorKind = "connection_failed"
	KindHTTPStatus       ErrorKind = "http_status"
	KindRetriesExhausted ErrorKind = "retries_exhausted"
)

// Error is the gateway's classified transport failure. Transient failures are
// retried internally; an Error only reaches the caller once the budget is spent
// or the failure is known to be permanent.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("gateway: http status %d after %d attempt(s)", e.StatusCode, e.Attempts)
	case KindRetriesExhausted:
		return fmt.Sprintf("gateway: retries exhausted after %d attempt(s): %v", e.Attempts, e.Err)
	default:
		return fmt.Sprintf("gateway: %s after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Request describes one outbound HTTP call. The body, when present, is held
// as bytes so every retry attempt replays it identically.
type Request struct {
	Provider string
	Method   string
	URL      string
	Header   http.Header
	Body     []byte
}

// Config tunes retry, timeout and admission behavior.
type Config struct {
	// MaxAttempts is the total attempt budget per request, first try included.
	MaxAttempts int
	// AttemptTimeout bounds each individual attempt.
	AttemptTimeout time.Duration
	// RequestTimeout is the overall ceiling across all attempts and backoff.
	RequestTimeout time.Duration
	// MaxInFlight caps concurrent executions; excess callers queue FIFO.
	MaxInFlight int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = defaultAttemptTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = defaultMaxInFlight
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxJitter <= 0 {
		c.MaxJitter = defaultMaxJitter
	}
	return c
}

// Gateway executes outbound requests with bounded concurrency and a
// retry-with-backoff policy. It injects nothing: headers and cookies are
// entirely the caller's responsibility.
type Gateway struct {
	cfg        Config
	httpClient *http.Client
	sem        chan struct{}
}

// New constructs a gateway. A nil client falls back to a default transport
// without a client-level timeout; deadlines come from per-attempt contexts.
func New(cfg Config, client *http.Client) *Gateway {
	cfg = cfg.withDefaults()
	if client == nil {
		client = &http.Client{}
	}
	return &Gateway{
		cfg:        cfg,
		httpClient: client,
		sem:        make(chan struct{}, cfg.MaxInFlight),
	}
}

// Execute performs the request under the gateway's policy and returns the raw
// response. HTTP 429 and 5xx, connection failures and attempt timeouts are
// retried with exponential backoff and jitter; other 4xx and malformed URLs
// are not. Cancelling ctx stops further retries for this request only.
func (g *Gateway) Execute(ctx context.Context, req Request) (models.RawResponse, error) {
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		return models.RawResponse{}, &Error{Kind: KindConnectionFailed, Attempts: 0, Err: fmt.Errorf("malformed url: %w", err)}
	}

	// Admission: queue (FIFO) behind the in-flight cap rather than rejecting.
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return models.RawResponse{}, ctx.Err()
	}
	defer func() { <-g.sem }()

	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	var (
		attempts int
		lastKind ErrorKind
		lastCode int
		lastErr  error
		resp     models.RawResponse
	)

	err := retry.Do(
		func() error {
			attempts++
			r, kind, code, err := g.attempt(ctx, req)
			if err != nil {
				lastKind, lastCode, lastErr = kind, code, err
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(g.cfg.MaxAttempts)),
		retry.Delay(g.cfg.BaseDelay),
		retry.MaxJitter(g.cfg.MaxJitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return models.RawResponse{}, ctx.Err()
		}
		kind := lastKind
		if attempts >= g.cfg.MaxAttempts && retry.IsRecoverable(err) {
			kind = KindRetriesExhausted
		}
		return models.RawResponse{}, &Error{Kind: kind, StatusCode: lastCode, Attempts: attempts, Err: lastErr}
	}

	resp.Attempts = attempts
	return resp, nil
}

// attempt runs one HTTP round trip under its own deadline and classifies the
// outcome. Transient classifications return plain errors so the retry loop
// keeps going; permanent ones are marked unrecoverable.
func (g *Gateway) attempt(ctx context.Context, req Request) (models.RawResponse, ErrorKind, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.AttemptTimeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL, body)
	if err != nil {
		return models.RawResponse{}, KindConnectionFailed, 0, retry.Unrecoverable(fmt.Errorf("build request: %w", err))
	}
	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			// Attempt deadline counts as transient for retry purposes.
			return models.RawResponse{}, KindTimeout, 0, fmt.Errorf("attempt timed out: %w", err)
		}
		if errors.Is(err, context.Canceled) {
			return models.RawResponse{}, KindConnectionFailed, 0, retry.Unrecoverable(err)
		}
		return models.RawResponse{}, KindConnectionFailed, 0, fmt.Errorf("connection failed: %w", err)
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return models.RawResponse{}, KindConnectionFailed, 0, fmt.Errorf("read body: %w", err)
	}

	if transientStatus(httpResp.StatusCode) {
		return models.RawResponse{}, KindHTTPStatus, httpResp.StatusCode,
			fmt.Errorf("transient http status %d", httpResp.StatusCode)
	}
	if httpResp.StatusCode >= 400 {
		return models.RawResponse{}, KindHTTPStatus, httpResp.StatusCode,
			retry.Unrecoverable(fmt.Errorf("http status %d", httpResp.StatusCode))
	}

	return models.RawResponse{
		Provider:   req.Provider,
		StatusCode: httpResp.StatusCode,
		Body:       payload,
		Header:     httpResp.Header.Clone(),
	}, "", httpResp.StatusCode, nil
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
