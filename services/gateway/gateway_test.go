package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func newTestGateway(rt http.RoundTripper, maxInFlight int) *Gateway {
	return New(Config{
		MaxAttempts:    3,
		AttemptTimeout: time.Second,
		RequestTimeout: 5 * time.Second,
		MaxInFlight:    maxInFlight,
		BaseDelay:      time.Millisecond,
		MaxJitter:      time.Millisecond,
	}, &http.Client{Transport: rt})
}

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	var calls int32
	gw := newTestGateway(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		if req.Header.Get("X-Test") != "yes" {
			t.Errorf("expected X-Test header to be forwarded")
		}
		return jsonResponse(http.StatusOK, `{"ok":1}`), nil
	}), 2)

	header := http.Header{}
	header.Set("X-Test", "yes")
	resp, err := gw.Execute(context.Background(), Request{
		Provider: "weibo",
		Method:   http.MethodGet,
		URL:      "https://m.weibo.cn/api/container/getIndex",
		Header:   header,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 round trip, got %d", got)
	}
	if resp.Attempts != 1 {
		t.Fatalf("expected Attempts=1, got %d", resp.Attempts)
	}
	if resp.Provider != "weibo" {
		t.Fatalf("expected provider tag on response, got %q", resp.Provider)
	}
	if string(resp.Body) != `{"ok":1}` {
		t.Fatalf("unexpected body: %s", resp.Body)
	}
}

func TestExecuteRetriesTransientStatus(t *testing.T) {
	var calls int32
	gw := newTestGateway(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			return jsonResponse(http.StatusTooManyRequests, "slow down"), nil
		case 2:
			return jsonResponse(http.StatusBadGateway, "bad"), nil
		default:
			return jsonResponse(http.StatusOK, "ok"), nil
		}
	}), 2)

	resp, err := gw.Execute(context.Background(), Request{Method: http.MethodGet, URL: "https://example.com/feed"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 round trips, got %d", got)
	}
	if resp.Attempts != 3 {
		t.Fatalf("expected Attempts=3, got %d", resp.Attempts)
	}
}

func TestExecuteExhaustsRetryBudget(t *testing.T) {
	var calls int32
	gw := newTestGateway(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(http.StatusServiceUnavailable, "down"), nil
	}), 2)

	_, err := gw.Execute(context.Background(), Request{Method: http.MethodGet, URL: "https://example.com/feed"})
	if err == nil {
		t.Fatal("expected error")
	}
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if gwErr.Kind != KindRetriesExhausted {
		t.Fatalf("expected kind %q, got %q", KindRetriesExhausted, gwErr.Kind)
	}
	if gwErr.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", gwErr.Attempts)
	}
	if gwErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected last status 503, got %d", gwErr.StatusCode)
	}
	// The budget is exact: no extra round trips beyond MaxAttempts.
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected exactly 3 round trips, got %d", got)
	}
}

func TestExecuteDoesNotRetryClientError(t *testing.T) {
	var calls int32
	gw := newTestGateway(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(http.StatusNotFound, "gone"), nil
	}), 2)

	_, err := gw.Execute(context.Background(), Request{Method: http.MethodGet, URL: "https://example.com/feed"})
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if gwErr.Kind != KindHTTPStatus || gwErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected http_status 404, got %s %d", gwErr.Kind, gwErr.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("404 must not be retried, got %d round trips", got)
	}
}

func TestExecuteRetriesConnectionFailure(t *testing.T) {
	var calls int32
	gw := newTestGateway(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("connection refused")
		}
		return jsonResponse(http.StatusOK, "ok"), nil
	}), 2)

	resp, err := gw.Execute(context.Background(), Request{Method: http.MethodGet, URL: "https://example.com/feed"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if resp.Attempts != 3 {
		t.Fatalf("expected Attempts=3, got %d", resp.Attempts)
	}
}

func TestExecuteConnectionFailureExhausted(t *testing.T) {
	gw := newTestGateway(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}), 2)

	_, err := gw.Execute(context.Background(), Request{Method: http.MethodGet, URL: "https://example.com/feed"})
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if gwErr.Kind != KindRetriesExhausted {
		t.Fatalf("expected retries_exhausted, got %s", gwErr.Kind)
	}
	if gwErr.Err == nil || gwErr.Unwrap() == nil {
		t.Fatal("expected wrapped cause")
	}
}

func TestExecuteMalformedURL(t *testing.T) {
	var calls int32
	gw := newTestGateway(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(http.StatusOK, "ok"), nil
	}), 2)

	_, err := gw.Execute(context.Background(), Request{Method: http.MethodGet, URL: "://not-a-url"})
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if gwErr.Kind != KindConnectionFailed {
		t.Fatalf("expected connection_failed, got %s", gwErr.Kind)
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("malformed URL must not hit the network, got %d round trips", got)
	}
}

func TestExecuteCanceledContext(t *testing.T) {
	gw := newTestGateway(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return nil, req.Context().Err()
	}), 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.Execute(ctx, Request{Method: http.MethodGet, URL: "https://example.com/feed"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExecuteRequestTimeoutCapsRetryLoop(t *testing.T) {
	var trips int32
	gw := New(Config{
		MaxAttempts:    50,
		AttemptTimeout: time.Second,
		RequestTimeout: 200 * time.Millisecond,
		MaxInFlight:    2,
		BaseDelay:      25 * time.Millisecond,
		MaxJitter:      time.Millisecond,
	}, &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&trips, 1)
		return jsonResponse(503, `{"busy":true}`), nil
	})})

	start := time.Now()
	_, err := gw.Execute(context.Background(), Request{Method: http.MethodGet, URL: "https://example.com/feed"})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected an error once the request deadline passed")
	}
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if n := atomic.LoadInt32(&trips); n >= 50 || n == 0 {
		t.Fatalf("deadline should cut the attempt budget short, got %d trips", n)
	}
	if elapsed > 3*time.Second {
		t.Fatalf("request ran %v past its 200ms ceiling", elapsed)
	}
}

func TestExecuteCancelMidRetryStopsThatRequestOnly(t *testing.T) {
	var trips int32
	ctx, cancel := context.WithCancel(context.Background())

	gw := newTestGateway(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&trips, 1) == 2 {
			cancel()
			return jsonResponse(503, `{"busy":true}`), nil
		}
		if atomic.LoadInt32(&trips) > 2 {
			return jsonResponse(200, `{"ok":true}`), nil
		}
		return jsonResponse(503, `{"busy":true}`), nil
	}), 2)

	_, err := gw.Execute(ctx, Request{Method: http.MethodGet, URL: "https://example.com/feed"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := atomic.LoadInt32(&trips); n != 2 {
		t.Fatalf("cancellation should stop further attempts, got %d trips", n)
	}

	// Other requests are unaffected.
	resp, err := gw.Execute(context.Background(), Request{Method: http.MethodGet, URL: "https://example.com/feed"})
	if err != nil {
		t.Fatalf("fresh request should succeed after the cancel: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestExecuteBoundsConcurrency(t *testing.T) {
	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	gw := newTestGateway(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		current--
		mu.Unlock()
		return jsonResponse(http.StatusOK, "ok"), nil
	}), 2)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := gw.Execute(context.Background(), Request{Method: http.MethodGet, URL: "https://example.com/feed"}); err != nil {
				t.Errorf("Execute failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Fatalf("in-flight cap exceeded: peak %d", peak)
	}
}
