package inference

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coachvault/coachd/internal/prompt"
)

func testGateway(t *testing.T, handler http.HandlerFunc, cfg Config) (*Gateway, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient("k", "m")
	c.SetTestTransport(server.URL)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGateway(c, cfg, logger), server
}

func testPrompt() prompt.Prompt {
	return prompt.Prompt{
		System:   "coach",
		Messages: []prompt.Message{{Role: "user", Content: "hi"}},
	}
}

func TestInferRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	g, _ := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"type":"overloaded_error","message":"busy"}}`))
			return
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}, Config{MaxRetries: 2, Backoff: time.Millisecond})

	text, err := g.Infer(context.Background(), testPrompt())
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if text != "ok" {
		t.Errorf("text = %q", text)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestInferExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	g, _ := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, Config{MaxRetries: 2, Backoff: time.Millisecond})

	_, err := g.Infer(context.Background(), testPrompt())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want MaxRetries+1 = 3", got)
	}
}

func TestInferDoesNotRetryMalformedResponse(t *testing.T) {
	var calls atomic.Int32
	g, _ := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"content":[]}`))
	}, Config{MaxRetries: 5, Backoff: time.Millisecond})

	_, err := g.Infer(context.Background(), testPrompt())
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want exactly 1", got)
	}
}

func TestInferDoesNotRetryClientRejection(t *testing.T) {
	var calls atomic.Int32
	g, _ := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad"}}`))
	}, Config{MaxRetries: 5, Backoff: time.Millisecond})

	_, err := g.Infer(context.Background(), testPrompt())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want exactly 1", got)
	}
}

func TestInferRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	g, _ := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}, Config{MaxRetries: 1, Backoff: time.Millisecond})

	if _, err := g.Infer(context.Background(), testPrompt()); err != nil {
		t.Fatalf("infer: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestInferPerAttemptTimeout(t *testing.T) {
	g, _ := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		// The server only observes the client's disconnect (and cancels
		// r.Context()) once the request body has been consumed; without
		// this drain the handler blocks forever and server.Close hangs.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}, Config{Timeout: 30 * time.Millisecond, MaxRetries: 1, Backoff: time.Millisecond})

	start := time.Now()
	_, err := g.Infer(context.Background(), testPrompt())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not enforced per attempt, took %v", elapsed)
	}
}

func TestInferStopsBackoffOnContextCancel(t *testing.T) {
	g, _ := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, Config{MaxRetries: 3, Backoff: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := g.Infer(ctx, testPrompt())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation did not interrupt backoff, took %v", elapsed)
	}
}
