package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompleteSendsRequest(t *testing.T) {
	var gotReq request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header, got %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("unexpected version header %q", r.Header.Get("anthropic-version"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"Focus on outcomes, not duties."}],"stop_reason":"end_turn"}`))
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model")
	c.SetTestTransport(server.URL)

	text, err := c.Complete(context.Background(), "be helpful", []Message{
		{Role: "user", Content: "how do I improve my resume?"},
	}, 512)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "Focus on outcomes, not duties." {
		t.Errorf("unexpected text %q", text)
	}

	if gotReq.Model != "test-model" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if gotReq.System != "be helpful" {
		t.Errorf("system = %q", gotReq.System)
	}
	if gotReq.MaxTokens != 512 {
		t.Errorf("max_tokens = %d", gotReq.MaxTokens)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
}

func TestCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	c := NewClient("k", "m")
	c.SetTestTransport(server.URL)

	_, err := c.Complete(context.Background(), "", nil, 64)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected apiError, got %T: %v", err, err)
	}
	if apiErr.status != http.StatusTooManyRequests || apiErr.kind != "rate_limit_error" {
		t.Errorf("unexpected apiError: %+v", apiErr)
	}
}

func TestCompleteMalformedResponse(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `this is not json`},
		{"empty content", `{"content":[],"stop_reason":"end_turn"}`},
		{"empty text", `{"content":[{"type":"text","text":""}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			c := NewClient("k", "m")
			c.SetTestTransport(server.URL)

			_, err := c.Complete(context.Background(), "", nil, 64)
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestCompleteTransportError(t *testing.T) {
	c := NewClient("k", "m")
	c.SetTestTransport("http://127.0.0.1:1") // nothing listens here

	_, err := c.Complete(context.Background(), "", nil, 64)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if !strings.Contains(err.Error(), "api call") {
		t.Errorf("unexpected error %v", err)
	}
}
