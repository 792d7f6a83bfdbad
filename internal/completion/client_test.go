package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func testRequest(apiKey string) Request {
	return Request{
		Provider:    "chatgpt",
		APIKey:      apiKey,
		Model:       "gpt-4o",
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: 0.4,
	}
}

func TestComplete_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Hello!"}}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	msg, err := c.Complete(context.Background(), testRequest("test-key"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if msg.Role != "assistant" || msg.Content != "Hello!" {
		t.Errorf("message = %+v, want assistant/Hello!", msg)
	}
}

func TestComplete_DefaultsEmptyRole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"no role"}}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	msg, err := c.Complete(context.Background(), testRequest("test-key"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if msg.Role != "assistant" {
		t.Errorf("role = %q, want defaulted %q", msg.Role, "assistant")
	}
}

// TestComplete_NoCredential verifies that a missing key short-circuits
// before any network attempt.
func TestComplete_NoCredential(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Complete(context.Background(), testRequest("  "))
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("Complete = %v, want ErrNoCredential", err)
	}
	if hits.Load() != 0 {
		t.Errorf("server was contacted %d times despite missing credential", hits.Load())
	}
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Complete(context.Background(), testRequest("test-key")); err == nil {
		t.Fatal("Complete with no choices did not error")
	}
}

func TestComplete_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Complete(context.Background(), testRequest("test-key"))
	if err == nil {
		t.Fatal("Complete on 502 did not error")
	}
	if errors.Is(err, ErrNoCredential) {
		t.Error("transport error reported as credential error")
	}
}

func TestComplete_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{not json`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Complete(context.Background(), testRequest("test-key")); err == nil {
		t.Fatal("Complete on malformed body did not error")
	}
}

func TestComplete_RateLimitRetry(t *testing.T) {
	var attempt atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempt.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"recovered"}}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	msg, err := c.Complete(context.Background(), testRequest("test-key"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if msg.Content != "recovered" {
		t.Errorf("content = %q, want %q", msg.Content, "recovered")
	}
	if attempt.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempt.Load())
	}
}

func TestComplete_Headers(t *testing.T) {
	var gotProvider, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotProvider = r.Header.Get("X-API-Provider")
		gotKey = r.Header.Get("X-API-Key")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Complete(context.Background(), testRequest("secret")); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if gotProvider != "chatgpt" || gotKey != "secret" {
		t.Errorf("headers = (%q, %q), want (chatgpt, secret)", gotProvider, gotKey)
	}
}
