package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func completionBody(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
		"usage": map[string]int{
			"prompt_tokens":     100,
			"completion_tokens": 50,
			"total_tokens":      150,
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestCompleteRoundTrip(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(completionBody(`{"insights": []}`)))
	}))
	defer srv.Close()

	c, err := NewHTTP("test-key", "test-model", nil, WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	raw, err := c.Complete(context.Background(), Request{System: "sys", User: "usr"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if string(raw) != `{"insights": []}` {
		t.Fatalf("content = %s", raw)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if u := c.TotalUsage(); u.TotalTokens != 150 {
		t.Fatalf("usage = %+v", u)
	}
}

func TestCompleteStripsFences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("```json\n{\"ok\": true}\n```")))
	}))
	defer srv.Close()

	c, _ := NewHTTP("k", "", nil, WithBaseURL(srv.URL))
	raw, err := c.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if string(raw) != `{"ok": true}` {
		t.Fatalf("content = %q", raw)
	}
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := NewHTTP("k", "", nil, WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), Request{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if !Retryable(err) {
		t.Fatal("429 should be retryable")
	}
}

func TestRetryableClassification(t *testing.T) {
	if Retryable(&APIError{Status: 400}) {
		t.Fatal("400 is permanent")
	}
	if !Retryable(&APIError{Status: 503}) {
		t.Fatal("503 is transient")
	}
	if Retryable(context.Canceled) {
		t.Fatal("cancellation is not retryable")
	}
	if !Retryable(context.DeadlineExceeded) {
		t.Fatal("deadline is transient")
	}
}

func TestNewHTTPRequiresKey(t *testing.T) {
	if _, err := NewHTTP("", "m", nil); err == nil {
		t.Fatal("want error for empty api key")
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n[1,2]\n```", `[1,2]`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tc := range cases {
		if got := StripFences(tc.in); got != tc.want {
			t.Errorf("StripFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
