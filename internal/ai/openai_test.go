package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// chatServer answers every chat completion with content.
func chatServer(t *testing.T, status int, content string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
			return
		}
		body, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   "gpt-4o-mini",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
		})
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return NewClient("test-key", srv.URL+"/v1", "")
}

func TestAnalyzeMissingWorkloadDefaultsEmpty(t *testing.T) {
	content := `{
		"attendance": {"present": ["Ana", "Ben"], "absent": []},
		"personalProgress": [{"name": "Ana", "completed": ["login page"], "inProgress": [], "blockers": []}],
		"actionItems": [{"task": "Ship beta", "owner": "Ben", "due": "Friday"}],
		"decisions": ["Freeze scope"],
		"summary": {"overview": "Sprint review.", "priorityTasks": ["Ship beta"], "keyPoints": []},
		"participants": ["Ana", "Ben"]
	}`
	c := chatServer(t, http.StatusOK, content)

	rec, err := c.Analyze(context.Background(), "Sprint review with Ana and Ben.")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if rec.Workload == nil || len(rec.Workload) != 0 {
		t.Fatalf("workload = %#v, want empty non-nil", rec.Workload)
	}
	out, _ := json.Marshal(rec)
	if !strings.Contains(string(out), `"workload":[]`) {
		t.Errorf("workload should serialize as [], got %s", out)
	}
	if len(rec.ActionItems) != 1 || rec.ActionItems[0].Owner != "Ben" {
		t.Errorf("unexpected action items %+v", rec.ActionItems)
	}
}

func TestAnalyzeMarkdownWrapped(t *testing.T) {
	c := chatServer(t, http.StatusOK, "```json\n{\"decisions\": [\"Go ahead\"]}\n```")
	rec, err := c.Analyze(context.Background(), "We decided to go ahead.")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(rec.Decisions) != 1 || rec.Decisions[0] != "Go ahead" {
		t.Errorf("unexpected decisions %+v", rec.Decisions)
	}
	if rec.Participants == nil || rec.PersonalProgress == nil {
		t.Error("missing fields must default to empty lists")
	}
}

func TestAnalyzeNotAnObject(t *testing.T) {
	c := chatServer(t, http.StatusOK, `["not", "an", "object"]`)
	if _, err := c.Analyze(context.Background(), "x"); err == nil {
		t.Fatal("expected error for non-object response")
	}
}

func TestAnalyzeUnauthorized(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			c := chatServer(t, status, "")
			_, err := c.Analyze(context.Background(), "x")
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
			if StatusOf(err) != status {
				t.Errorf("status = %d", StatusOf(err))
			}
		})
	}
}

func TestServerErrorIsNotUnauthorized(t *testing.T) {
	c := chatServer(t, http.StatusInternalServerError, "")
	_, err := c.Analyze(context.Background(), "x")
	if err == nil || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected a plain API error, got %v", err)
	}
}

func TestMissingKeyIsUnauthorized(t *testing.T) {
	c := NewClient("", "http://127.0.0.1:1/v1", "")
	if _, err := c.Translate(context.Background(), []byte(`{}`), "en"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTranslateReturnsContent(t *testing.T) {
	c := chatServer(t, http.StatusOK, `{"decisions": ["Freeze scope"]}`)
	out, err := c.Translate(context.Background(), []byte(`{"decisions": ["Congeler le périmètre"]}`), "en")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if string(out) != `{"decisions": ["Freeze scope"]}` {
		t.Errorf("unexpected output %s", out)
	}
}

func TestDetectContext(t *testing.T) {
	cases := map[string]string{
		"Our sprint deadline is Friday, the team agreed": "meeting",
		"In this lecture we explain the concept":         "lecture",
		"I wonder what to cook tonight":                  "thinking",
	}
	for in, want := range cases {
		if got := DetectContext(in); got != want {
			t.Errorf("DetectContext(%q) = %s, want %s", in, got, want)
		}
	}
}
