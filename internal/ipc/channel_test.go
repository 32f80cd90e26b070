package ipc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tabscribe/internal/model"
)

func waitFor[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	var zero T
	return zero
}

func TestHandleTypedMessage(t *testing.T) {
	c := NewChannel("events", SourceCapture, 8)
	defer c.Close()

	got := make(chan Ready, 1)
	Handle(c, func(m Ready) { got <- m })

	if err := Post(c, SourceCapture, Ready{SessionID: "s1"}); err != nil {
		t.Fatalf("post: %v", err)
	}
	if m := waitFor(t, got); m.SessionID != "s1" {
		t.Errorf("expected session s1, got %q", m.SessionID)
	}
}

func TestUnexpectedSourceIgnored(t *testing.T) {
	c := NewChannel("events", SourceCapture, 8)
	defer c.Close()

	got := make(chan Ready, 2)
	Handle(c, func(m Ready) { got <- m })

	_ = Post(c, SourceController, Ready{SessionID: "spoofed"})
	_ = Post(c, SourceCapture, Ready{SessionID: "real"})

	if m := waitFor(t, got); m.SessionID != "real" {
		t.Fatalf("expected only the capture-sourced envelope, got %q", m.SessionID)
	}
	select {
	case m := <-got:
		t.Fatalf("unexpected second delivery %q", m.SessionID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandlersFilterByAction(t *testing.T) {
	c := NewChannel("control", SourceController, 8)
	defer c.Close()

	starts := make(chan StartCapture, 1)
	stops := make(chan StopCapture, 1)
	Handle(c, func(m StartCapture) { starts <- m })
	Handle(c, func(m StopCapture) { stops <- m })

	_ = Post(c, SourceController, StopCapture{SessionID: "x"})
	if m := waitFor(t, stops); m.SessionID != "x" {
		t.Errorf("unexpected stop payload %+v", m)
	}
	select {
	case <-starts:
		t.Fatal("start handler must not see stop messages")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOrderPreservedWithinType(t *testing.T) {
	c := NewChannel("events", SourceCapture, 64)
	defer c.Close()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})
	Handle(c, func(m Started) {
		mu.Lock()
		order = append(order, m.SessionID)
		n := len(order)
		mu.Unlock()
		if n == 20 {
			close(done)
		}
	})

	for i := 0; i < 20; i++ {
		_ = Post(c, SourceCapture, Started{SessionID: string(rune('a' + i))})
	}
	waitFor(t, done)

	for i, id := range order {
		if id != string(rune('a'+i)) {
			t.Fatalf("out of order at %d: %v", i, order)
		}
	}
}

func TestDeliverNeverBlocks(t *testing.T) {
	c := NewChannel("events", SourceCapture, 1)
	defer c.Close()

	block := make(chan struct{})
	Handle(c, func(Ready) { <-block })
	defer close(block)

	// The first envelope occupies the dispatcher; the next fills the queue.
	_ = Post(c, SourceCapture, Ready{})
	time.Sleep(20 * time.Millisecond)
	_ = Post(c, SourceCapture, Ready{})

	start := time.Now()
	err := Post(c, SourceCapture, Ready{})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("Post blocked on a full queue")
	}
}

func TestDeliverAfterClose(t *testing.T) {
	c := NewChannel("events", SourceCapture, 1)
	c.Close()
	c.Close()
	if err := Post(c, SourceCapture, Ready{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestLinkRelaysBothDirections(t *testing.T) {
	serverEvents := NewChannel("server-events", SourceCapture, 8)
	serverControl := NewChannel("server-control", SourceController, 8)
	defer serverEvents.Close()
	defer serverControl.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := NewUpgrader(nil).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = NewLink(conn, serverEvents, serverControl).Run(r.Context())
	}))
	defer srv.Close()

	clientControl := NewChannel("client-control", SourceController, 8)
	clientEvents := NewChannel("client-events", SourceCapture, 8)
	defer clientControl.Close()
	defer clientEvents.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	link, err := Dial(ctx, url, clientControl, clientEvents)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	go func() { _ = link.Run(ctx) }()
	defer link.Close()

	starts := make(chan StartCapture, 1)
	Handle(clientControl, func(m StartCapture) { starts <- m })
	completed := make(chan Completed, 1)
	Handle(serverEvents, func(m Completed) { completed <- m })

	// Give both pumps time to register their taps.
	time.Sleep(50 * time.Millisecond)

	if err := Post(serverControl, SourceController, StartCapture{SessionID: "abc"}); err != nil {
		t.Fatalf("post control: %v", err)
	}
	if m := waitFor(t, starts); m.SessionID != "abc" {
		t.Fatalf("unexpected start %+v", m)
	}

	asset := model.NewRawMediaAsset([]byte("opus-bytes"), "audio/webm", "session.webm")
	if err := Post(clientEvents, SourceCapture, Completed{SessionID: "abc", Asset: asset}); err != nil {
		t.Fatalf("post event: %v", err)
	}
	m := waitFor(t, completed)
	if m.Asset == nil || string(m.Asset.Data) != "opus-bytes" || m.Asset.MimeType != "audio/webm" {
		t.Fatalf("asset not relayed intact: %+v", m.Asset)
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"https://capture.example.com", " http://localhost:5173/ "}
	tests := []struct {
		origin string
		list   []string
		want   bool
	}{
		{"", nil, true},
		{"https://capture.example.com", allowed, true},
		{"HTTPS://Capture.Example.com/", allowed, true},
		{"http://localhost:5173", allowed, true},
		{"https://evil.example", allowed, false},
		{"https://capture.example.com", nil, false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/capture/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := OriginAllowed(r, tt.list); got != tt.want {
			t.Errorf("OriginAllowed(%q, %v) = %v, want %v", tt.origin, tt.list, got, tt.want)
		}
	}
}
