package ws

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GoCodeAlone/taskmaster/comms"
	"github.com/GoCodeAlone/taskmaster/internal/logging"
)

func TestHubForwardsBusMessages(t *testing.T) {
	bus := comms.NewInMemoryBus()
	hub := NewHub(logging.Discard())
	detach := hub.Attach(bus)
	defer detach()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeSSE))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if l := lines.Text(); strings.HasPrefix(l, "data: ") {
				return strings.TrimPrefix(l, "data: ")
			}
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return ""
	}

	if got := next(); !strings.Contains(got, "connected") {
		t.Fatalf("first event = %q", got)
	}
	if hub.Clients() != 1 {
		t.Errorf("expected 1 client, got %d", hub.Clients())
	}

	msg, err := comms.NewMessage(comms.TypeStatusChanged, "tasks", "3", map[string]string{"status": "done"})
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, msg); err != nil {
		t.Fatal(err)
	}

	var ev struct {
		Type    string            `json:"type"`
		Topic   string            `json:"topic"`
		Subject string            `json:"subject"`
		Payload map[string]string `json:"payload"`
	}
	if err := json.Unmarshal([]byte(next()), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != "status_changed" || ev.Topic != "tasks" || ev.Subject != "3" || ev.Payload["status"] != "done" {
		t.Errorf("event = %+v", ev)
	}
}

func TestBroadcastWithoutClients(t *testing.T) {
	hub := NewHub(logging.Discard())
	hub.Broadcast(Event{Type: "noop"})
	if hub.Clients() != 0 {
		t.Errorf("expected no clients, got %d", hub.Clients())
	}
}
