package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"taskboard-api/domain"
)

type subscriberServer struct {
	srv    *httptest.Server
	joined chan string
	send   chan []byte
	ping   chan struct{}
}

// newSubscriberServer runs a minimal websocket endpoint: it records the
// first join frame and then forwards whatever bytes the test pushes into
// send, interleaved with ping frames requested through ping.
func newSubscriberServer(t *testing.T) *subscriberServer {
	t.Helper()
	s := &subscriberServer{
		joined: make(chan string, 1),
		send:   make(chan []byte, 16),
		ping:   make(chan struct{}, 16),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		var join domain.Event
		if err := ws.ReadJSON(&join); err != nil || join.Name != domain.JoinUser {
			return
		}
		var userID string
		json.Unmarshal(join.Data, &userID)
		s.joined <- userID

		for {
			select {
			case payload, ok := <-s.send:
				if !ok {
					return
				}
				if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case _, ok := <-s.ping:
				if !ok {
					return
				}
				if err := ws.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(time.Second)); err != nil {
					return
				}
			}
		}
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		close(s.send)
		s.srv.Close()
	})
	return s
}

func (s *subscriberServer) push(t *testing.T, name string, payload any) {
	t.Helper()
	ev, err := domain.NewEvent(name, "", payload)
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	s.send <- raw
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscriberJoinsAndApplies(t *testing.T) {
	server := newSubscriberServer(t)
	state := NewState()

	sub, err := Dial(context.Background(), server.srv.URL, "tok", "user-1", state, testSyncLogger())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sub.Close()

	select {
	case userID := <-server.joined:
		if userID != "user-1" {
			t.Fatalf("joined as %q, want user-1", userID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the join frame")
	}

	server.push(t, domain.TaskCreated, taskFixture("a", "pushed"))
	waitFor(t, "created task", func() bool { return state.Len() == 1 })

	updated := taskFixture("a", "pushed v2")
	server.push(t, domain.TaskUpdated, updated)
	waitFor(t, "updated task", func() bool {
		got, ok := state.Get("a")
		return ok && got.Title == "pushed v2"
	})

	server.push(t, domain.TaskDeleted, "a")
	waitFor(t, "deleted task", func() bool { return state.Len() == 0 })
}

func TestSubscriberIgnoresMalformedFrames(t *testing.T) {
	server := newSubscriberServer(t)
	state := NewState()

	sub, err := Dial(context.Background(), server.srv.URL, "tok", "user-1", state, testSyncLogger())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sub.Close()
	<-server.joined

	server.send <- []byte("not json at all")
	server.push(t, domain.TaskCreated, taskFixture("a", "after garbage"))

	waitFor(t, "task after malformed frame", func() bool { return state.Len() == 1 })
}

func TestSubscriberCloseStopsApplying(t *testing.T) {
	server := newSubscriberServer(t)
	state := NewState()

	sub, err := Dial(context.Background(), server.srv.URL, "tok", "user-1", state, testSyncLogger())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	<-server.joined

	if err := sub.Close(); err != nil {
		t.Logf("close: %v", err)
	}
	// Closing twice is safe.
	sub.Close()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit after close")
	}

	server.push(t, domain.TaskCreated, taskFixture("late", "stale"))
	time.Sleep(100 * time.Millisecond)
	if state.Len() != 0 {
		t.Fatal("event applied after close")
	}
}

func TestSubscriberAnswersPingsAndClosesCleanly(t *testing.T) {
	server := newSubscriberServer(t)
	state := NewState()

	sub, err := Dial(context.Background(), server.srv.URL, "tok", "user-1", state, testSyncLogger())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	<-server.joined

	// Interleave pings with events; the pong replies ride the read
	// goroutine while the test goroutine later writes the close frame.
	for i := 0; i < 5; i++ {
		server.ping <- struct{}{}
	}
	server.push(t, domain.TaskCreated, taskFixture("a", "between pings"))
	for i := 0; i < 5; i++ {
		server.ping <- struct{}{}
	}
	waitFor(t, "task between pings", func() bool { return state.Len() == 1 })

	if err := sub.Close(); err != nil {
		t.Logf("close: %v", err)
	}
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit after close")
	}
}

func TestSubscriberRejectedHandshake(t *testing.T) {
	server := newSubscriberServer(t)
	state := NewState()

	if _, err := Dial(context.Background(), server.srv.URL, "", "user-1", state, testSyncLogger()); err == nil {
		t.Fatal("expected dial to fail without a token")
	}
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{base: "http://localhost:8080", want: "ws://localhost:8080/api/ws?token=tok"},
		{base: "https://board.example.com/", want: "wss://board.example.com/api/ws?token=tok"},
	}
	for _, tt := range tests {
		got, err := websocketURL(tt.base, "tok")
		if err != nil {
			t.Fatalf("websocketURL(%q): %v", tt.base, err)
		}
		if got != tt.want {
			t.Fatalf("websocketURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
