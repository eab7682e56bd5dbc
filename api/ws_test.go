package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"taskboard-api/domain"
	"taskboard-api/hub"
)

// wsStore is a minimal in-memory TaskStore for driving the full HTTP to
// websocket path.
type wsStore struct {
	tasks map[string]domain.Task
}

func newWSStore() *wsStore {
	return &wsStore{tasks: make(map[string]domain.Task)}
}

func (s *wsStore) InsertTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	s.tasks[t.ID] = t
	return t, nil
}

func (s *wsStore) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	return t, nil
}

func (s *wsStore) ListTasks(ctx context.Context, userID string, f domain.TaskFilter) ([]domain.Task, error) {
	var out []domain.Task
	for _, t := range s.tasks {
		if t.CreatorID == userID || t.AssignedToID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *wsStore) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	p.Apply(&t)
	t.UpdatedAt = time.Now().UTC()
	s.tasks[id] = t
	return t, nil
}

func (s *wsStore) DeleteTask(ctx context.Context, id string) (domain.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	delete(s.tasks, id)
	return t, nil
}

func (s *wsStore) ReorderTasks(ctx context.Context, ids []string) ([]domain.Task, error) {
	out := make([]domain.Task, 0, len(ids))
	for i, id := range ids {
		t, ok := s.tasks[id]
		if !ok {
			return nil, domain.ErrNotFound
		}
		t.Position = i
		s.tasks[id] = t
		out = append(out, t)
	}
	return out, nil
}

type wsFixture struct {
	srv   *httptest.Server
	hub   *hub.Hub
	auth  *Auth
	tasks *domain.TaskService
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	logger := testHandlerLogger()
	h := hub.New(logger)
	auth := NewAuth([]byte("test-secret"), time.Hour)
	service := domain.NewTaskService(newWSStore(), hub.LocalBroadcaster{Hub: h}, domain.ScopeRoom, logger)

	e := echo.New()
	Register(e, service, newMockUsers(), auth, h, logger)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return &wsFixture{srv: srv, hub: h, auth: auth, tasks: service}
}

func (f *wsFixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := f.auth.IssueToken(domain.User{ID: userID})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/ws?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func (f *wsFixture) join(t *testing.T, ws *websocket.Conn, userID string) {
	t.Helper()
	join := map[string]any{"event": domain.JoinUser, "data": userID}
	if err := ws.WriteJSON(join); err != nil {
		t.Fatalf("send join: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for f.hub.RoomSize(userID) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection never joined room %s", userID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, ws *websocket.Conn) domain.Event {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var ev domain.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func TestWebsocketRejectsBadToken(t *testing.T) {
	f := newWSFixture(t)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/ws?token=bad.token.here"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %+v", resp)
	}
}

func TestCreateTaskReachesJoinedClient(t *testing.T) {
	f := newWSFixture(t)
	ws := f.dial(t, "user-1")
	f.join(t, ws, "user-1")

	due := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	token, _ := f.auth.IssueToken(domain.User{ID: "user-1"})
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/tasks", strings.NewReader(`{"title":"ship it","dueDate":"`+due+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	ev := readEvent(t, ws)
	if ev.Name != domain.TaskCreated {
		t.Fatalf("expected %s, got %s", domain.TaskCreated, ev.Name)
	}
	task, err := ev.Task()
	if err != nil {
		t.Fatalf("decode task payload: %v", err)
	}
	if task.Title != "ship it" || task.AssignedToID != "user-1" {
		t.Fatalf("unexpected task payload: %+v", task)
	}
}

func TestEventsStayInsideRoom(t *testing.T) {
	f := newWSFixture(t)
	owner := f.dial(t, "user-1")
	f.join(t, owner, "user-1")
	other := f.dial(t, "user-2")
	f.join(t, other, "user-2")

	in := domain.NewTaskInput{Title: "private", DueDate: time.Now().Add(time.Hour)}
	if _, err := f.tasks.Create(context.Background(), in, "user-1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	ev := readEvent(t, owner)
	if ev.Name != domain.TaskCreated {
		t.Fatalf("owner expected %s, got %s", domain.TaskCreated, ev.Name)
	}

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatal("user-2 must not receive user-1 events")
	}
}

func TestJoinWithForeignUserIDIgnored(t *testing.T) {
	f := newWSFixture(t)
	ws := f.dial(t, "user-1")

	join := map[string]any{"event": domain.JoinUser, "data": "user-2"}
	if err := ws.WriteJSON(join); err != nil {
		t.Fatalf("send join: %v", err)
	}
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		if f.hub.RoomSize("user-2") != 0 {
			t.Fatal("foreign join must not be honored")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDeleteEventCarriesBareID(t *testing.T) {
	f := newWSFixture(t)
	ws := f.dial(t, "user-1")
	f.join(t, ws, "user-1")

	in := domain.NewTaskInput{Title: "doomed", DueDate: time.Now().Add(time.Hour)}
	created, err := f.tasks.Create(context.Background(), in, "user-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ev := readEvent(t, ws); ev.Name != domain.TaskCreated {
		t.Fatalf("expected created event first, got %s", ev.Name)
	}

	if err := f.tasks.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ev := readEvent(t, ws)
	if ev.Name != domain.TaskDeleted {
		t.Fatalf("expected %s, got %s", domain.TaskDeleted, ev.Name)
	}
	id, err := ev.TaskID()
	if err != nil {
		t.Fatalf("decode deleted payload: %v", err)
	}
	if id != created.ID {
		t.Fatalf("expected deleted id %s, got %s", created.ID, id)
	}
}
