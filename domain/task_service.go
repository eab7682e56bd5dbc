package domain

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// TaskStore abstracts task persistence for the mutation service. The store
// owns createdAt/updatedAt maintenance; mutating methods return the record
// as persisted.
type TaskStore interface {
	InsertTask(ctx context.Context, t Task) (Task, error)
	GetTask(ctx context.Context, id string) (Task, error)
	ListTasks(ctx context.Context, userID string, f TaskFilter) ([]Task, error)
	UpdateTask(ctx context.Context, id string, p TaskPatch) (Task, error)
	DeleteTask(ctx context.Context, id string) (Task, error)
	ReorderTasks(ctx context.Context, ids []string) ([]Task, error)
}

// Publisher delivers an event towards the room named in the envelope.
// Delivery is best-effort; the service logs and swallows failures.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// BroadcastScope selects who receives task lifecycle events.
type BroadcastScope int

const (
	// ScopeRoom delivers events to the rooms of the users involved in the
	// task. This matches the ownership model and is the default.
	ScopeRoom BroadcastScope = iota
	// ScopeGlobal delivers every event to all connected clients.
	ScopeGlobal
)

// TaskService applies business rules to task mutations and is the single
// point that triggers broadcast events. Every mutation persists first and
// publishes second; a failed store call never produces an event.
type TaskService struct {
	store TaskStore
	pub   Publisher
	scope BroadcastScope
	log   *log.Logger
}

// NewTaskService wires a mutation service to its store and publisher.
func NewTaskService(store TaskStore, pub Publisher, scope BroadcastScope, logger *log.Logger) *TaskService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &TaskService{store: store, pub: pub, scope: scope, log: logger}
}

// Create persists a new task for creatorID. Status and position are forced
// to TODO and 0 regardless of input, and the assignee defaults to the
// creator.
func (s *TaskService) Create(ctx context.Context, in NewTaskInput, creatorID string) (Task, error) {
	if err := in.Validate(); err != nil {
		return Task{}, err
	}
	assignee := in.AssignedToID
	if assignee == "" {
		assignee = creatorID
	}
	t := Task{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Description:  in.Description,
		DueDate:      in.DueDate,
		Priority:     in.Priority,
		Status:       StatusTodo,
		Position:     0,
		CreatorID:    creatorID,
		AssignedToID: assignee,
	}
	created, err := s.store.InsertTask(ctx, t)
	if err != nil {
		return Task{}, err
	}
	s.broadcast(ctx, TaskCreated, created, created)
	return created, nil
}

// List returns the tasks where userID is creator or assignee, optionally
// narrowed by exact status and priority. Order is store-defined; callers
// re-sort through the board projection.
func (s *TaskService) List(ctx context.Context, userID string, f TaskFilter) ([]Task, error) {
	return s.store.ListTasks(ctx, userID, f)
}

// Update applies a partial patch and publishes the updated task.
func (s *TaskService) Update(ctx context.Context, id string, p TaskPatch) (Task, error) {
	if err := p.Validate(); err != nil {
		return Task{}, err
	}
	updated, err := s.store.UpdateTask(ctx, id, p)
	if err != nil {
		return Task{}, err
	}
	s.broadcast(ctx, TaskUpdated, updated, updated)
	return updated, nil
}

// Delete removes the task and publishes its identifier. The record is gone
// before the event fires, so a client applying the deletion against a stale
// local copy observes the same end state.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	deleted, err := s.store.DeleteTask(ctx, id)
	if err != nil {
		return err
	}
	s.broadcast(ctx, TaskDeleted, deleted, deleted.ID)
	return nil
}

// ReorderColumn assigns sequential positions to the tasks of one column in
// the given order, in a single store pass. Events are published only after
// every write has succeeded. Tasks outside the column or not owned by
// userID are rejected.
func (s *TaskService) ReorderColumn(ctx context.Context, userID string, status Status, ids []string) ([]Task, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, &ValidationError{Field: "ids", Reason: "required"}
	}
	for _, id := range ids {
		t, err := s.store.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if t.Status != status {
			return nil, &ValidationError{Field: "ids", Reason: "task " + id + " is not in column " + string(status)}
		}
		if t.CreatorID != userID && t.AssignedToID != userID {
			return nil, &ValidationError{Field: "ids", Reason: "task " + id + " does not belong to the caller"}
		}
	}
	reordered, err := s.store.ReorderTasks(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, t := range reordered {
		s.broadcast(ctx, TaskUpdated, t, t)
	}
	return reordered, nil
}

// broadcast publishes one event per interested room. Under ScopeRoom that is
// the assignee's room, plus the creator's when the task is delegated.
func (s *TaskService) broadcast(ctx context.Context, name string, t Task, payload any) {
	rooms := []string{AllRooms}
	if s.scope == ScopeRoom {
		rooms = []string{t.AssignedToID}
		if t.CreatorID != "" && t.CreatorID != t.AssignedToID {
			rooms = append(rooms, t.CreatorID)
		}
	}
	for _, room := range rooms {
		ev, err := NewEvent(name, room, payload)
		if err != nil {
			s.log.WithFields(log.Fields{"event": name, "task": t.ID}).Errorf("encode event: %v", err)
			return
		}
		if err := s.pub.Publish(ctx, ev); err != nil {
			// Delivery failures never reach the mutating caller.
			s.log.WithFields(log.Fields{"event": name, "room": room, "task": t.ID}).Errorf("broadcast dropped: %v", err)
		}
	}
}
