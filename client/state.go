// Package client implements the consumer side of the realtime task board:
// an event-reconciled local task list, optimistic drag reordering, a board
// projection and the transport pieces that feed them.
package client

import (
	"fmt"
	"sync"

	"taskboard-api/domain"
)

// State is the client's local copy of the task list. It is reconciled
// against server events and mutated optimistically during drags; applying
// the same event twice leaves the state unchanged.
type State struct {
	mu    sync.RWMutex
	order []string
	tasks map[string]domain.Task
}

func NewState() *State {
	return &State{tasks: make(map[string]domain.Task)}
}

// Replace installs a full snapshot, usually the initial list fetch. The
// given order becomes the display order.
func (s *State) Replace(tasks []domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = s.order[:0]
	s.tasks = make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		if _, dup := s.tasks[t.ID]; dup {
			continue
		}
		s.order = append(s.order, t.ID)
		s.tasks[t.ID] = t
	}
}

// Apply reconciles one server event into the local list.
//
// Created tasks the state already holds are skipped, so the originator's
// optimistic copy and the broadcast echo collapse into one entry. Updates
// for unknown tasks are dropped rather than resurrected; the task was
// deleted locally and the update is stale.
func (s *State) Apply(ev domain.Event) error {
	switch ev.Name {
	case domain.TaskCreated:
		t, err := ev.Task()
		if err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.Name, err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.tasks[t.ID]; exists {
			return nil
		}
		s.order = append([]string{t.ID}, s.order...)
		s.tasks[t.ID] = t
		return nil
	case domain.TaskUpdated:
		t, err := ev.Task()
		if err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.Name, err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.tasks[t.ID]; !exists {
			return nil
		}
		s.tasks[t.ID] = t
		return nil
	case domain.TaskDeleted:
		id, err := ev.TaskID()
		if err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.Name, err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.removeLocked(id)
		return nil
	default:
		// Unknown event names are skipped so old clients survive new
		// server versions.
		return nil
	}
}

func (s *State) removeLocked(id string) {
	if _, exists := s.tasks[id]; !exists {
		return
	}
	delete(s.tasks, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Get returns one task by id.
func (s *State) Get(id string) (domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Tasks returns a snapshot of the list in display order.
func (s *State) Tasks() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id])
	}
	return out
}

// Len returns the number of tasks held locally.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// set overwrites one task in place without touching the display order.
// Used by the optimistic mutations.
func (s *State) set(t domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; !exists {
		return
	}
	s.tasks[t.ID] = t
}
