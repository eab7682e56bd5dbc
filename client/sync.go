package client

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// TaskAPI is the slice of the server's task surface the syncer drives.
type TaskAPI interface {
	UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error)
	ReorderColumn(ctx context.Context, status domain.Status, ids []string) ([]domain.Task, error)
}

// Syncer applies drag mutations to the local state immediately and pushes
// them to the server in the background. Server failures are logged and
// swallowed; the optimistic state stands until a later event or refetch
// corrects it.
type Syncer struct {
	state *State
	api   TaskAPI
	log   *log.Logger
	wg    sync.WaitGroup
}

func NewSyncer(state *State, api TaskAPI, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Syncer{state: state, api: api, log: logger}
}

// Reorder moves activeID to overID's slot within their shared column and
// rewrites the column's positions sequentially. One position patch is sent
// per moved sibling; the calls are independent, so the final server state
// does not depend on their completion order.
func (s *Syncer) Reorder(ctx context.Context, activeID, overID string) error {
	moved, err := s.moveLocally(activeID, overID)
	if err != nil {
		return err
	}
	for id, pos := range moved {
		s.patchPosition(ctx, id, pos)
	}
	return nil
}

// moveLocally applies the drag to the local state and returns the siblings
// whose position changed.
func (s *Syncer) moveLocally(activeID, overID string) (map[string]int, error) {
	if activeID == overID {
		return nil, nil
	}
	active, ok := s.state.Get(activeID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	over, ok := s.state.Get(overID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	if active.Status != over.Status {
		return nil, &domain.ValidationError{Field: "overId", Reason: "tasks are in different columns"}
	}

	siblings := s.columnIDs(active.Status)
	from, to := indexOf(siblings, activeID), indexOf(siblings, overID)
	if from < 0 || to < 0 {
		return nil, domain.ErrNotFound
	}
	arrayMove(siblings, from, to)

	moved := make(map[string]int)
	for i, id := range siblings {
		t, ok := s.state.Get(id)
		if !ok || t.Position == i {
			continue
		}
		t.Position = i
		s.state.set(t)
		moved[id] = i
	}
	return moved, nil
}

// MoveToColumn moves one task to another column optimistically and issues a
// single status patch.
func (s *Syncer) MoveToColumn(ctx context.Context, id string, status domain.Status) error {
	if _, err := domain.ParseStatus(string(status)); err != nil {
		return err
	}
	t, ok := s.state.Get(id)
	if !ok {
		return domain.ErrNotFound
	}
	if t.Status == status {
		return nil
	}
	t.Status = status
	s.state.set(t)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		patch := domain.TaskPatch{Status: &status}
		if _, err := s.api.UpdateTask(ctx, id, patch); err != nil {
			s.log.WithFields(log.Fields{"task": id, "status": status}).Errorf("status sync dropped: %v", err)
		}
	}()
	return nil
}

// ReorderBatched performs the same move as Reorder but pushes the whole
// column order in one call and waits for the result.
func (s *Syncer) ReorderBatched(ctx context.Context, activeID, overID string) error {
	if _, err := s.moveLocally(activeID, overID); err != nil {
		return err
	}

	active, ok := s.state.Get(activeID)
	if !ok {
		return domain.ErrNotFound
	}
	ids := s.columnIDs(active.Status)
	reordered, err := s.api.ReorderColumn(ctx, active.Status, ids)
	if err != nil {
		return err
	}
	for _, t := range reordered {
		s.state.set(t)
	}
	return nil
}

// Wait blocks until all in-flight background patches have finished. Tests
// and shutdown paths use it.
func (s *Syncer) Wait() {
	s.wg.Wait()
}

func (s *Syncer) patchPosition(ctx context.Context, id string, position int) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		pos := position
		patch := domain.TaskPatch{Position: &pos}
		if _, err := s.api.UpdateTask(ctx, id, patch); err != nil {
			s.log.WithFields(log.Fields{"task": id, "position": position}).Errorf("position sync dropped: %v", err)
		}
	}()
}

// columnIDs returns the ids of one column ordered by stored position, with
// arrival order breaking ties.
func (s *Syncer) columnIDs(status domain.Status) []string {
	var col []domain.Task
	for _, t := range s.state.Tasks() {
		if t.Status == status {
			col = append(col, t)
		}
	}
	sortByPosition(col)
	ids := make([]string, len(col))
	for i, t := range col {
		ids[i] = t.ID
	}
	return ids
}

func sortByPosition(col []domain.Task) {
	for i := 1; i < len(col); i++ {
		for j := i; j > 0 && col[j].Position < col[j-1].Position; j-- {
			col[j], col[j-1] = col[j-1], col[j]
		}
	}
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func arrayMove(ids []string, from, to int) {
	id := ids[from]
	copy(ids[from:], ids[from+1:])
	copy(ids[to+1:], ids[to:])
	ids[to] = id
}
