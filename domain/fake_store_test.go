package domain

import (
	"context"
	"time"
)

type fakeStore struct {
	tasks map[string]Task
	order []string
	err   error
	now   time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: map[string]Task{}, now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeStore) InsertTask(ctx context.Context, t Task) (Task, error) {
	if f.err != nil {
		return Task{}, f.err
	}
	t.CreatedAt = f.now
	t.UpdatedAt = f.now
	f.tasks[t.ID] = t
	f.order = append(f.order, t.ID)
	return t, nil
}

func (f *fakeStore) GetTask(ctx context.Context, id string) (Task, error) {
	if f.err != nil {
		return Task{}, f.err
	}
	t, ok := f.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) ListTasks(ctx context.Context, userID string, filter TaskFilter) ([]Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Task
	for _, id := range f.order {
		t := f.tasks[id]
		if t.CreatorID != userID && t.AssignedToID != userID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Priority != nil && t.Priority != *filter.Priority {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, id string, p TaskPatch) (Task, error) {
	if f.err != nil {
		return Task{}, f.err
	}
	t, ok := f.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	p.Apply(&t)
	t.UpdatedAt = f.now
	f.tasks[id] = t
	return t, nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, id string) (Task, error) {
	if f.err != nil {
		return Task{}, f.err
	}
	t, ok := f.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	delete(f.tasks, id)
	for i, oid := range f.order {
		if oid == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return t, nil
}

func (f *fakeStore) ReorderTasks(ctx context.Context, ids []string) ([]Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]Task, 0, len(ids))
	for pos, id := range ids {
		t, ok := f.tasks[id]
		if !ok {
			return nil, ErrNotFound
		}
		t.Position = pos
		t.UpdatedAt = f.now
		f.tasks[id] = t
		out = append(out, t)
	}
	return out, nil
}

type fakePublisher struct {
	events []Event
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, ev Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}
