package client

import (
	"sort"
	"strings"
	"time"

	"taskboard-api/domain"
)

// DueBucket classifies a due date relative to a reference day. Buckets sort
// overdue first.
type DueBucket int

const (
	DueOverdue DueBucket = 1
	DueToday   DueBucket = 2
	DueFuture  DueBucket = 3
)

func (b DueBucket) String() string {
	switch b {
	case DueOverdue:
		return "OVERDUE"
	case DueToday:
		return "TODAY"
	default:
		return "FUTURE"
	}
}

// BucketFor places a due date into its bucket. Calendar days are compared
// in the location of now, so a task due later today is TODAY, not FUTURE.
func BucketFor(due, now time.Time) DueBucket {
	y1, m1, d1 := due.In(now.Location()).Date()
	y2, m2, d2 := now.Date()
	switch {
	case y1 == y2 && m1 == m2 && d1 == d2:
		return DueToday
	case due.Before(now):
		return DueOverdue
	default:
		return DueFuture
	}
}

// Filters narrows and anchors a board projection. Zero values match
// everything; Now anchors the due buckets and defaults to time.Now.
type Filters struct {
	Search   string
	Priority *domain.Priority
	Due      *DueBucket
	Now      time.Time
}

func (f Filters) matches(t domain.Task, now time.Time) bool {
	if f.Search != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(f.Search)) {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	if f.Due != nil && BucketFor(t.DueDate, now) != *f.Due {
		return false
	}
	return true
}

// Board is the four-column projection rendered by the UI.
type Board struct {
	Todo       []domain.Task
	InProgress []domain.Task
	Review     []domain.Task
	Completed  []domain.Task
}

// Column returns the slice for a status.
func (b *Board) Column(status domain.Status) []domain.Task {
	switch status {
	case domain.StatusTodo:
		return b.Todo
	case domain.StatusInProgress:
		return b.InProgress
	case domain.StatusReview:
		return b.Review
	default:
		return b.Completed
	}
}

// Project groups tasks by status, applies the filters and sorts each column
// by due bucket (overdue first) and then priority rank. The sort is stable,
// so tasks with equal keys keep their incoming order.
func Project(tasks []domain.Task, f Filters) Board {
	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}

	var b Board
	for _, t := range tasks {
		if !f.matches(t, now) {
			continue
		}
		switch t.Status {
		case domain.StatusTodo:
			b.Todo = append(b.Todo, t)
		case domain.StatusInProgress:
			b.InProgress = append(b.InProgress, t)
		case domain.StatusReview:
			b.Review = append(b.Review, t)
		case domain.StatusCompleted:
			b.Completed = append(b.Completed, t)
		}
	}

	for _, col := range []*[]domain.Task{&b.Todo, &b.InProgress, &b.Review, &b.Completed} {
		sortColumn(*col, now)
	}
	return b
}

func sortColumn(col []domain.Task, now time.Time) {
	sort.SliceStable(col, func(i, j int) bool {
		bi, bj := BucketFor(col[i].DueDate, now), BucketFor(col[j].DueDate, now)
		if bi != bj {
			return bi < bj
		}
		return col[i].Priority.Rank() < col[j].Priority.Rank()
	})
}
