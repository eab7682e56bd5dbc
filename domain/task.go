package domain

import (
	"strings"
	"time"
)

// Priority orders how urgently a task needs attention.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// ParsePriority validates a raw priority value.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", &ValidationError{Field: "priority", Reason: "must be one of LOW, MEDIUM, HIGH, URGENT"}
}

// Rank returns the sort rank of a priority, urgent first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	default:
		return 4
	}
}

// Status places a task in one of the four board columns.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusReview     Status = "REVIEW"
	StatusCompleted  Status = "COMPLETED"
)

// ParseStatus validates a raw status value.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusTodo, StatusInProgress, StatusReview, StatusCompleted:
		return st, nil
	}
	return "", &ValidationError{Field: "status", Reason: "must be one of TODO, IN_PROGRESS, REVIEW, COMPLETED"}
}

// MaxTitleLength is the longest accepted task title.
const MaxTitleLength = 100

// Task represents a single board item.
type Task struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	DueDate      time.Time `json:"dueDate"`
	Priority     Priority  `json:"priority"`
	Status       Status    `json:"status"`
	Position     int       `json:"position"`
	CreatorID    string    `json:"creatorId"`
	AssignedToID string    `json:"assignedToId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewTaskInput carries the caller-supplied fields for task creation. Status
// and position are never taken from the caller.
type NewTaskInput struct {
	Title        string
	Description  string
	DueDate      time.Time
	Priority     Priority
	AssignedToID string
}

// Validate checks required fields and applies the priority default.
func (in *NewTaskInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if len(in.Title) > MaxTitleLength {
		return &ValidationError{Field: "title", Reason: "longer than 100 characters"}
	}
	if in.DueDate.IsZero() {
		return &ValidationError{Field: "dueDate", Reason: "required"}
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	} else if _, err := ParsePriority(string(in.Priority)); err != nil {
		return err
	}
	return nil
}

// TaskPatch is a partial update; nil fields are left unchanged.
type TaskPatch struct {
	Title        *string
	Description  *string
	DueDate      *time.Time
	Priority     *Priority
	Status       *Status
	Position     *int
	AssignedToID *string
}

// Validate checks whatever fields the patch carries.
func (p *TaskPatch) Validate() error {
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return &ValidationError{Field: "title", Reason: "required"}
		}
		if len(t) > MaxTitleLength {
			return &ValidationError{Field: "title", Reason: "longer than 100 characters"}
		}
		p.Title = &t
	}
	if p.Priority != nil {
		if _, err := ParsePriority(string(*p.Priority)); err != nil {
			return err
		}
	}
	if p.Status != nil {
		if _, err := ParseStatus(string(*p.Status)); err != nil {
			return err
		}
	}
	if p.DueDate != nil && p.DueDate.IsZero() {
		return &ValidationError{Field: "dueDate", Reason: "required"}
	}
	return nil
}

// Empty reports whether the patch changes nothing.
func (p *TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.DueDate == nil &&
		p.Priority == nil && p.Status == nil && p.Position == nil && p.AssignedToID == nil
}

// Apply merges the patch into t.
func (p *TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Position != nil {
		t.Position = *p.Position
	}
	if p.AssignedToID != nil {
		t.AssignedToID = *p.AssignedToID
	}
}

// TaskFilter narrows task listings; nil fields match everything.
type TaskFilter struct {
	Status   *Status
	Priority *Priority
}
