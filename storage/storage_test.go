package storage

import (
	"strings"
	"testing"
	"time"

	"taskboard-api/domain"
)

func TestTaskFilterString(t *testing.T) {
	got := taskFilterString("user-1", domain.TaskFilter{})
	want := "PartitionKey eq 'task' and (CreatorId eq 'user-1' or AssignedToId eq 'user-1')"
	if got != want {
		t.Fatalf("filter mismatch:\n got %s\nwant %s", got, want)
	}

	st := domain.StatusInProgress
	pr := domain.PriorityUrgent
	got = taskFilterString("user-1", domain.TaskFilter{Status: &st, Priority: &pr})
	if !strings.Contains(got, "Status eq 'IN_PROGRESS'") || !strings.Contains(got, "Priority eq 'URGENT'") {
		t.Fatalf("filter missing clauses: %s", got)
	}
}

func TestTaskFilterStringEscapesQuotes(t *testing.T) {
	got := taskFilterString("o'brien", domain.TaskFilter{})
	if strings.Contains(got, "'o'brien'") {
		t.Fatalf("unescaped quote in filter: %s", got)
	}
	if !strings.Contains(got, "o''brien") {
		t.Fatalf("expected doubled quote: %s", got)
	}
}

func TestTaskEntityRoundTrip(t *testing.T) {
	due := time.Date(2026, 9, 2, 8, 30, 0, 0, time.UTC)
	orig := domain.Task{
		ID:           "t1",
		Title:        "Draft",
		Description:  "first pass",
		DueDate:      due,
		Priority:     domain.PriorityHigh,
		Status:       domain.StatusReview,
		Position:     2,
		CreatorID:    "user-1",
		AssignedToID: "user-2",
		CreatedAt:    due.Add(-48 * time.Hour),
		UpdatedAt:    due.Add(-time.Hour),
	}
	ent := toTaskEntity(orig)
	if ent.PartitionKey != taskPartition || ent.RowKey != "t1" {
		t.Fatalf("unexpected keys: %s/%s", ent.PartitionKey, ent.RowKey)
	}
	back, err := ent.toTask()
	if err != nil {
		t.Fatalf("toTask: %v", err)
	}
	if back != orig {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", back, orig)
	}
}

func TestTaskEntityRejectsBadTimestamps(t *testing.T) {
	ent := toTaskEntity(domain.Task{ID: "t1", DueDate: time.Now(), CreatedAt: time.Now(), UpdatedAt: time.Now()})
	ent.DueDate = "yesterday"
	if _, err := ent.toTask(); err == nil {
		t.Fatal("expected error for malformed due date")
	}
}
