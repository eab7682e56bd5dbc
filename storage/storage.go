package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskboard-api/domain"
)

// Tasks share one partition so that batch reorders can run as a single
// entity-group transaction. Users get their own partition plus an email
// index partition whose insert conflicts enforce unique registration.
const (
	taskPartition  = "task"
	userPartition  = "user"
	emailPartition = "email"
)

// Storage provides task and user persistence on Azure Table storage.
type Storage struct {
	taskTable *aztables.Client
	userTable *aztables.Client
	now       func() time.Time
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, usersTable string) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable: svc.NewClient(tasksTable),
		userTable: svc.NewClient(usersTable),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

type taskEntity struct {
	aztables.Entity
	Title        string `json:"Title"`
	Description  string `json:"Description"`
	DueDate      string `json:"DueDate"`
	Priority     string `json:"Priority"`
	Status       string `json:"Status"`
	Position     int    `json:"Position"`
	CreatorId    string `json:"CreatorId"`
	AssignedToId string `json:"AssignedToId"`
	CreatedAt    string `json:"CreatedAt"`
	UpdatedAt    string `json:"UpdatedAt"`
}

func toTaskEntity(t domain.Task) taskEntity {
	return taskEntity{
		Entity:       aztables.Entity{PartitionKey: taskPartition, RowKey: t.ID},
		Title:        t.Title,
		Description:  t.Description,
		DueDate:      t.DueDate.UTC().Format(time.RFC3339Nano),
		Priority:     string(t.Priority),
		Status:       string(t.Status),
		Position:     t.Position,
		CreatorId:    t.CreatorID,
		AssignedToId: t.AssignedToID,
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (e taskEntity) toTask() (domain.Task, error) {
	due, err := time.Parse(time.RFC3339Nano, e.DueDate)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s: bad due date: %w", e.RowKey, err)
	}
	created, err := time.Parse(time.RFC3339Nano, e.CreatedAt)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s: bad created timestamp: %w", e.RowKey, err)
	}
	updated, err := time.Parse(time.RFC3339Nano, e.UpdatedAt)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s: bad updated timestamp: %w", e.RowKey, err)
	}
	return domain.Task{
		ID:           e.RowKey,
		Title:        e.Title,
		Description:  e.Description,
		DueDate:      due,
		Priority:     domain.Priority(e.Priority),
		Status:       domain.Status(e.Status),
		Position:     e.Position,
		CreatorID:    e.CreatorId,
		AssignedToID: e.AssignedToId,
		CreatedAt:    created,
		UpdatedAt:    updated,
	}, nil
}

// escapeOData doubles single quotes so user input cannot break the filter.
func escapeOData(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func taskFilterString(userID string, f domain.TaskFilter) string {
	uid := escapeOData(userID)
	filter := fmt.Sprintf("PartitionKey eq '%s' and (CreatorId eq '%s' or AssignedToId eq '%s')", taskPartition, uid, uid)
	if f.Status != nil {
		filter += fmt.Sprintf(" and Status eq '%s'", escapeOData(string(*f.Status)))
	}
	if f.Priority != nil {
		filter += fmt.Sprintf(" and Priority eq '%s'", escapeOData(string(*f.Priority)))
	}
	return filter
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

// InsertTask persists a new task, stamping createdAt and updatedAt.
func (s *Storage) InsertTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	payload, err := json.Marshal(toTaskEntity(t))
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// GetTask retrieves a task by identifier.
func (s *Storage) GetTask(ctx context.Context, id string) (domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, taskPartition, id, nil)
	if err != nil {
		if isStatus(err, 404) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Task{}, err
	}
	return ent.toTask()
}

// ListTasks returns every task where userID is creator or assignee,
// narrowed by the filter.
func (s *Storage) ListTasks(ctx context.Context, userID string, f domain.TaskFilter) ([]domain.Task, error) {
	filter := taskFilterString(userID, f)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			t, err := ent.toTask()
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// UpdateTask applies a partial patch and stamps updatedAt. Concurrent
// updates race with last-write-wins semantics.
func (s *Storage) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	p.Apply(&t)
	t.UpdatedAt = s.now()
	payload, err := json.Marshal(toTaskEntity(t))
	if err != nil {
		return domain.Task{}, err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	if err != nil {
		if isStatus(err, 404) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, err
	}
	return t, nil
}

// DeleteTask removes a task and returns the record as it stood.
func (s *Storage) DeleteTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.DeleteEntity(ctx, taskPartition, id, nil); err != nil {
		if isStatus(err, 404) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, err
	}
	return t, nil
}

// ReorderTasks assigns positions following the order of ids, submitted as a
// single entity-group transaction so a reorder is applied atomically.
func (s *Storage) ReorderTasks(ctx context.Context, ids []string) ([]domain.Task, error) {
	now := s.now()
	actions := make([]aztables.TransactionAction, 0, len(ids))
	tasks := make([]domain.Task, 0, len(ids))
	for pos, id := range ids {
		t, err := s.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		t.Position = pos
		t.UpdatedAt = now
		payload, err := json.Marshal(toTaskEntity(t))
		if err != nil {
			return nil, err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateReplace,
			Entity:     payload,
		})
		tasks = append(tasks, t)
	}
	if _, err := s.taskTable.SubmitTransaction(ctx, actions, nil); err != nil {
		if isStatus(err, 404) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return tasks, nil
}

type userEntity struct {
	aztables.Entity
	Name         string `json:"Name"`
	Email        string `json:"Email"`
	PasswordHash string `json:"PasswordHash"`
	CreatedAt    string `json:"CreatedAt"`
}

type emailIndexEntity struct {
	aztables.Entity
	UserId string `json:"UserId"`
}

// CreateUser persists a new user. The email index row is inserted first;
// a conflict there reports the duplicate before any user row exists.
func (s *Storage) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	u.Email = domain.NormalizeEmail(u.Email)
	u.CreatedAt = s.now()

	idx := emailIndexEntity{
		Entity: aztables.Entity{PartitionKey: emailPartition, RowKey: u.Email},
		UserId: u.ID,
	}
	payload, err := json.Marshal(idx)
	if err != nil {
		return domain.User{}, err
	}
	if _, err := s.userTable.AddEntity(ctx, payload, nil); err != nil {
		if isStatus(err, 409) {
			return domain.User{}, domain.ErrDuplicateEmail
		}
		return domain.User{}, err
	}

	ent := userEntity{
		Entity:       aztables.Entity{PartitionKey: userPartition, RowKey: u.ID},
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	payload, err = json.Marshal(ent)
	if err == nil {
		_, err = s.userTable.AddEntity(ctx, payload, nil)
	}
	if err != nil {
		// Roll the index row back so the email is not burned by a half write.
		_, _ = s.userTable.DeleteEntity(ctx, emailPartition, u.Email, nil)
		return domain.User{}, err
	}
	return u, nil
}

// GetUser retrieves a user by identifier.
func (s *Storage) GetUser(ctx context.Context, id string) (domain.User, error) {
	resp, err := s.userTable.GetEntity(ctx, userPartition, id, nil)
	if err != nil {
		if isStatus(err, 404) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}
	return decodeUserEntity(resp.Value)
}

// GetUserByEmail resolves the email index and loads the user row.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	resp, err := s.userTable.GetEntity(ctx, emailPartition, domain.NormalizeEmail(email), nil)
	if err != nil {
		if isStatus(err, 404) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}
	var idx emailIndexEntity
	if err := json.Unmarshal(resp.Value, &idx); err != nil {
		return domain.User{}, err
	}
	return s.GetUser(ctx, idx.UserId)
}

func decodeUserEntity(data []byte) (domain.User, error) {
	var ent userEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.User{}, err
	}
	created, err := time.Parse(time.RFC3339Nano, ent.CreatedAt)
	if err != nil {
		return domain.User{}, fmt.Errorf("user %s: bad created timestamp: %w", ent.RowKey, err)
	}
	return domain.User{
		ID:           ent.RowKey,
		Name:         ent.Name,
		Email:        ent.Email,
		PasswordHash: ent.PasswordHash,
		CreatedAt:    created,
	}, nil
}
