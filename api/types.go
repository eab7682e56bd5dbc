package api

import (
	"context"

	"taskboard-api/domain"
)

// Tasks is the mutation surface the handlers drive.
type Tasks interface {
	Create(ctx context.Context, in domain.NewTaskInput, creatorID string) (domain.Task, error)
	List(ctx context.Context, userID string, f domain.TaskFilter) ([]domain.Task, error)
	Update(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, id string) error
	ReorderColumn(ctx context.Context, userID string, status domain.Status, ids []string) ([]domain.Task, error)
}

// Users is the slice of the store the auth handlers need.
type Users interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}
