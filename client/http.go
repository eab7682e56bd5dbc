package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"taskboard-api/domain"
)

// HTTPClient talks to the task API over REST. It implements TaskAPI, so a
// Syncer can push optimistic mutations through it directly.
type HTTPClient struct {
	baseURL string
	token   string
	hc      *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      &http.Client{Timeout: 10 * time.Second},
	}
}

// SetToken swaps the bearer token, typically after login.
func (c *HTTPClient) SetToken(token string) { c.token = token }

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := sonic.ConfigStd.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.ErrInvalidCredentials
	case resp.StatusCode >= http.StatusBadRequest:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return sonic.ConfigStd.NewDecoder(resp.Body).Decode(out)
}

// Login exchanges credentials for a session and installs the token on the
// client.
func (c *HTTPClient) Login(ctx context.Context, email, password string) (Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &s); err != nil {
		return Session{}, err
	}
	c.token = s.Token
	return s, nil
}

// Register creates an account. It does not log in.
func (c *HTTPClient) Register(ctx context.Context, name, email, password string) (Session, error) {
	var s Session
	body := map[string]string{"name": name, "email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", body, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Session is the identity returned by the auth endpoints.
type Session struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token,omitempty"`
}

// ListTasks fetches the caller's tasks, optionally filtered.
func (c *HTTPClient) ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	q := url.Values{}
	if f.Status != nil {
		q.Set("status", string(*f.Status))
	}
	if f.Priority != nil {
		q.Set("priority", string(*f.Priority))
	}
	path := "/api/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var tasks []domain.Task
	if err := c.do(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

type taskPayload struct {
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	DueDate      string `json:"dueDate,omitempty"`
	Priority     string `json:"priority,omitempty"`
	AssignedToID string `json:"assignedToId,omitempty"`
}

// CreateTask submits a new task.
func (c *HTTPClient) CreateTask(ctx context.Context, in domain.NewTaskInput) (domain.Task, error) {
	body := taskPayload{
		Title:        in.Title,
		Description:  in.Description,
		Priority:     string(in.Priority),
		AssignedToID: in.AssignedToID,
	}
	if !in.DueDate.IsZero() {
		body.DueDate = in.DueDate.Format(time.RFC3339)
	}
	var t domain.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", body, &t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

type patchPayload struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	DueDate      *string `json:"dueDate,omitempty"`
	Priority     *string `json:"priority,omitempty"`
	Status       *string `json:"status,omitempty"`
	Position     *int    `json:"position,omitempty"`
	AssignedToID *string `json:"assignedToId,omitempty"`
}

// UpdateTask applies a partial patch.
func (c *HTTPClient) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	body := patchPayload{
		Title:        p.Title,
		Description:  p.Description,
		Position:     p.Position,
		AssignedToID: p.AssignedToID,
	}
	if p.DueDate != nil {
		due := p.DueDate.Format(time.RFC3339)
		body.DueDate = &due
	}
	if p.Priority != nil {
		pr := string(*p.Priority)
		body.Priority = &pr
	}
	if p.Status != nil {
		st := string(*p.Status)
		body.Status = &st
	}
	var t domain.Task
	if err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), body, &t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// DeleteTask removes a task.
func (c *HTTPClient) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil)
}

// ReorderColumn pushes a whole column order in one call.
func (c *HTTPClient) ReorderColumn(ctx context.Context, status domain.Status, ids []string) ([]domain.Task, error) {
	body := map[string]any{"status": string(status), "ids": ids}
	var tasks []domain.Task
	if err := c.do(ctx, http.MethodPatch, "/api/tasks/reorder", body, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}
