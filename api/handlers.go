package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
	"taskboard-api/hub"
)

// taskBodyMaxSize caps how much of a request body the task handlers read.
const taskBodyMaxSize = 64 << 10

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, tasks Tasks, users Users, auth *Auth, h *hub.Hub, logger *log.Logger) {
	e.POST("/api/auth/register", registerHandler(users, logger))
	e.POST("/api/auth/login", loginHandler(users, auth, logger))

	e.GET("/api/tasks", getTasks(tasks, auth, logger))
	e.POST("/api/tasks", postTask(tasks, auth, logger))
	// The static route must be registered alongside :id; echo matches it first.
	e.PATCH("/api/tasks/reorder", patchReorder(tasks, auth, logger))
	e.PATCH("/api/tasks/:id", patchTask(tasks, auth, logger))
	e.DELETE("/api/tasks/:id", deleteTask(tasks, auth, logger))

	e.GET("/api/ws", serveWS(h, auth, logger))
	e.GET("/healthz", healthz())
}

type taskRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	DueDate      string `json:"dueDate"`
	Priority     string `json:"priority"`
	AssignedToID string `json:"assignedToId"`
}

type taskPatchRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	DueDate      *string `json:"dueDate"`
	Priority     *string `json:"priority"`
	Status       *string `json:"status"`
	Position     *int    `json:"position"`
	AssignedToID *string `json:"assignedToId"`
}

type reorderRequest struct {
	Status string   `json:"status"`
	IDs    []string `json:"ids"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, taskBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeTaskError maps domain errors onto HTTP responses.
func writeTaskError(c echo.Context, logger *log.Logger, err error) error {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		return c.JSON(http.StatusBadRequest, errorResponse{Message: vErr.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Message: "task not found"})
	default:
		logger.Errorf("task request failed: %v", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}

func getTasks(tasks Tasks, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		if spanCtx != nil {
			req := c.Request().WithContext(spanCtx)
			c.SetRequest(req)
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Message: authErr.Error()})
			return err
		}

		var filter domain.TaskFilter
		if raw := c.QueryParam("status"); raw != "" {
			status, parseErr := domain.ParseStatus(raw)
			if parseErr != nil {
				metrics.SetErrorStage("invalid_status")
				err = c.JSON(http.StatusBadRequest, errorResponse{Message: parseErr.Error()})
				return err
			}
			filter.Status = &status
		}
		if raw := c.QueryParam("priority"); raw != "" {
			priority, parseErr := domain.ParsePriority(raw)
			if parseErr != nil {
				metrics.SetErrorStage("invalid_priority")
				err = c.JSON(http.StatusBadRequest, errorResponse{Message: parseErr.Error()})
				return err
			}
			filter.Priority = &priority
		}

		fetchStart := time.Now()
		list, fetchErr := tasks.List(ctx, userID, filter)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			err = writeTaskError(c, logger, fetchErr)
			return err
		}
		if list == nil {
			list = []domain.Task{}
		}
		metrics.SetTasksReturned(len(list))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, list)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postTask(tasks Tasks, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Message: err.Error()})
		}

		var req taskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Message: "malformed request body"})
		}

		in := domain.NewTaskInput{
			Title:        req.Title,
			Description:  req.Description,
			Priority:     domain.Priority(req.Priority),
			AssignedToID: req.AssignedToID,
		}
		if req.DueDate != "" {
			due, parseErr := time.Parse(time.RFC3339, req.DueDate)
			if parseErr != nil {
				return c.JSON(http.StatusBadRequest, errorResponse{Message: "dueDate must be an RFC 3339 timestamp"})
			}
			in.DueDate = due
		}

		created, err := tasks.Create(c.Request().Context(), in, userID)
		if err != nil {
			return writeTaskError(c, logger, err)
		}
		return c.JSON(http.StatusCreated, created)
	}
}

func patchTask(tasks Tasks, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Message: err.Error()})
		}

		var req taskPatchRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Message: "malformed request body"})
		}

		patch := domain.TaskPatch{
			Title:        req.Title,
			Description:  req.Description,
			Position:     req.Position,
			AssignedToID: req.AssignedToID,
		}
		if req.Priority != nil {
			p := domain.Priority(*req.Priority)
			patch.Priority = &p
		}
		if req.Status != nil {
			s := domain.Status(*req.Status)
			patch.Status = &s
		}
		if req.DueDate != nil {
			due, parseErr := time.Parse(time.RFC3339, *req.DueDate)
			if parseErr != nil {
				return c.JSON(http.StatusBadRequest, errorResponse{Message: "dueDate must be an RFC 3339 timestamp"})
			}
			patch.DueDate = &due
		}
		if patch.Empty() {
			return c.JSON(http.StatusBadRequest, errorResponse{Message: "patch must change at least one field"})
		}

		updated, err := tasks.Update(c.Request().Context(), c.Param("id"), patch)
		if err != nil {
			return writeTaskError(c, logger, err)
		}
		return c.JSON(http.StatusOK, updated)
	}
}

func deleteTask(tasks Tasks, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Message: err.Error()})
		}
		if err := tasks.Delete(c.Request().Context(), c.Param("id")); err != nil {
			return writeTaskError(c, logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func patchReorder(tasks Tasks, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Message: err.Error()})
		}

		var req reorderRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Message: "malformed request body"})
		}

		reordered, err := tasks.ReorderColumn(c.Request().Context(), userID, domain.Status(req.Status), req.IDs)
		if err != nil {
			return writeTaskError(c, logger, err)
		}
		return c.JSON(http.StatusOK, reordered)
	}
}
