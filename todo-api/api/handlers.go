package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"prism-todo/todo-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Services, logger *log.Logger) {
	if svc.Store == nil || svc.Auth == nil {
		panic("api.Register: store and auth are required")
	}
	g := e.Group("", RequestMetricsMiddleware(logger))
	g.GET("/api/todo", listTasks(svc.Store, svc.Auth, logger))
	g.POST("/api/todo/create", createTask(svc.Store, svc.Auth, svc.Events, svc.Deduper, logger))
	g.PATCH("/api/todo/edit", editTask(svc.Store, svc.Auth, svc.Events, logger))
	g.PATCH("/api/todo/check", checkTask(svc.Store, svc.Auth, svc.Events, logger))
	g.DELETE("/api/todo/delete", deleteTask(svc.Store, svc.Auth, svc.Events, logger))
	g.GET("/api/me", me(svc.Auth))
	if svc.Hub != nil {
		e.GET("/api/todo/stream", streamTasks(svc.Store, svc.Auth, svc.Hub, logger), RequestMetricsMiddleware(logger))
	}
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// authenticate resolves the caller and records the auth timing.
func authenticate(c echo.Context, auth Authenticator) (Identity, error) {
	m := metricsFrom(c)
	start := time.Now()
	id, err := auth.IdentityFromAuthHeader(authHeader(c))
	m.ObserveAuth(time.Since(start))
	if err != nil {
		m.SetErrorStage("auth")
	}
	return id, err
}

func unauthorized(c echo.Context) error {
	return c.String(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
}

func notFound(c echo.Context) error {
	metricsFrom(c).SetErrorStage("not_found")
	return c.String(http.StatusNotFound, http.StatusText(http.StatusNotFound))
}

func badRequest(c echo.Context, err error) error {
	metricsFrom(c).SetErrorStage("validation")
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, validationResponse{Errors: ve.Fields})
	}
	return c.JSON(http.StatusBadRequest, validationResponse{Errors: []domain.FieldError{{Message: err.Error()}}})
}

func internalError(c echo.Context, logger *log.Logger, stage string, err error) error {
	metricsFrom(c).Fail(stage, err)
	if logger != nil {
		logger.WithError(err).WithFields(log.Fields{
			"route":  c.Path(),
			"method": c.Request().Method,
			"stage":  stage,
		}).Error("request failed")
	}
	return c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

func emit(events EventSender, typ, taskID, userID string, state domain.State) {
	if events == nil {
		return
	}
	events.Send(domain.TaskEvent{
		ID:     uuid.NewString(),
		Type:   typ,
		TaskID: taskID,
		UserID: userID,
		State:  state,
		Time:   time.Now().UnixMilli(),
	})
}

// findOwned loads the task and times the lookup. A nil task means the caller owns no
// task with that id.
func findOwned(c echo.Context, store Storage, owner, id string) (*domain.Task, error) {
	start := time.Now()
	t, err := store.GetTask(c.Request().Context(), owner, id)
	metricsFrom(c).ObserveStore(time.Since(start))
	return t, err
}

func listTasks(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		m := metricsFrom(c)
		id, err := authenticate(c, auth)
		if err != nil {
			return unauthorized(c)
		}

		start := time.Now()
		tasks, err := store.ListTasks(c.Request().Context(), id.UserID)
		m.ObserveStore(time.Since(start))
		if err != nil {
			return internalError(c, logger, "storage", err)
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		m.SetTasks(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, listTasksResponse{Tasks: tasks})
		m.ObserveEncode(time.Since(encodeStart))
		return err
	}
}

func createTask(store Storage, auth Authenticator, events EventSender, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		m := metricsFrom(c)
		id, err := authenticate(c, auth)
		if err != nil {
			return unauthorized(c)
		}

		var req domain.CreateTaskRequest
		if err := decodeRequest(c, schemaCreate, &req); err != nil {
			return badRequest(c, err)
		}
		if err := domain.ValidateDeadlines(req.DueDate, req.PlannedFinishDate); err != nil {
			return badRequest(c, err)
		}

		key := c.Request().Header.Get(headerIdempotencyKey)
		release := func() {}
		if key != "" && deduper != nil {
			added, err := deduper.Add(ctx, id.UserID, key)
			if err != nil {
				return internalError(c, logger, "dedupe", err)
			}
			if !added {
				m.SetErrorStage("duplicate")
				return c.String(http.StatusConflict, "duplicate request")
			}
			release = func() {
				if rerr := deduper.Remove(context.Background(), id.UserID, key); rerr != nil {
					logger.Errorf("dedupe rollback failed, err: %v, key: %s, user: %s", rerr, key, id.UserID)
				}
			}
		}

		start := time.Now()
		existing, err := store.ListTasks(ctx, id.UserID)
		if err != nil {
			m.ObserveStore(time.Since(start))
			release()
			return internalError(c, logger, "storage", err)
		}

		now := nextTimestamp()
		task := domain.Task{
			ID:        uuid.NewString(),
			Title:     req.Title,
			State:     req.State,
			Order:     domain.NextOrder(existing, req.State),
			Owner:     id.UserID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if req.Description != nil {
			task.Description = *req.Description
		}
		if req.DueDate != nil {
			task.DueDate = *req.DueDate
		}
		if req.PlannedFinishDate != nil {
			task.PlannedFinishDate = *req.PlannedFinishDate
		}

		err = store.InsertTask(ctx, task)
		m.ObserveStore(time.Since(start))
		if err != nil {
			release()
			return internalError(c, logger, "storage", err)
		}

		emit(events, domain.TaskCreated, task.ID, id.UserID, task.State)
		return c.JSON(http.StatusCreated, task)
	}
}

func editTask(store Storage, auth Authenticator, events EventSender, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := authenticate(c, auth)
		if err != nil {
			return unauthorized(c)
		}

		var req domain.EditTaskRequest
		if err := decodeRequest(c, schemaEdit, &req); err != nil {
			return badRequest(c, err)
		}
		if err := domain.ValidateDeadlines(req.DueDate, req.PlannedFinishDate); err != nil {
			return badRequest(c, err)
		}

		current, err := findOwned(c, store, id.UserID, req.ID)
		if err != nil {
			return internalError(c, logger, "storage", err)
		}
		if current == nil {
			return notFound(c)
		}

		if err := updateOwned(c, store, id.UserID, req.ID, req.Patch(nextTimestamp())); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return notFound(c)
			}
			return internalError(c, logger, "storage", err)
		}

		typ := domain.TaskUpdated
		if current.State != req.State {
			typ = domain.TaskStateChanged
		}
		emit(events, typ, req.ID, id.UserID, req.State)
		return c.NoContent(http.StatusOK)
	}
}

func checkTask(store Storage, auth Authenticator, events EventSender, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := authenticate(c, auth)
		if err != nil {
			return unauthorized(c)
		}

		var req domain.CheckTaskRequest
		if err := decodeRequest(c, schemaCheck, &req); err != nil {
			return badRequest(c, err)
		}

		current, err := findOwned(c, store, id.UserID, req.ID)
		if err != nil {
			return internalError(c, logger, "storage", err)
		}
		if current == nil {
			return notFound(c)
		}

		state := domain.CheckedState(req.Checked)
		patch := domain.TaskPatch{State: &state, UpdatedAt: nextTimestamp()}
		if err := updateOwned(c, store, id.UserID, req.ID, patch); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return notFound(c)
			}
			return internalError(c, logger, "storage", err)
		}

		emit(events, domain.TaskStateChanged, req.ID, id.UserID, state)
		return c.NoContent(http.StatusOK)
	}
}

func deleteTask(store Storage, auth Authenticator, events EventSender, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := authenticate(c, auth)
		if err != nil {
			return unauthorized(c)
		}

		var req domain.DeleteTaskRequest
		if err := decodeRequest(c, schemaDelete, &req); err != nil {
			return badRequest(c, err)
		}

		current, err := findOwned(c, store, id.UserID, req.ID)
		if err != nil {
			return internalError(c, logger, "storage", err)
		}
		if current == nil {
			return notFound(c)
		}

		start := time.Now()
		err = store.DeleteTask(c.Request().Context(), id.UserID, req.ID)
		metricsFrom(c).ObserveStore(time.Since(start))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return notFound(c)
			}
			return internalError(c, logger, "storage", err)
		}

		emit(events, domain.TaskDeleted, req.ID, id.UserID, "")
		return c.NoContent(http.StatusOK)
	}
}

func updateOwned(c echo.Context, store Storage, owner, id string, patch domain.TaskPatch) error {
	start := time.Now()
	err := store.UpdateTask(c.Request().Context(), owner, id, patch)
	metricsFrom(c).ObserveStore(time.Since(start))
	return err
}

func me(auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := authenticate(c, auth)
		if err != nil {
			return unauthorized(c)
		}
		return c.JSON(http.StatusOK, id)
	}
}
