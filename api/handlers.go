package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"prism-todo/domain"
	"prism-todo/store"
)

const (
	maxBodySize         = 16 << 10
	headerConfirmDelete = "X-Confirm-Delete"

	routeTasks  = "/api/tasks"
	routeTask   = "/api/tasks/:id"
	routeToggle = "/api/tasks/:id/toggle"
	routeStats  = "/api/stats"
)

// Register wires up all task routes on the provided Echo instance.
func Register(e *echo.Echo, s TaskStore, logger *log.Logger) {
	e.GET(routeTasks, listTasks(s, logger))
	e.POST(routeTasks, createTask(s, logger))
	e.GET(routeTask, getTask(s, logger))
	e.PUT(routeTask, updateTask(s, logger))
	e.DELETE(routeTask, deleteTask(s, logger))
	e.POST(routeToggle, toggleTask(s, logger))
	e.GET(routeStats, getStats(s, logger))
	e.GET("/healthz", healthz(s))
}

type taskInput struct {
	Title    string `json:"title"`
	Priority string `json:"priority"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type deleteResponse struct {
	Deleted bool `json:"deleted"`
}

type healthResponse struct {
	Status string `json:"status"`
	Tasks  int    `json:"tasks"`
}

// instrument wraps h with a request span and an observability log event.
func instrument(logger *log.Logger, route string, h func(echo.Context, *requestMetrics) error) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, spanCtx := newRequestMetrics(c.Request().Context(), logger, c.Request().Method, route)
		c.SetRequest(c.Request().WithContext(spanCtx))
		defer func() {
			metrics.Log(responseStatus(c, err), err)
		}()
		return h(c, metrics)
	}
}

// responseStatus is the status the client sees. An error returned before
// anything was written is answered later by echo's error handler.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func healthz(s TaskStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, healthResponse{Status: "ok", Tasks: s.Stats().Total})
	}
}

func listTasks(s TaskStore, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, routeTasks, func(c echo.Context, metrics *requestMetrics) error {
		filter, err := domain.ParseFilter(c.QueryParam("filter"))
		if err != nil {
			metrics.SetErrorStage("invalid_filter")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Field: "filter"})
		}
		fetchStart := time.Now()
		view := s.View(filter, c.QueryParam("q"))
		metrics.ObserveStore(time.Since(fetchStart))
		metrics.SetTasksReturned(len(view.Tasks))
		return encode(c, metrics, http.StatusOK, view)
	})
}

func getTask(s TaskStore, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, routeTask, func(c echo.Context, metrics *requestMetrics) error {
		id := c.Param("id")
		metrics.SetTaskID(id)
		t, ok := s.Get(id)
		if !ok {
			metrics.SetErrorStage("not_found")
			return c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
		}
		metrics.SetTasksReturned(1)
		return encode(c, metrics, http.StatusOK, t)
	})
}

func createTask(s TaskStore, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, routeTasks, func(c echo.Context, metrics *requestMetrics) error {
		in, err := decodeTaskInput(c)
		if err != nil {
			metrics.Fail("invalid_body", err)
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		start := time.Now()
		t, err := s.Create(c.Request().Context(), in.Title, domain.Priority(in.Priority))
		metrics.ObserveStore(time.Since(start))
		if err != nil {
			return storeError(c, metrics, logger, err)
		}
		metrics.SetTaskID(t.ID)
		metrics.SetTasksReturned(1)
		return encode(c, metrics, http.StatusCreated, t)
	})
}

func updateTask(s TaskStore, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, routeTask, func(c echo.Context, metrics *requestMetrics) error {
		id := c.Param("id")
		metrics.SetTaskID(id)
		in, err := decodeTaskInput(c)
		if err != nil {
			metrics.Fail("invalid_body", err)
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		priority := domain.Priority(in.Priority)
		if strings.TrimSpace(in.Priority) == "" {
			// omitted priority keeps the stored one
			if current, ok := s.Get(id); ok {
				priority = current.Priority
			}
		}
		start := time.Now()
		err = s.Update(c.Request().Context(), id, in.Title, priority)
		metrics.ObserveStore(time.Since(start))
		if err != nil {
			return storeError(c, metrics, logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	})
}

func toggleTask(s TaskStore, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, routeToggle, func(c echo.Context, metrics *requestMetrics) error {
		id := c.Param("id")
		metrics.SetTaskID(id)
		start := time.Now()
		err := s.ToggleDone(c.Request().Context(), id)
		metrics.ObserveStore(time.Since(start))
		if err != nil {
			return storeError(c, metrics, logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	})
}

func deleteTask(s TaskStore, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, routeTask, func(c echo.Context, metrics *requestMetrics) error {
		id := c.Param("id")
		metrics.SetTaskID(id)
		confirm := store.NeverConfirm
		if deleteConfirmed(c) {
			confirm = store.AlwaysConfirm
		}
		start := time.Now()
		deleted, err := s.Remove(c.Request().Context(), id, confirm)
		metrics.ObserveStore(time.Since(start))
		if err != nil {
			return storeError(c, metrics, logger, err)
		}
		return encode(c, metrics, http.StatusOK, deleteResponse{Deleted: deleted})
	})
}

func getStats(s TaskStore, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, routeStats, func(c echo.Context, metrics *requestMetrics) error {
		return encode(c, metrics, http.StatusOK, s.Stats())
	})
}

func decodeTaskInput(c echo.Context) (taskInput, error) {
	var in taskInput
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	err := dec.Decode(&in)
	return in, err
}

// deleteConfirmed reads the confirmation from ?confirm= or X-Confirm-Delete.
func deleteConfirmed(c echo.Context) bool {
	for _, v := range []string{c.QueryParam("confirm"), c.Request().Header.Get(headerConfirmDelete)} {
		if ok, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil && ok {
			return true
		}
	}
	return false
}

func storeError(c echo.Context, metrics *requestMetrics, logger *log.Logger, err error) error {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		metrics.SetErrorStage("validation")
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: verr.Error(), Field: verr.Field})
	}
	stage := "store"
	if errors.Is(err, store.ErrPersist) {
		stage = "persist"
	}
	metrics.Fail(stage, err)
	if logger != nil {
		logger.WithError(err).WithField("route", metrics.route).Error("task request failed")
	}
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to save tasks"})
}

func encode(c echo.Context, metrics *requestMetrics, status int, v any) error {
	start := time.Now()
	err := c.JSON(status, v)
	metrics.ObserveEncode(time.Since(start))
	if err != nil {
		metrics.SetErrorStage("encode_response")
	}
	return err
}
