package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"prism-todo/domain"
	"prism-todo/store"
)

const shutdownTimeout = 10 * time.Second

// TaskStore is the part of *store.Store the HTTP adapter drives.
type TaskStore interface {
	Create(ctx context.Context, title string, priority domain.Priority) (domain.Task, error)
	Update(ctx context.Context, id, title string, priority domain.Priority) error
	ToggleDone(ctx context.Context, id string) error
	Remove(ctx context.Context, id string, confirm store.Confirmer) (bool, error)
	Get(id string) (domain.Task, bool)
	View(filter domain.Filter, searchTerm string) domain.View
	Stats() domain.Stats
}

var _ TaskStore = (*store.Store)(nil)

// New builds the Echo instance serving the task API and /metrics.
func New(s TaskStore, logger *log.Logger) *echo.Echo {
	if logger == nil {
		logger = log.StandardLogger()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, headerConfirmDelete},
	}))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		newTaskCollector(s),
	)
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "prism_todo",
		Registerer: reg,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg}))

	Register(e, s, logger)
	return e
}

// Serve runs e on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, e *echo.Echo, addr string, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("http server listening")
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("http server stopped")
	return nil
}

// taskCollector exports the current task counts as gauges.
type taskCollector struct {
	stats func() domain.Stats
	desc  *prometheus.Desc
}

func newTaskCollector(s TaskStore) *taskCollector {
	return &taskCollector{
		stats: s.Stats,
		desc: prometheus.NewDesc(
			"prism_todo_tasks",
			"Number of tasks by completion state.",
			[]string{"state"}, nil,
		),
	}
}

func (c *taskCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *taskCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.stats()
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(st.Pending), string(domain.FilterPending))
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(st.Done), string(domain.FilterDone))
}
