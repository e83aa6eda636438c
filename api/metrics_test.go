package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"prism-todo/storage"
)

// spanRecorder installs an in-memory tracer provider for one test.
type spanRecorder struct {
	t        *testing.T
	provider *sdktrace.TracerProvider
	exporter *tracetest.InMemoryExporter
}

func recordSpans(t *testing.T) *spanRecorder {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return &spanRecorder{t: t, provider: provider, exporter: exp}
}

// ended flushes and returns the finished spans, failing unless there are want.
func (r *spanRecorder) ended(want int) tracetest.SpanStubs {
	r.t.Helper()
	if err := r.provider.ForceFlush(context.Background()); err != nil {
		r.t.Fatalf("flush: %v", err)
	}
	got := r.exporter.GetSpans()
	if len(got) != want {
		r.t.Fatalf("got %d spans, want %d", len(got), want)
	}
	return got
}

func kv(attrs []attribute.KeyValue) map[string]any {
	m := make(map[string]any, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value.AsInterface()
	}
	return m
}

func spanEvent(span tracetest.SpanStub, name string) (sdktrace.Event, bool) {
	for _, ev := range span.Events {
		if ev.Name == name {
			return ev, true
		}
	}
	return sdktrace.Event{}, false
}

func TestRequestMetricsSuccess(t *testing.T) {
	spans := recordSpans(t)
	logger, hook := test.NewNullLogger()
	logger.SetFormatter(&log.JSONFormatter{})

	m, ctx := newRequestMetrics(context.Background(), logger, http.MethodGet, routeTasks)
	if ctx == nil {
		t.Fatal("nil request context")
	}
	m.start = m.start.Add(-40 * time.Millisecond)
	m.ObserveStore(12 * time.Millisecond)
	m.ObserveEncode(3 * time.Millisecond)
	m.SetTasksReturned(4)
	m.Log(http.StatusOK, nil)

	entry := hook.LastEntry()
	if entry == nil || entry.Message != observabilityEvent || entry.Level != log.InfoLevel {
		t.Fatalf("want one info %s entry, got %#v", observabilityEvent, entry)
	}
	for field, want := range map[string]any{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"severity_text":   "INFO",
		"severity_number": 9,
	} {
		if entry.Data[field] != want {
			t.Errorf("log field %s = %#v, want %#v", field, entry.Data[field], want)
		}
	}
	if id, _ := entry.Data["trace_id"].(string); id == "" {
		t.Errorf("trace_id missing from %#v", entry.Data)
	}

	attrs, ok := entry.Data["attributes"].(map[string]any)
	if !ok {
		t.Fatalf("attributes field has type %T", entry.Data["attributes"])
	}
	if attrs["http.route"] != routeTasks || attrs["http.method"] != http.MethodGet || attrs[attrPrefix+"tasks_returned"] != 4 {
		t.Errorf("request attributes = %#v", attrs)
	}
	if total, _ := attrs[attrPrefix+"total_ms"].(float64); total < 40 {
		t.Errorf("total_ms = %#v, want at least 40", attrs[attrPrefix+"total_ms"])
	}
	if stage, found := attrs[attrPrefix+"error_stage"]; found {
		t.Errorf("unexpected error_stage %#v", stage)
	}

	span := spans.ended(1)[0]
	if span.Name != requestSpanName || span.Status.Code != codes.Ok {
		t.Fatalf("span %s finished with %v", span.Name, span.Status)
	}
	if code := kv(span.Attributes)["http.status_code"]; code != int64(http.StatusOK) {
		t.Errorf("span http.status_code = %#v", code)
	}
	ev, ok := spanEvent(span, observabilityEvent)
	if !ok {
		t.Fatalf("span has no %s event: %#v", observabilityEvent, span.Events)
	}
	if got := kv(ev.Attributes); got["event.name"] != requestEventName || got["severity_text"] != "INFO" {
		t.Errorf("span event attributes = %#v", got)
	}
}

func TestRequestMetricsFailure(t *testing.T) {
	spans := recordSpans(t)
	logger, hook := test.NewNullLogger()

	m, _ := newRequestMetrics(context.Background(), logger, http.MethodPost, routeTasks)
	cause := errors.New("slot unavailable")
	m.Fail("persist", cause)
	m.Log(http.StatusInternalServerError, nil)

	if entry := hook.LastEntry(); entry == nil || entry.Level != log.ErrorLevel {
		t.Fatalf("want an error entry, got %#v", entry)
	}

	span := spans.ended(1)[0]
	if span.Status.Code != codes.Error || span.Status.Description == "" {
		t.Fatalf("span status = %+v", span.Status)
	}
	ev, _ := spanEvent(span, observabilityEvent)
	got := kv(ev.Attributes)
	if got["severity_text"] != "ERROR" || got[attrPrefix+"error_stage"] != "persist" || got["error.message"] != cause.Error() {
		t.Fatalf("span event attributes = %#v", got)
	}
}

func TestEveryRequestIsTraced(t *testing.T) {
	spans := recordSpans(t)
	e, _, hook := newTestServer(t, storage.NewMemorySlot())

	createVia(t, e, "Water the plants", "low")
	do(e, http.MethodPost, "/api/tasks", `{"title":"no"}`, nil)

	rejected := kv(spans.ended(2)[1].Attributes)
	if rejected["http.status_code"] != int64(http.StatusUnprocessableEntity) || rejected[attrPrefix+"error_stage"] != "validation" {
		t.Fatalf("rejected request attributes = %#v", rejected)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Level != log.WarnLevel {
		t.Fatalf("client errors should log at warn, got %#v", entry)
	}
}

func TestReturnedErrorsLogTheStatusSent(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"http error":  {err: echo.NewHTTPError(http.StatusServiceUnavailable, "busy"), want: http.StatusServiceUnavailable},
		"plain error": {err: errors.New("broken"), want: http.StatusInternalServerError},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			recordSpans(t)
			logger, hook := test.NewNullLogger()
			e := echo.New()
			e.GET("/fails", instrument(logger, "/fails", func(echo.Context, *requestMetrics) error {
				return c.err
			}))

			rec := do(e, http.MethodGet, "/fails", "", nil)
			if rec.Code != c.want {
				t.Fatalf("response status %d, want %d", rec.Code, c.want)
			}
			entry := hook.LastEntry()
			if entry == nil {
				t.Fatal("no observability event logged")
			}
			attrs, _ := entry.Data["attributes"].(map[string]any)
			if attrs["http.status_code"] != c.want {
				t.Fatalf("logged status %#v, want %d", attrs["http.status_code"], c.want)
			}
			if entry.Level != log.ErrorLevel {
				t.Fatalf("logged at %v, want error", entry.Level)
			}
		})
	}
}

func TestSeverityForStatus(t *testing.T) {
	cases := map[string]struct {
		status int
		err    error
		text   string
		number int
	}{
		"2xx":        {status: http.StatusNoContent, text: "INFO", number: 9},
		"3xx":        {status: http.StatusNotModified, text: "INFO", number: 9},
		"4xx":        {status: http.StatusNotFound, text: "WARN", number: 13},
		"5xx":        {status: http.StatusServiceUnavailable, text: "ERROR", number: 17},
		"error wins": {status: http.StatusOK, err: errors.New("x"), text: "ERROR", number: 17},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			text, number := severityForStatus(c.status, c.err)
			if text != c.text || number != c.number {
				t.Fatalf("got %s/%d, want %s/%d", text, number, c.text, c.number)
			}
		})
	}
}
