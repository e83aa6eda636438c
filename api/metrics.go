package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "prism-todo/api"
	requestSpanName    = "todo.tasks.request"
	requestEventName   = "tasks.request"
	requestEventDomain = "prism-todo.api"
	observabilityEvent = "observability.event"
	attrPrefix         = "todo.tasks."
)

type requestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	route          string
	method         string
	start          time.Time
	storeDuration  time.Duration
	encodeDuration time.Duration
	taskID         string
	tasksReturned  int
	errorStage     string
	cause          error
}

// newRequestMetrics starts a server span for the request. The returned
// context carries the span and should replace the request context.
func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := otel.GetTracerProvider().Tracer(tracerName).Start(ctx, requestSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.route", route),
			attribute.String("http.method", method),
		),
	)
	return &requestMetrics{
		logger: logger,
		span:   span,
		route:  route,
		method: method,
		start:  time.Now(),
	}, ctx
}

func (m *requestMetrics) ObserveStore(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.storeDuration = duration
}

func (m *requestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *requestMetrics) SetTaskID(id string) {
	m.taskID = id
}

func (m *requestMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Fail records the stage a request failed at and, optionally, the cause.
func (m *requestMetrics) Fail(stage string, cause error) {
	m.SetErrorStage(stage)
	if cause != nil {
		m.cause = cause
	}
}

// Log ends the span and emits one observability event for the request.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	if err == nil {
		err = m.cause
	}
	total := durationToMillis(time.Since(m.start))

	attrs := map[string]any{
		"http.route":                  m.route,
		"http.method":                 m.method,
		"http.status_code":            status,
		attrPrefix + "total_ms":       total,
		attrPrefix + "tasks_returned": m.tasksReturned,
	}
	spanAttrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.String("http.method", m.method),
		attribute.Int("http.status_code", status),
		attribute.Float64(attrPrefix+"total_ms", total),
		attribute.Int(attrPrefix+"tasks_returned", m.tasksReturned),
	}
	if m.taskID != "" {
		attrs[attrPrefix+"task_id"] = m.taskID
		spanAttrs = append(spanAttrs, attribute.String(attrPrefix+"task_id", m.taskID))
	}
	if m.storeDuration > 0 {
		ms := durationToMillis(m.storeDuration)
		attrs[attrPrefix+"store_ms"] = ms
		spanAttrs = append(spanAttrs, attribute.Float64(attrPrefix+"store_ms", ms))
	}
	if m.encodeDuration > 0 {
		ms := durationToMillis(m.encodeDuration)
		attrs[attrPrefix+"encode_ms"] = ms
		spanAttrs = append(spanAttrs, attribute.Float64(attrPrefix+"encode_ms", ms))
	}
	if m.errorStage != "" {
		attrs[attrPrefix+"error_stage"] = m.errorStage
		spanAttrs = append(spanAttrs, attribute.String(attrPrefix+"error_stage", m.errorStage))
	}
	if err != nil {
		attrs["error.message"] = err.Error()
		spanAttrs = append(spanAttrs, attribute.String("error.message", err.Error()))
	}

	sevText, sevNumber := severityForStatus(status, err)

	if m.span != nil {
		m.span.SetAttributes(spanAttrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", requestEventName),
			attribute.String("event.domain", requestEventDomain),
			attribute.String("severity_text", sevText),
			attribute.Int("severity_number", sevNumber),
		}, spanAttrs...)
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
		switch {
		case err != nil:
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		case status >= http.StatusInternalServerError:
			m.span.SetStatus(codes.Error, http.StatusText(status))
		default:
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"attributes":      attrs,
		"severity_text":   sevText,
		"severity_number": sevNumber,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	entry := m.logger.WithFields(fields)
	switch sevText {
	case "ERROR":
		entry.Error(observabilityEvent)
	case "WARN":
		entry.Warn(observabilityEvent)
	default:
		entry.Info(observabilityEvent)
	}
}

// severityForStatus maps a response to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
