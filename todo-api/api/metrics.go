package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName          = "prism-todo/todo-api/api"
	requestSpanName     = "todo.request"
	requestEventName    = "todo.request.completed"
	requestEventDomain  = "prism.todo"
	observabilityEvent  = "observability.event"
	attrPrefix          = "prism.todo."
	metricsContextKey   = "request.metrics"
	severityInfoNumber  = 9
	severityWarnNumber  = 13
	severityErrorNumber = 17
)

// requestMetrics collects per-request timings and reports them once as an
// observability event, both on the logger and on the request span.
type requestMetrics struct {
	logger *log.Logger
	span   trace.Span
	route  string
	method string
	start  time.Time

	authDuration   time.Duration
	storeDuration  time.Duration
	encodeDuration time.Duration
	tasks          int
	errorStage     string
	err            error
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName,
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
		tasks:  -1,
	}, spanCtx
}

// RequestMetricsMiddleware starts a span for every request and logs its outcome.
func RequestMetricsMiddleware(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			m, ctx := newRequestMetrics(req.Context(), logger, req.Method, c.Path())
			c.SetRequest(req.WithContext(ctx))
			c.Set(metricsContextKey, m)

			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				status = he.Code
			}
			m.Log(status, err)
			return err
		}
	}
}

// metricsFrom returns the metrics attached by RequestMetricsMiddleware. When the
// middleware is not installed a detached collector is returned so handlers never
// need nil checks.
func metricsFrom(c echo.Context) *requestMetrics {
	if m, ok := c.Get(metricsContextKey).(*requestMetrics); ok {
		return m
	}
	return &requestMetrics{tasks: -1}
}

func (m *requestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *requestMetrics) ObserveStore(d time.Duration) {
	if d > 0 {
		m.storeDuration += d
	}
}

func (m *requestMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration = d
	}
}

func (m *requestMetrics) SetTasks(n int) {
	if n < 0 {
		n = 0
	}
	m.tasks = n
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Fail records the stage and cause of a failure answered with an error status.
func (m *requestMetrics) Fail(stage string, err error) {
	m.SetErrorStage(stage)
	m.err = err
}

// Log emits the observability event and ends the span.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	if err == nil {
		err = m.err
	}
	severityText, severityNumber := severityForStatus(status, err)

	attrs := map[string]any{
		"http.route":           m.route,
		"http.method":          m.method,
		"http.status_code":     status,
		attrPrefix + "total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.authDuration > 0 {
		attrs[attrPrefix+"auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.storeDuration > 0 {
		attrs[attrPrefix+"store_ms"] = durationToMillis(m.storeDuration)
	}
	if m.encodeDuration > 0 {
		attrs[attrPrefix+"encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.tasks >= 0 {
		attrs[attrPrefix+"tasks_returned"] = m.tasks
	}
	if m.errorStage != "" {
		attrs[attrPrefix+"error_stage"] = m.errorStage
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	}

	if m.span != nil {
		m.recordSpan(status, err, severityText, severityNumber, attrs)
	}
	if m.logger == nil {
		return
	}

	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrs,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	m.logger.WithFields(fields).Log(logLevelFor(severityNumber), observabilityEvent)
}

func (m *requestMetrics) recordSpan(status int, err error, severityText string, severityNumber int, attrs map[string]any) {
	kvs := make([]attribute.KeyValue, 0, len(attrs)+4)
	kvs = append(kvs,
		attribute.String("event.name", requestEventName),
		attribute.String("event.domain", requestEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	)
	for k, v := range attrs {
		kvs = append(kvs, toAttribute(k, v))
	}
	m.span.AddEvent(observabilityEvent, trace.WithAttributes(kvs...))

	m.span.SetAttributes(attribute.Int("http.status_code", status))
	if m.errorStage != "" {
		m.span.SetAttributes(attribute.String(attrPrefix+"error_stage", m.errorStage))
	}
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

func toAttribute(k string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(k, val)
	case int:
		return attribute.Int(k, val)
	case float64:
		return attribute.Float64(k, val)
	case bool:
		return attribute.Bool(k, val)
	default:
		return attribute.String(k, "")
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", severityErrorNumber
	case status >= http.StatusBadRequest:
		return "WARN", severityWarnNumber
	default:
		return "INFO", severityInfoNumber
	}
}

func logLevelFor(severityNumber int) log.Level {
	switch {
	case severityNumber >= severityErrorNumber:
		return log.ErrorLevel
	case severityNumber >= severityWarnNumber:
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
