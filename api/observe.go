package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "github.com/azzy787/task-board-mvp/api"
	observeEventName   = "board.request"
	observeEventDomain = "board"
)

// requestMetrics records one API operation as a span and a structured
// observability.event log entry.
type requestMetrics struct {
	logger     *log.Logger
	span       trace.Span
	op         string
	route      string
	start      time.Time
	auth       time.Duration
	store      time.Duration
	errorStage string
	attrs      map[string]any
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, op, route string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, "board."+op, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{
		logger: logger,
		span:   span,
		op:     op,
		route:  route,
		start:  time.Now(),
		attrs:  map[string]any{},
	}, spanCtx
}

func (m *requestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.auth = d
	}
}

func (m *requestMetrics) ObserveStore(d time.Duration) {
	if d > 0 {
		m.store += d
	}
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Set records an operation specific attribute under board.<op>.<key>.
func (m *requestMetrics) Set(key string, value any) {
	m.attrs[m.key(key)] = value
}

func (m *requestMetrics) key(name string) string {
	return "board." + m.op + "." + name
}

func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	severityText, severityNumber := severityForStatus(status, err)

	attrs := map[string]any{
		"http.route":        m.route,
		"http.status_code":  status,
		m.key("total_ms"):   durationToMillis(time.Since(m.start)),
		m.key("auth_ms"):    durationToMillis(m.auth),
		m.key("storage_ms"): durationToMillis(m.store),
	}
	for k, v := range m.attrs {
		attrs[k] = v
	}
	if m.errorStage != "" {
		attrs[m.key("error_stage")] = m.errorStage
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	}

	kvs := toKeyValues(attrs)
	m.span.SetAttributes(
		attribute.String("http.route", m.route),
		attribute.Int64("http.status_code", int64(status)),
	)
	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", observeEventName),
		attribute.String("event.domain", observeEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, kvs...)
	m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))

	switch {
	case err != nil:
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	case status >= http.StatusInternalServerError:
		m.span.SetStatus(codes.Error, http.StatusText(status))
	default:
		m.span.SetStatus(codes.Ok, "")
	}

	traceID := ""
	if sc := m.span.SpanContext(); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	m.span.End()

	if m.logger == nil {
		return
	}
	entry := m.logger.WithFields(log.Fields{
		"event.name":      observeEventName,
		"event.domain":    observeEventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"trace_id":        traceID,
	})
	switch severityText {
	case "ERROR":
		entry.Error("observability.event")
	case "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

// severityForStatus follows the OpenTelemetry log severity numbers.
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

func toKeyValues(attrs map[string]any) []attribute.KeyValue {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		switch v := attrs[k].(type) {
		case string:
			out = append(out, attribute.String(k, v))
		case bool:
			out = append(out, attribute.Bool(k, v))
		case int:
			out = append(out, attribute.Int(k, v))
		case int64:
			out = append(out, attribute.Int64(k, v))
		case float64:
			out = append(out, attribute.Float64(k, v))
		default:
			out = append(out, attribute.String(k, fmt.Sprint(v)))
		}
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
