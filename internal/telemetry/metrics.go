package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	TokensUsed          metric.Int64Counter
	ExtractionDuration  metric.Float64Histogram
	WriteConflicts      metric.Int64Counter
	RecipesCommitted    metric.Int64Counter
	DuplicatesRejected  metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("recipe-vault-backend")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	)
	if err != nil {
		return nil, err
	}

	extractionDuration, err := meter.Float64Histogram(
		"extraction.duration",
		metric.WithDescription("Recipe extraction duration per file in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	writeConflicts, err := meter.Int64Counter(
		"catalog.write_conflicts.total",
		metric.WithDescription("Conditional write conflicts per document"),
	)
	if err != nil {
		return nil, err
	}

	recipesCommitted, err := meter.Int64Counter(
		"catalog.recipes_committed.total",
		metric.WithDescription("Recipes committed to the catalog"),
	)
	if err != nil {
		return nil, err
	}

	duplicatesRejected, err := meter.Int64Counter(
		"catalog.duplicates_rejected.total",
		metric.WithDescription("Candidates rejected as duplicates"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		TokensUsed:          tokensUsed,
		ExtractionDuration:  extractionDuration,
		WriteConflicts:      writeConflicts,
		RecipesCommitted:    recipesCommitted,
		DuplicatesRejected:  duplicatesRejected,
		CircuitBreakerState: circuitBreakerState,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
		attribute.String("service", "gemini"),
	}

	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}

// RecordExtraction records per-file extraction metrics
func (m *Metrics) RecordExtraction(duration float64, kind, status string) {
	attrs := []attribute.KeyValue{
		attribute.String("extraction.kind", kind),
		attribute.String("extraction.status", status),
	}

	m.ExtractionDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordWriteConflict records a conditional write conflict on a document
func (m *Metrics) RecordWriteConflict(document string) {
	attrs := []attribute.KeyValue{
		attribute.String("document", document),
	}

	m.WriteConflicts.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordRecipesCommitted records successfully committed recipes
func (m *Metrics) RecordRecipesCommitted(count int64) {
	m.RecipesCommitted.Add(context.Background(), count)
}

// RecordDuplicateRejected records a candidate rejected as a duplicate
func (m *Metrics) RecordDuplicateRejected(kind string) {
	attrs := []attribute.KeyValue{
		attribute.String("duplicate.kind", kind),
	}

	m.DuplicatesRejected.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
