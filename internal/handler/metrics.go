package handler

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the API-level instruments. A nil *Metrics is a no-op so
// tests can pass nil without wiring a meter.
type Metrics struct {
	validations metric.Int64Counter
}

// NewMetrics registers the API instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	validations, err := meter.Int64Counter("offer_validations_total",
		metric.WithDescription("Offer validation attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create offer_validations_total counter")
	}
	return &Metrics{validations: validations}, nil
}

// RecordValidation counts one validation attempt with its outcome label.
func (m *Metrics) RecordValidation(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.validations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
