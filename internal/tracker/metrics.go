package tracker

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/thebtf/dailyscore/internal/classifier"
	"github.com/thebtf/dailyscore/pkg/models"
)

type metrics struct {
	tasksCreated  metric.Int64Counter
	tasksReviewed metric.Int64Counter
	tasksDeleted  metric.Int64Counter
	settlements   metric.Int64Counter
	badges        metric.Int64Counter
	classified    metric.Int64Counter
}

func newMetrics(meter metric.Meter, log zerolog.Logger) *metrics {
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to create counter, using no-op")
			return noop.Int64Counter{}
		}
		return c
	}
	return &metrics{
		tasksCreated:  counter("dailyscore.tasks.created", "Tasks created"),
		tasksReviewed: counter("dailyscore.tasks.reviewed", "Tasks reviewed, by outcome"),
		tasksDeleted:  counter("dailyscore.tasks.deleted", "Tasks deleted"),
		settlements:   counter("dailyscore.settlements", "Weekly settlements applied"),
		badges:        counter("dailyscore.badges.awarded", "Badges awarded"),
		classified:    counter("dailyscore.classifications", "Classifier results, by source"),
	}
}

func (m *metrics) created(ctx context.Context, res classifier.Result) {
	m.tasksCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("category", string(res.Category))))
	m.classified.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(res.Source))))
}

func (m *metrics) reviewed(ctx context.Context, status models.TaskStatus) {
	m.tasksReviewed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

func (m *metrics) deleted(ctx context.Context) {
	m.tasksDeleted.Add(ctx, 1)
}

func (m *metrics) settled(ctx context.Context, newBadges int) {
	m.settlements.Add(ctx, 1)
	if newBadges > 0 {
		m.badges.Add(ctx, int64(newBadges))
	}
}
