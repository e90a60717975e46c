package curation

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/xfeed/pkg/models"
)

var meter = otel.Meter("xfeed.curation")

var (
	cycleTotal       metric.Int64Counter
	cycleLatency     metric.Float64Histogram
	entriesEmitted   metric.Int64Counter
	explorationSlots metric.Int64Counter
	defectsTotal     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments once. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cycleTotal, err = meter.Int64Counter(
			"curation_cycles_total",
			metric.WithDescription("Total number of curation cycles"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cycleLatency, err = meter.Float64Histogram(
			"curation_cycle_duration_seconds",
			metric.WithDescription("Duration of curation cycles"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		entriesEmitted, err = meter.Int64Counter(
			"curation_entries_total",
			metric.WithDescription("Feed entries emitted"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		explorationSlots, err = meter.Int64Counter(
			"curation_exploration_selected_total",
			metric.WithDescription("Exploration candidates selected"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		defectsTotal, err = meter.Int64Counter(
			"curation_defects_total",
			metric.WithDescription("Input and state defects by category"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordCycle records one finished or failed cycle.
func recordCycle(ctx context.Context, duration time.Duration, result *models.CurationResult, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	// A cancelled cycle context must not drop the measurement.
	ctx = context.WithoutCancel(ctx)

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	cycleTotal.Add(ctx, 1, attrs)
	cycleLatency.Record(ctx, duration.Seconds(), attrs)

	if result == nil {
		return
	}
	entriesEmitted.Add(ctx, int64(len(result.Entries)))
	explorationSlots.Add(ctx, int64(result.ExplorationSelected))

	d := result.Defects
	for category, n := range map[string]int{
		"missing_identity":       d.MissingIdentity,
		"missing_author":         d.MissingAuthor,
		"duplicate_identity":     d.DuplicateIdentity,
		"missing_score":          d.MissingScore,
		"malformed_score":        d.MalformedScore,
		"excluded_by_oracle":     d.ExcludedByOracle,
		"reputation_unavailable": d.ReputationUnavailable,
	} {
		if n > 0 {
			defectsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("category", category)))
		}
	}
}
