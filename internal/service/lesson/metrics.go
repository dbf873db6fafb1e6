package lesson

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("lexis/lesson")

var (
	// completionsTotal counts completions by outcome
	completionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexis_lesson_completions_total",
		Help: "Lesson completions by outcome",
	}, []string{"outcome"})

	// completionDuration tracks completion latency, transaction included
	completionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lexis_lesson_completion_duration_seconds",
		Help:    "Lesson completion duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	})

	// exercisesTotal counts persisted exercise records by result
	exercisesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexis_exercises_recorded_total",
		Help: "Exercise records persisted by result",
	}, []string{"result"})

	// proposalMismatchesTotal counts client proposals that disagreed with the derived schedule
	proposalMismatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lexis_proposal_mismatches_total",
		Help: "Client-proposed review states that disagreed with the derived ones",
	})
)
