package rewrite

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce   sync.Once
	stageFailures metric.Int64Counter
	stageDuration metric.Float64Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/gadgethost/bridge/internal/rewrite")

		var err error
		stageFailures, err = meter.Int64Counter(
			"rewrite.stage.failures",
			metric.WithDescription("Rewriter stages that failed and were skipped"),
		)
		if err != nil {
			otel.Handle(err)
		}

		stageDuration, err = meter.Float64Histogram(
			"rewrite.stage.duration",
			metric.WithDescription("Rewriter stage execution duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// StageFailure records a stage that failed during a chain run. Failures are
// values, not control flow: the run continues and the caller decides how
// much to care.
type StageFailure struct {
	Chain string
	Stage string
	Err   error
}

// Run executes the chain's stages strictly in configured order. Each stage
// receives a clone of the current artifact; on success the stage's output
// becomes current, on failure the prior artifact flows on unmodified. The
// run itself never fails: even if every stage errors, the best available
// content is returned along with the failure records.
func Run[C Content[C]](ctx context.Context, chain Chain[C], content C) (C, []StageFailure) {
	initMetrics()

	var failures []StageFailure
	current := content

	for _, stage := range chain.stages {
		start := time.Now()
		next, err := stage.Rewrite(ctx, current.Clone())
		elapsed := time.Since(start)

		recordStage(ctx, chain.name, stage.Name(), elapsed, err)

		if err != nil {
			log.Warn().
				Err(err).
				Str("chain", chain.name).
				Str("stage", stage.Name()).
				Msg("rewriter stage failed; content passed through unmodified")

			failures = append(failures, StageFailure{
				Chain: chain.name,
				Stage: stage.Name(),
				Err:   err,
			})
			continue
		}

		current = next
	}

	return current, failures
}

// FailureStages lists the chain-qualified stage names of the failures, in
// the order they occurred. Suitable for reporting alongside degraded output.
func FailureStages(failures []StageFailure) []string {
	if len(failures) == 0 {
		return nil
	}

	names := make([]string, len(failures))
	for i, f := range failures {
		names[i] = f.Chain + "/" + f.Stage
	}
	return names
}

func recordStage(ctx context.Context, chain, stage string, elapsed time.Duration, err error) {
	if stageDuration != nil {
		stageDuration.Record(ctx, elapsed.Seconds(),
			metric.WithAttributes(
				attribute.String("rewrite.chain", chain),
				attribute.String("rewrite.stage", stage),
			),
		)
	}

	if err != nil && stageFailures != nil {
		stageFailures.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("rewrite.chain", chain),
				attribute.String("rewrite.stage", stage),
			),
		)
	}
}
