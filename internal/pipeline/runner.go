// SPDX-License-Identifier: MIT

// Package pipeline wires the guide stages together and runs them once, on a
// cron schedule or whenever the input file changes.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	lklog "github.com/anilwee/dialog/internal/log"
	"github.com/anilwee/dialog/internal/metrics"
	"github.com/anilwee/dialog/internal/telemetry"
)

const tracerName = "github.com/anilwee/dialog/internal/pipeline"

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Stage is one named step of a run.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// StageResult records the outcome of one stage.
type StageResult struct {
	Name     string
	Duration time.Duration
	Err      error
}

// Report summarises a run.
type Report struct {
	RunID  string
	Stages []StageResult
}

// Runner executes stages in order and stops at the first failure.
type Runner struct {
	stages []Stage
	logger zerolog.Logger
	// MetricsFile, when set, receives a textfile dump after every run.
	MetricsFile string
}

// NewRunner returns a runner for stages.
func NewRunner(logger zerolog.Logger, stages ...Stage) *Runner {
	return &Runner{
		stages: stages,
		logger: logger.With().Str(lklog.FieldComponent, "pipeline").Logger(),
	}
}

// Run executes every stage with a fresh run id attached to ctx. The run and
// each stage get a span from the global tracer provider.
func (r *Runner) Run(ctx context.Context) (_ Report, runErr error) {
	runID := lklog.NewRunID()
	tracer := telemetry.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		telemetry.RunIDKey.String(runID),
		telemetry.StagesKey.Int(len(r.stages)),
	))
	defer func() { endSpan(span, runErr) }()

	ctx = lklog.ContextWithRunID(ctx, runID)
	logger := lklog.WithContext(ctx, r.logger)
	ctx = logger.WithContext(ctx)

	rep := Report{RunID: runID}
	started := time.Now()
	logger.Info().Str(lklog.FieldEvent, "run.start").Int("stages", len(r.stages)).Msg("pipeline started")

	for _, st := range r.stages {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		stageCtx := lklog.ContextWithStage(ctx, st.Name)
		stageLogger := lklog.WithContext(stageCtx, r.logger)
		stageCtx = stageLogger.WithContext(stageCtx)

		stageCtx, stageSpan := tracer.Start(stageCtx, "pipeline.stage "+st.Name, trace.WithAttributes(
			telemetry.RunIDKey.String(runID),
			telemetry.StageKey.String(st.Name),
		))
		t0 := time.Now()
		err := st.Run(stageCtx)
		d := time.Since(t0)
		endSpan(stageSpan, err)
		metrics.ObserveStage(st.Name, d, err)
		rep.Stages = append(rep.Stages, StageResult{Name: st.Name, Duration: d, Err: err})

		if err != nil {
			stageLogger.Error().Err(err).Dur("elapsed", d).Msg("stage failed")
			runErr = fmt.Errorf("stage %s: %w", st.Name, err)
			break
		}
		stageLogger.Info().Dur("elapsed", d).Msg("stage complete")
	}

	if runErr == nil {
		metrics.MarkSuccess(time.Now())
		logger.Info().Str(lklog.FieldEvent, "run.success").Dur("elapsed", time.Since(started)).Msg("pipeline complete")
	}
	if r.MetricsFile != "" {
		if err := metrics.WriteTextfile(r.MetricsFile); err != nil {
			logger.Warn().Err(err).Str(lklog.FieldPath, r.MetricsFile).Msg("metrics textfile not written")
		}
	}
	return rep, runErr
}
