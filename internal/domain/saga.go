package domain

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "rallyup/backend/internal/domain"

// Step is one independently retryable write of a saga. Run must be
// idempotent: re-running a step that already applied is a no-op.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// SagaObserver receives the outcome of every step.
type SagaObserver interface {
	ObserveStep(op, step string, err error)
	ObservePartialFailure(op, step string)
}

// Saga runs steps in order and stops at the first failure. A failure after at
// least one applied step is reported as *PartialFailure; a failure of the
// first step is returned as is, since nothing was written.
type Saga struct {
	Op       string
	Logger   *slog.Logger
	Observer SagaObserver
}

func (s Saga) Run(ctx context.Context, steps ...Step) error {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, s.Op)
	defer span.End()

	log := s.Logger
	if log == nil {
		log = slog.Default()
	}

	var completed []string
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return s.fail(span, log, completed, st.Name, err)
		}
		err := s.runStep(ctx, tracer, st)
		if s.Observer != nil {
			s.Observer.ObserveStep(s.Op, st.Name, err)
		}
		if err != nil {
			return s.fail(span, log, completed, st.Name, err)
		}
		completed = append(completed, st.Name)
	}
	return nil
}

func (s Saga) runStep(ctx context.Context, tracer trace.Tracer, st Step) error {
	ctx, span := tracer.Start(ctx, s.Op+"/"+st.Name,
		trace.WithAttributes(attribute.String("saga.step", st.Name)))
	defer span.End()
	err := st.Run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s Saga) fail(span trace.Span, log *slog.Logger, completed []string, step string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if len(completed) == 0 {
		return err
	}
	if s.Observer != nil {
		s.Observer.ObservePartialFailure(s.Op, step)
	}
	log.Warn("domain: saga stopped after partial completion",
		"op", s.Op,
		"failed_step", step,
		"completed", completed,
		"error", err,
	)
	return &PartialFailure{Op: s.Op, Completed: completed, Failed: step, Err: err}
}
