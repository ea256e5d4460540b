package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Step is one unit of a checkout. Compensate undoes a successful Execute.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

// Orchestrator runs steps in order and, when one fails, compensates the
// ones that already succeeded in reverse order.
type Orchestrator struct {
	checkoutID string
	steps      []Step
	recorder   Recorder
	payload    json.RawMessage
}

// NewOrchestrator builds an orchestrator. recorder may be nil.
func NewOrchestrator(checkoutID string, steps []Step, recorder Recorder, payload any) *Orchestrator {
	o := &Orchestrator{checkoutID: checkoutID, steps: steps, recorder: recorder}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			o.payload = b
		}
	}
	return o
}

// Start runs the checkout. The returned error is the failing step's error;
// compensation failures are logged and recorded but never replace it.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, span := otel.Tracer("checkout").Start(ctx, "checkout")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.id", o.checkoutID))

	o.record(ctx, StatusStarted, "", o.payload, nil)

	var done []Step
	for _, step := range o.steps {
		if err := o.execute(ctx, step); err != nil {
			slog.WarnContext(ctx, "checkout step failed, compensating",
				"checkout_id", o.checkoutID,
				"step", step.Name(),
				"error", err,
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, step.Name())

			errs := []string{fmt.Sprintf("%s failed: %v", step.Name(), err)}
			o.record(ctx, StatusCompensating, step.Name(), nil, errs)
			errs = append(errs, o.rollback(ctx, done)...)
			o.record(ctx, StatusFailed, step.Name(), nil, errs)
			return err
		}
		done = append(done, step)
		o.record(ctx, StatusStepDone, step.Name(), nil, nil)
	}

	o.record(ctx, StatusCompleted, "", nil, nil)
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, step Step) error {
	ctx, span := otel.Tracer("checkout").Start(ctx, step.Name())
	defer span.End()

	if err := step.Execute(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// rollback compensates in LIFO order on a context that outlives the caller,
// so a disconnected client cannot leave stock reserved.
func (o *Orchestrator) rollback(ctx context.Context, steps []Step) []string {
	ctx = context.WithoutCancel(ctx)

	var errs []string
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		slog.InfoContext(ctx, "compensating checkout step", "checkout_id", o.checkoutID, "step", step.Name())
		if err := step.Compensate(ctx); err != nil {
			slog.ErrorContext(ctx, "CRITICAL: failed to compensate checkout step",
				"checkout_id", o.checkoutID,
				"step", step.Name(),
				"error", err,
			)
			errs = append(errs, fmt.Sprintf("compensation of %s failed: %v", step.Name(), err))
		}
	}
	return errs
}

func (o *Orchestrator) record(ctx context.Context, status Status, step string, payload json.RawMessage, errs []string) {
	if o.recorder == nil {
		return
	}
	o.recorder.Record(ctx, NewEntry(ctx, o.checkoutID, status, step, payload, errs))
}
