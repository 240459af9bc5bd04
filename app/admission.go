package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/westsidetechsolutions/meter/domain/billing"
	"github.com/westsidetechsolutions/meter/domain/quota"
	"github.com/westsidetechsolutions/meter/domain/usage"
	"github.com/westsidetechsolutions/meter/ports"
)

const tracerName = "github.com/westsidetechsolutions/meter/app"

// Admission runs the request admission flow for metered operations:
// authenticate, resolve window, load usage, check, increment.
type Admission struct {
	keys     *KeyService
	usage    *UsageService
	limits   *LimitService
	observer ports.AdmissionObserver
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// AdmissionDeps contains dependencies for Admission.
type AdmissionDeps struct {
	Keys     *KeyService
	Usage    *UsageService
	Limits   *LimitService
	Observer ports.AdmissionObserver
}

// NewAdmission creates the admission flow.
func NewAdmission(deps AdmissionDeps, logger zerolog.Logger) *Admission {
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &Admission{
		keys:     deps.Keys,
		usage:    deps.Usage,
		limits:   deps.Limits,
		observer: deps.Observer,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// AdmitRequest describes a metered request.
type AdmitRequest struct {
	Token string
	Field usage.Field
	Cost  int64
}

// AdmitResult is the outcome of admission.
// Denial is set when the request was refused; nothing was counted then.
type AdmitResult struct {
	Principal Principal
	Window    billing.Window
	// Check is the decision against the pre-increment value.
	Check quota.Decision
	// After is the decision against the post-increment value.
	After  quota.Decision
	Record usage.Record
	Denial *Denial
}

// Admit authenticates and meters a request.
// Store failures are returned as errors and nothing is admitted.
func (a *Admission) Admit(ctx context.Context, req AdmitRequest) (AdmitResult, error) {
	ctx, span := a.tracer.Start(ctx, "meter.admit",
		trace.WithAttributes(
			attribute.String("meter.field", string(req.Field)),
			attribute.Int64("meter.cost", req.Cost),
		))
	defer span.End()

	// 1. Authenticate
	principal, denial, err := a.keys.Resolve(ctx, req.Token)
	if err != nil {
		return AdmitResult{}, a.storeFailure(span, "resolve", err)
	}
	if denial != nil {
		return a.deny(span, AdmitResult{}, req.Field, "", denial), nil
	}
	if err := usage.CheckAmount(req.Cost); err != nil {
		return AdmitResult{}, a.rejectCost(span, err)
	}
	userID := principal.Subscriber.ID
	span.SetAttributes(
		attribute.String("meter.user_id", userID),
		attribute.String("meter.plan_id", principal.Subscriber.PlanID),
	)
	res := AdmitResult{Principal: principal}

	// 2. Resolve window
	w, err := a.usage.Window(ctx, principal.Subscriber)
	if err != nil {
		return AdmitResult{}, a.storeFailure(span, "window", err)
	}
	res.Window = w
	span.SetAttributes(attribute.Bool("meter.fallback_window", w.Fallback))

	// 3. Load usage
	rec, err := a.usage.GetOrCreate(ctx, userID, w.Start, w.End)
	if err != nil {
		return AdmitResult{}, a.storeFailure(span, "load", err)
	}
	res.Record = rec

	// 4. Check against the pre-increment value
	res.Check = a.limits.EnforceLimit(principal.Subscriber, rec, req.Field)
	if !res.Check.Allowed {
		res.After = res.Check
		return a.deny(span, res, req.Field, userID, denialFor(res.Check)), nil
	}

	if current, ok := rec.Value(req.Field); ok {
		if err := usage.CheckAdd(current, req.Cost); err != nil {
			return AdmitResult{}, a.rejectCost(span, err)
		}
	}

	// 5. Increment
	rec, err = a.usage.IncrementIn(ctx, userID, w, req.Field, req.Cost)
	if errors.Is(err, usage.ErrOverflow) {
		return AdmitResult{}, a.rejectCost(span, err)
	}
	if err != nil {
		return AdmitResult{}, a.storeFailure(span, "increment", err)
	}
	res.Record = rec
	res.After = a.limits.EnforceLimit(principal.Subscriber, rec, req.Field)

	a.observer.Admitted(req.Field, principal.Subscriber.PlanID)
	if res.After.Approaching {
		a.logger.Debug().Str("user_id", userID).Str("field", string(req.Field)).
			Int64("current", res.After.Current).Int64("limit", res.After.Limit).
			Msg("usage approaching limit")
	}
	return res, nil
}

func (a *Admission) deny(span trace.Span, res AdmitResult, field usage.Field, userID string, d *Denial) AdmitResult {
	res.Denial = d
	a.observer.Denied(field, d.Code)
	span.SetAttributes(attribute.String("meter.denial", d.Code))
	a.logger.Debug().
		Str("user_id", userID).
		Str("field", string(field)).
		Str("reason", d.Code).
		Msg("request denied")
	return res
}

// rejectCost reports a cost the counter cannot take. Nothing is counted.
func (a *Admission) rejectCost(span trace.Span, err error) error {
	span.SetStatus(codes.Error, err.Error())
	a.logger.Debug().Err(err).Msg("cost rejected")
	return err
}

func (a *Admission) storeFailure(span trace.Span, op string, err error) error {
	a.observer.StoreError(op)
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	a.logger.Error().Err(err).Str("op", op).Msg("admission store failure")
	return fmt.Errorf("admission %s: %w", op, err)
}

type nopObserver struct{}

func (nopObserver) Admitted(usage.Field, string) {}
func (nopObserver) Denied(usage.Field, string)   {}
func (nopObserver) StoreError(string)            {}
