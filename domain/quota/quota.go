// Package quota provides pure functions for entitlement limit enforcement.
// All functions are deterministic with no side effects.
package quota

import (
	"github.com/westsidetechsolutions/meter/domain/entitlement"
	"github.com/westsidetechsolutions/meter/domain/usage"
)

// Unlimited is the Limit and Remaining value reported when no ceiling applies.
const Unlimited int64 = -1

// Reasons for denial.
const (
	ReasonLimitReached = "limit_reached"
	ReasonUnknownField = "unknown_field"
	ReasonBadUsage     = "invalid_usage_value"
)

// Decision represents the outcome of a limit check (value type).
type Decision struct {
	Allowed     bool
	Field       usage.Field
	Current     int64
	Limit       int64 // Unlimited (-1) when no ceiling
	Remaining   int64 // Unlimited (-1) when no ceiling
	Approaching bool  // at or above the soft overage threshold
	PercentUsed float64
	Reason      string
}

// IsUnlimited reports whether no ceiling applied.
func (d Decision) IsUnlimited() bool {
	return d.Limit == Unlimited
}

// LimitFor returns the ceiling for a field, or nil when unlimited.
// ok is false for unknown fields.
func LimitFor(e entitlement.Record, f usage.Field) (limit *int64, ok bool) {
	switch f {
	case usage.FieldAPICalls:
		return e.MaxAPICalls, true
	case usage.FieldItemsCreated:
		return e.MaxItems, true
	case usage.FieldStorageMB:
		return e.MaxStorageMB, true
	}
	return nil, false
}

// Check decides whether a counter at current may grow under limit.
// current < limit is allowed; current == limit is denied.
// A negative current value is treated as corrupt and denied.
// This is a PURE function.
func Check(limit *int64, current int64, softPct float64) Decision {
	if current < 0 {
		return Decision{
			Current: current,
			Limit:   limitValue(limit),
			Reason:  ReasonBadUsage,
		}
	}

	if limit == nil {
		return Decision{
			Allowed:   true,
			Current:   current,
			Limit:     Unlimited,
			Remaining: Unlimited,
		}
	}

	l := *limit
	d := Decision{
		Allowed:   current < l,
		Current:   current,
		Limit:     l,
		Remaining: max(0, l-current),
	}
	if l > 0 {
		d.PercentUsed = float64(current) / float64(l) * 100
	}
	if softPct > 0 && float64(current) >= softPct*float64(l) {
		d.Approaching = true
	}
	if !d.Allowed {
		d.Reason = ReasonLimitReached
	}
	return d
}

// Enforce checks a usage record's counter against the entitlement for field.
// Unknown fields are denied.
// This is a PURE function.
func Enforce(e entitlement.Record, r usage.Record, f usage.Field) Decision {
	limit, ok := LimitFor(e, f)
	if !ok {
		return Decision{Field: f, Limit: 0, Remaining: 0, Reason: ReasonUnknownField}
	}
	current, _ := r.Value(f)
	d := Check(limit, current, e.SoftOveragePercent)
	d.Field = f
	return d
}

func limitValue(limit *int64) int64 {
	if limit == nil {
		return Unlimited
	}
	return *limit
}
