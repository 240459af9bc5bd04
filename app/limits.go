package app

import (
	"github.com/westsidetechsolutions/meter/domain/billing"
	"github.com/westsidetechsolutions/meter/domain/entitlement"
	"github.com/westsidetechsolutions/meter/domain/quota"
	"github.com/westsidetechsolutions/meter/domain/usage"
)

// LimitService checks usage against plan entitlements.
// It never blocks an increment itself; callers compose check then increment.
type LimitService struct {
	catalog *entitlement.Catalog
}

// NewLimitService creates a limit service over a catalog.
func NewLimitService(catalog *entitlement.Catalog) *LimitService {
	if catalog == nil {
		catalog = entitlement.Default()
	}
	return &LimitService{catalog: catalog}
}

// Entitlements returns the entitlements for a plan, falling back to the free tier.
func (s *LimitService) Entitlements(planID string) entitlement.Record {
	return s.catalog.Get(planID)
}

// Catalog returns the underlying catalog.
func (s *LimitService) Catalog() *entitlement.Catalog {
	return s.catalog
}

// EnforceLimit decides whether the subscriber may consume more of field.
func (s *LimitService) EnforceLimit(sub billing.Subscriber, rec usage.Record, field usage.Field) quota.Decision {
	return quota.Enforce(s.catalog.Get(sub.PlanID), rec, field)
}

// Summary returns a decision for every field.
func (s *LimitService) Summary(sub billing.Subscriber, rec usage.Record) []quota.Decision {
	ent := s.catalog.Get(sub.PlanID)
	out := make([]quota.Decision, 0, len(usage.Fields))
	for _, f := range usage.Fields {
		out = append(out, quota.Enforce(ent, rec, f))
	}
	return out
}
