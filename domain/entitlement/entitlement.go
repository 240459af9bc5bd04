// Package entitlement provides the plan entitlement catalog.
// Entitlements are the quota ceilings granted by a subscription plan.
package entitlement

// Plan identifiers of the built-in catalog rows.
const (
	PlanFree     = "price_free"
	PlanPro      = "price_pro"
	PlanBusiness = "price_business"
)

// Record holds the quota ceilings for a plan (immutable value type).
// A nil limit means unlimited.
type Record struct {
	PlanID             string
	MaxItems           *int64
	MaxAPICalls        *int64
	MaxStorageMB       *int64
	SoftOveragePercent float64 // in (0,1], advisory only
}

// Limit returns a pointer to n, for building records.
func Limit(n int64) *int64 {
	return &n
}

// Catalog is a static plan -> entitlement mapping with a free-tier fallback.
// It is never mutated after construction.
type Catalog struct {
	rows     map[string]Record
	fallback string
}

// builtin returns the default catalog rows.
func builtin() []Record {
	return []Record{
		{
			PlanID:             PlanFree,
			MaxItems:           Limit(100),
			MaxAPICalls:        Limit(1000),
			MaxStorageMB:       Limit(100),
			SoftOveragePercent: 0.8,
		},
		{
			PlanID:             PlanPro,
			MaxItems:           Limit(10000),
			MaxAPICalls:        Limit(100000),
			MaxStorageMB:       Limit(10240),
			SoftOveragePercent: 0.8,
		},
		{
			PlanID:             PlanBusiness,
			MaxStorageMB:       Limit(102400),
			SoftOveragePercent: 0.9,
		},
	}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return NewCatalog(PlanFree)
}

// NewCatalog builds a catalog from the built-in rows overlaid with extra rows.
// Rows with an empty PlanID or with PlanFree are ignored, so the free row
// always keeps its built-in limits. If fallback does not name a known row,
// the built-in free row is used as fallback. A fallback other than PlanFree
// makes unknown plans resolve to that row instead of the free tier.
func NewCatalog(fallback string, extra ...Record) *Catalog {
	c := &Catalog{rows: make(map[string]Record)}
	for _, r := range builtin() {
		c.rows[r.PlanID] = r
	}
	for _, r := range extra {
		if r.PlanID == "" || r.PlanID == PlanFree {
			continue
		}
		c.rows[r.PlanID] = normalize(r)
	}
	if _, ok := c.rows[fallback]; !ok {
		fallback = PlanFree
	}
	c.fallback = fallback
	return c
}

// Get returns the entitlements for a plan identifier.
// Matching is exact and case-sensitive; empty or unknown identifiers
// resolve to the fallback (free tier) row. Never fails.
func (c *Catalog) Get(planID string) Record {
	if r, ok := c.rows[planID]; ok {
		return copyRecord(r)
	}
	return copyRecord(c.rows[c.fallback])
}

// Known reports whether planID names a catalog row.
func (c *Catalog) Known(planID string) bool {
	_, ok := c.rows[planID]
	return ok
}

// FallbackID returns the plan identifier used for unknown plans.
func (c *Catalog) FallbackID() string {
	return c.fallback
}

// Plans returns all catalog rows.
func (c *Catalog) Plans() []Record {
	out := make([]Record, 0, len(c.rows))
	for _, r := range c.rows {
		out = append(out, copyRecord(r))
	}
	return out
}

// normalize clamps the soft overage threshold into (0,1] and drops negative limits.
func normalize(r Record) Record {
	if r.SoftOveragePercent <= 0 || r.SoftOveragePercent > 1 {
		r.SoftOveragePercent = 1
	}
	for _, l := range []**int64{&r.MaxItems, &r.MaxAPICalls, &r.MaxStorageMB} {
		if *l != nil && **l < 0 {
			*l = nil
		}
	}
	return r
}

// copyRecord detaches the limit pointers so callers cannot mutate the catalog.
func copyRecord(r Record) Record {
	for _, l := range []**int64{&r.MaxItems, &r.MaxAPICalls, &r.MaxStorageMB} {
		if *l != nil {
			*l = Limit(**l)
		}
	}
	return r
}
