package quota_test

import (
	"testing"

	"github.com/westsidetechsolutions/meter/domain/entitlement"
	"github.com/westsidetechsolutions/meter/domain/quota"
	"github.com/westsidetechsolutions/meter/domain/usage"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name          string
		limit         *int64
		current       int64
		softPct       float64
		wantAllowed   bool
		wantRemaining int64
		wantApproach  bool
		wantReason    string
	}{
		{"well under", entitlement.Limit(1000), 10, 0.8, true, 990, false, ""},
		{"one below limit", entitlement.Limit(1000), 999, 0.8, true, 1, true, ""},
		{"at limit", entitlement.Limit(1000), 1000, 0.8, false, 0, true, quota.ReasonLimitReached},
		{"over limit", entitlement.Limit(1000), 1500, 0.8, false, 0, true, quota.ReasonLimitReached},
		{"at soft threshold", entitlement.Limit(100), 80, 0.8, true, 20, true, ""},
		{"below soft threshold", entitlement.Limit(100), 79, 0.8, true, 21, false, ""},
		{"zero limit", entitlement.Limit(0), 0, 0.8, false, 0, true, quota.ReasonLimitReached},
		{"unlimited", nil, 1 << 40, 0.8, true, quota.Unlimited, false, ""},
		{"negative usage", entitlement.Limit(1000), -1, 0.8, false, 0, false, quota.ReasonBadUsage},
		{"negative usage unlimited", nil, -1, 0.8, false, 0, false, quota.ReasonBadUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := quota.Check(tt.limit, tt.current, tt.softPct)
			if d.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", d.Allowed, tt.wantAllowed)
			}
			if d.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", d.Remaining, tt.wantRemaining)
			}
			if d.Approaching != tt.wantApproach {
				t.Errorf("Approaching = %v, want %v", d.Approaching, tt.wantApproach)
			}
			if d.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", d.Reason, tt.wantReason)
			}
		})
	}
}

func TestCheck_PercentUsed(t *testing.T) {
	d := quota.Check(entitlement.Limit(200), 50, 0.8)
	if d.PercentUsed != 25 {
		t.Errorf("PercentUsed = %v, want 25", d.PercentUsed)
	}
}

func TestEnforce_Boundary(t *testing.T) {
	free := entitlement.Default().Get(entitlement.PlanFree)

	atLimit := usage.Record{APICalls: 1000}
	if d := quota.Enforce(free, atLimit, usage.FieldAPICalls); d.Allowed {
		t.Error("usage == limit should be denied")
	}

	below := usage.Record{APICalls: 999}
	d := quota.Enforce(free, below, usage.FieldAPICalls)
	if !d.Allowed {
		t.Error("usage == limit-1 should be allowed")
	}
	if d.Limit != 1000 || d.Remaining != 1 {
		t.Errorf("Limit/Remaining = %d/%d, want 1000/1", d.Limit, d.Remaining)
	}
	if d.Field != usage.FieldAPICalls {
		t.Errorf("Field = %s, want %s", d.Field, usage.FieldAPICalls)
	}
}

func TestEnforce_FieldMapping(t *testing.T) {
	e := entitlement.Record{
		MaxItems:     entitlement.Limit(1),
		MaxAPICalls:  entitlement.Limit(2),
		MaxStorageMB: entitlement.Limit(3),
	}
	r := usage.Record{}

	want := map[usage.Field]int64{
		usage.FieldItemsCreated: 1,
		usage.FieldAPICalls:     2,
		usage.FieldStorageMB:    3,
	}
	for f, limit := range want {
		if d := quota.Enforce(e, r, f); d.Limit != limit {
			t.Errorf("%s: Limit = %d, want %d", f, d.Limit, limit)
		}
	}
}

func TestEnforce_UnlimitedField(t *testing.T) {
	business := entitlement.Default().Get(entitlement.PlanBusiness)

	for _, current := range []int64{0, 1000, 1 << 50} {
		d := quota.Enforce(business, usage.Record{APICalls: current}, usage.FieldAPICalls)
		if !d.Allowed {
			t.Errorf("current=%d: Allowed = false, want true", current)
		}
		if !d.IsUnlimited() || d.Remaining != quota.Unlimited {
			t.Errorf("current=%d: Limit/Remaining = %d/%d, want unlimited", current, d.Limit, d.Remaining)
		}
	}
}

func TestEnforce_UnknownField(t *testing.T) {
	free := entitlement.Default().Get(entitlement.PlanFree)
	d := quota.Enforce(free, usage.Record{}, usage.Field("bandwidth"))

	if d.Allowed {
		t.Error("unknown field should be denied")
	}
	if d.Reason != quota.ReasonUnknownField {
		t.Errorf("Reason = %q, want %q", d.Reason, quota.ReasonUnknownField)
	}
}
