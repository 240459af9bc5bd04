package usage_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/westsidetechsolutions/meter/domain/usage"
)

var (
	periodStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = periodStart.Add(30 * 24 * time.Hour)
	now         = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
)

func TestParseField(t *testing.T) {
	for _, f := range usage.Fields {
		got, err := usage.ParseField(string(f))
		if err != nil {
			t.Errorf("ParseField(%s) error: %v", f, err)
		}
		if got != f {
			t.Errorf("ParseField(%s) = %s", f, got)
		}
	}

	for _, bad := range []string{"", "apicalls", "api_calls", "bytes"} {
		if _, err := usage.ParseField(bad); !errors.Is(err, usage.ErrUnknownField) {
			t.Errorf("ParseField(%q) error = %v, want ErrUnknownField", bad, err)
		}
	}
}

func TestField_Column(t *testing.T) {
	want := map[usage.Field]string{
		usage.FieldAPICalls:     "api_calls",
		usage.FieldItemsCreated: "items_created",
		usage.FieldStorageMB:    "storage_mb",
		usage.Field("x"):        "",
	}
	for f, col := range want {
		if got := f.Column(); got != col {
			t.Errorf("%s.Column() = %q, want %q", f, got, col)
		}
	}
}

func TestNew(t *testing.T) {
	r := usage.New("usage-1", "user-1", periodStart, periodEnd, now)

	if r.APICalls != 0 || r.ItemsCreated != 0 || r.StorageMB != 0 {
		t.Errorf("counters = %d/%d/%d, want zero", r.APICalls, r.ItemsCreated, r.StorageMB)
	}
	if !r.LastUpdatedAt.Equal(now) || !r.CreatedAt.Equal(now) {
		t.Errorf("timestamps = %v/%v, want %v", r.CreatedAt, r.LastUpdatedAt, now)
	}
}

func TestAdd(t *testing.T) {
	r := usage.New("usage-1", "user-1", periodStart, periodEnd, periodStart)
	later := now.Add(time.Minute)

	tests := []struct {
		field  usage.Field
		amount int64
	}{
		{usage.FieldAPICalls, 1},
		{usage.FieldItemsCreated, 5},
		{usage.FieldStorageMB, 250},
	}

	for _, tt := range tests {
		t.Run(string(tt.field), func(t *testing.T) {
			got, err := usage.Add(r, tt.field, tt.amount, later)
			if err != nil {
				t.Fatalf("Add error: %v", err)
			}
			v, _ := got.Value(tt.field)
			if v != tt.amount {
				t.Errorf("%s = %d, want %d", tt.field, v, tt.amount)
			}
			if !got.LastUpdatedAt.Equal(later) {
				t.Errorf("LastUpdatedAt = %v, want %v", got.LastUpdatedAt, later)
			}
			if orig, _ := r.Value(tt.field); orig != 0 {
				t.Error("Add mutated its input")
			}
		})
	}
}

func TestAdd_Zero(t *testing.T) {
	r := usage.New("usage-1", "user-1", periodStart, periodEnd, periodStart)
	r.APICalls = 7

	got, err := usage.Add(r, usage.FieldAPICalls, 0, now)
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if got.APICalls != 7 {
		t.Errorf("APICalls = %d, want 7", got.APICalls)
	}
	if !got.LastUpdatedAt.Equal(now) {
		t.Error("zero increment should refresh LastUpdatedAt")
	}
}

func TestAdd_Rejects(t *testing.T) {
	r := usage.New("usage-1", "user-1", periodStart, periodEnd, periodStart)
	r.APICalls = 3

	got, err := usage.Add(r, usage.FieldAPICalls, -1, now)
	if !errors.Is(err, usage.ErrNegativeAmount) {
		t.Errorf("error = %v, want ErrNegativeAmount", err)
	}
	if got.APICalls != 3 {
		t.Errorf("APICalls = %d after rejected increment, want 3", got.APICalls)
	}

	if _, err := usage.Add(r, usage.Field("bytes"), 1, now); !errors.Is(err, usage.ErrUnknownField) {
		t.Errorf("error = %v, want ErrUnknownField", err)
	}
}

func TestKeyOf_String(t *testing.T) {
	r := usage.New("usage-1", "user-1", periodStart, periodEnd, now)
	local := usage.Record{
		UserID:      "user-1",
		PeriodStart: periodStart.In(time.FixedZone("X", 3600)),
		PeriodEnd:   periodEnd.In(time.FixedZone("X", 3600)),
	}

	if usage.KeyOf(r).String() != usage.KeyOf(local).String() {
		t.Errorf("same instants produced different keys: %s vs %s",
			usage.KeyOf(r).String(), usage.KeyOf(local).String())
	}
}

func TestAdd_Overflow(t *testing.T) {
	r := usage.New("usage-1", "user-1", periodStart, periodEnd, now)

	r, err := usage.Add(r, usage.FieldAPICalls, math.MaxInt64, now)
	if err != nil {
		t.Fatalf("Add(MaxInt64) error: %v", err)
	}
	if r.APICalls != math.MaxInt64 {
		t.Fatalf("APICalls = %d, want MaxInt64", r.APICalls)
	}

	got, err := usage.Add(r, usage.FieldAPICalls, 1, now.Add(time.Hour))
	if !errors.Is(err, usage.ErrOverflow) {
		t.Fatalf("Add(+1) error = %v, want ErrOverflow", err)
	}
	if got.APICalls != math.MaxInt64 {
		t.Errorf("APICalls = %d after rejected add, want unchanged", got.APICalls)
	}

	// Zero still fits at the ceiling.
	if _, err := usage.Add(r, usage.FieldAPICalls, 0, now); err != nil {
		t.Errorf("Add(0) at ceiling error: %v", err)
	}
}

func TestCheckAdd(t *testing.T) {
	tests := []struct {
		current, amount int64
		want            error
	}{
		{0, math.MaxInt64, nil},
		{1, math.MaxInt64 - 1, nil},
		{2, math.MaxInt64 - 1, usage.ErrOverflow},
		{math.MaxInt64, 1, usage.ErrOverflow},
		{5, -1, usage.ErrNegativeAmount},
	}
	for _, tt := range tests {
		err := usage.CheckAdd(tt.current, tt.amount)
		if tt.want == nil && err != nil {
			t.Errorf("CheckAdd(%d, %d) = %v, want nil", tt.current, tt.amount, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("CheckAdd(%d, %d) = %v, want %v", tt.current, tt.amount, err, tt.want)
		}
	}
}
