package idgen_test

import (
	"regexp"
	"sync"
	"testing"

	"github.com/westsidetechsolutions/meter/adapters/idgen"
)

func TestUUID_New(t *testing.T) {
	g := idgen.UUID{Prefix: "key_"}

	id := g.New()
	re := regexp.MustCompile(`^key_[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	if !re.MatchString(id) {
		t.Errorf("ID %s doesn't match prefixed UUID v4 format", id)
	}

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.New()
		if seen[id] {
			t.Fatalf("duplicate ID: %s", id)
		}
		seen[id] = true
	}
}

func TestSequential(t *testing.T) {
	g := idgen.NewSequential("usage-")

	if got := g.New(); got != "usage-1" {
		t.Errorf("first = %s, want usage-1", got)
	}
	if got := g.New(); got != "usage-2" {
		t.Errorf("second = %s, want usage-2", got)
	}

	g.Reset()
	if got := g.New(); got != "usage-1" {
		t.Errorf("after reset = %s, want usage-1", got)
	}
}

func TestSequential_Concurrent(t *testing.T) {
	g := idgen.NewSequential("")
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.New()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Errorf("unique IDs = %d, want 50", len(seen))
	}
}
