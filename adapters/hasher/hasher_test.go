package hasher_test

import (
	"testing"

	"github.com/westsidetechsolutions/meter/adapters/hasher"
)

func TestNew(t *testing.T) {
	tests := []struct {
		alg     string
		wantErr bool
	}{
		{"", false},
		{hasher.AlgSHA256, false},
		{hasher.AlgSHA3256, false},
		{"md5", true},
		{"SHA256", true},
	}
	for _, tt := range tests {
		h, err := hasher.New(tt.alg)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) error = %v, wantErr %v", tt.alg, err, tt.wantErr)
		}
		if !tt.wantErr && h == nil {
			t.Errorf("New(%q) returned nil hasher", tt.alg)
		}
	}
}

func TestSHA256_KnownVector(t *testing.T) {
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := (hasher.SHA256{}).Hash("abc"); got != want {
		t.Errorf("Hash(abc) = %s, want %s", got, want)
	}
}

func TestSHA3_KnownVector(t *testing.T) {
	const want = "3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532"
	if got := (hasher.SHA3{}).Hash("abc"); got != want {
		t.Errorf("Hash(abc) = %s, want %s", got, want)
	}
}

func TestHashers_Deterministic(t *testing.T) {
	for _, alg := range []string{hasher.AlgSHA256, hasher.AlgSHA3256} {
		h, _ := hasher.New(alg)
		raw := "wsts_live_4f9e0011"
		if h.Hash(raw) != h.Hash(raw) {
			t.Errorf("%s: not deterministic", alg)
		}
		if h.Hash(raw) == raw {
			t.Errorf("%s: digest equals input", alg)
		}
	}
	if (hasher.SHA256{}).Hash("x") == (hasher.SHA3{}).Hash("x") {
		t.Error("SHA256 and SHA3 digests should differ")
	}
}
