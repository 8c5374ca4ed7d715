package licensekey

import (
	"regexp"
	"strings"
	"testing"
)

var keyPattern = regexp.MustCompile(`^LIC-[A-Z2-9]{4}-[A-Z2-9]{4}-[A-Z2-9]{4}$`)

func TestGenerate_Shape(t *testing.T) {
	t.Parallel()

	key, err := Generate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !keyPattern.MatchString(key) {
		t.Fatalf("key %q does not match %s", key, keyPattern)
	}
	for _, r := range strings.TrimPrefix(key, "LIC-") {
		if r == '-' {
			continue
		}
		if !strings.ContainsRune(alphabet, r) {
			t.Fatalf("key contains character outside alphabet: %q", r)
		}
	}
}

func TestGenerate_UniqueWithinSmallBatch(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		key, err := Generate()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, exists := seen[key]; exists {
			t.Fatalf("duplicate key generated in small batch: %s", key)
		}
		seen[key] = struct{}{}
	}
}

func TestRandomString_InvalidLength(t *testing.T) {
	t.Parallel()

	if _, err := randomString(0); err == nil {
		t.Fatalf("expected error for invalid length")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: " lic-abcd-efgh-jkmn ", want: "LIC-ABCD-EFGH-JKMN"},
		{in: "LIC-ABC123", want: "LIC-ABC123"},
		{in: "LIC-X7K2P9QA-1718000000000", want: "LIC-X7K2P9QA-1718000000000"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
