package posts

import (
	"errors"
	"fmt"
	"testing"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	for _, id := range []string{"abc", "Bx12abcDEF", "CqZ-9_x"} {
		first, err := DeriveKey(id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := 0; i < 3; i++ {
			again, _ := DeriveKey(id)
			if again != first {
				t.Fatalf("DeriveKey(%q) changed from %q to %q", id, first, again)
			}
		}
		if len(first) == 0 || len(first) > 11 {
			t.Fatalf("unexpected key length %d for %q", len(first), first)
		}
	}
}

func TestDeriveKeyIgnoresSurroundingWhitespace(t *testing.T) {
	a, _ := DeriveKey("abc")
	b, _ := DeriveKey("  abc\n")
	if a != b {
		t.Fatalf("expected trimmed ids to share a key, got %q and %q", a, b)
	}
}

func TestDeriveKeyRejectsEmpty(t *testing.T) {
	for _, id := range []string{"", "   "} {
		if _, err := DeriveKey(id); !errors.Is(err, ErrInvalidID) {
			t.Fatalf("expected ErrInvalidID for %q, got %v", id, err)
		}
	}
}

func TestDeriveKeyDistinctAcrossSample(t *testing.T) {
	seen := make(map[string]string)
	for i := 0; i < 20000; i++ {
		id := fmt.Sprintf("post-%d", i)
		key, err := DeriveKey(id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if prev, ok := seen[key]; ok {
			t.Fatalf("collision between %q and %q on key %q", prev, id, key)
		}
		seen[key] = id
	}
}

func TestEncodeBase62(t *testing.T) {
	cases := map[uint64]string{0: "0", 61: "z", 62: "10", ^uint64(0): "LygHa16AHYF"}
	for in, want := range cases {
		if got := encodeBase62(in); got != want {
			t.Fatalf("encodeBase62(%d) = %q, want %q", in, got, want)
		}
	}
}
