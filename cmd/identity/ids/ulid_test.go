package ids

import (
	"testing"
	"time"
)

func TestNewULID_SortsByTime(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a, err := NewULID(t0)
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	b, err := NewULID(t0.Add(time.Second))
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}

	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("unexpected lengths: %d %d", len(a), len(b))
	}
	if !(a < b) {
		t.Fatalf("expected %q < %q", a, b)
	}
}

func TestValid(t *testing.T) {
	id, err := NewULID(time.Now())
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}

	cases := map[string]bool{
		id:                            true,
		"":                            false,
		"not-a-ulid":                  false,
		"01ARZ3NDEKTSV4RRFFQ69G5FA":   false,
		"01ARZ3NDEKTSV4RRFFQ69G5FAVV": false,
	}
	for in, want := range cases {
		if got := Valid(in); got != want {
			t.Fatalf("Valid(%q)=%v want %v", in, got, want)
		}
	}
}
