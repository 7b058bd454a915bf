// Package uuid includes tests for the UUID generator wrapper.
package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
)

// TestGeneratorNewID ensures generated IDs are unique, valid UUIDv7 values.
func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	id2, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected unique IDs, got %s and %s", id1, id2)
	}
	parsed, err := goUUID.Parse(id1)
	if err != nil {
		t.Fatalf("id1 not valid UUID: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
	if _, err := goUUID.Parse(id2); err != nil {
		t.Fatalf("id2 not valid UUID: %v", err)
	}
}

// TestValid checks which strings are accepted as request IDs.
func TestValid(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"0192f1de-7b7a-7c3e-9a51-3f6f2b1c9d10": true,
		"":                                     false,
		"../../etc/passwd":                     false,
		"urn:uuid:0192f1de-7b7a-7c3e-9a51-3f6f2b1c9d10": false,
		"{0192f1de-7b7a-7c3e-9a51-3f6f2b1c9d10}":        false,
		"0192f1de7b7a7c3e9a513f6f2b1c9d10":              false,
	}
	for in, want := range cases {
		if got := Valid(in); got != want {
			t.Errorf("Valid(%q) = %v, want %v", in, got, want)
		}
	}
}
