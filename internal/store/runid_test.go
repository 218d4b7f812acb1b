package store

import (
	"testing"

	"github.com/google/uuid"
)

func TestUUIDv7Generator(t *testing.T) {
	var gen RunIDGenerator = UUIDv7Generator{}

	a, b := gen.Generate(), gen.Generate()
	if a == b {
		t.Fatalf("Generate() returned %q twice", a)
	}
	id, err := uuid.Parse(a)
	if err != nil {
		t.Fatalf("uuid.Parse(%q) failed: %v", a, err)
	}
	if id.Version() != 7 {
		t.Errorf("version = %d, want 7", id.Version())
	}
}
