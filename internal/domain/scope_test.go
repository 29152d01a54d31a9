package domain

import "testing"

func TestScopeConstruction(t *testing.T) {
	if PropertyScope(0).IsProperty() {
		t.Fatalf("zero id must produce the unscoped value")
	}
	if PropertyScope(-3).IsProperty() {
		t.Fatalf("negative id must produce the unscoped value")
	}
	s := PropertyScope(42)
	id, ok := s.Property()
	if !ok || id != 42 {
		t.Fatalf("expected property 42, got %d ok=%v", id, ok)
	}
}

func TestScopeFromPointer(t *testing.T) {
	if ScopeFrom(nil).IsProperty() {
		t.Fatalf("nil pointer must mean unscoped")
	}
	id := int64(9)
	if got, _ := ScopeFrom(&id).Property(); got != 9 {
		t.Fatalf("expected 9, got %d", got)
	}
}

func TestScopePropertyRef(t *testing.T) {
	if ref := (Scope{}).PropertyRef(); ref != nil {
		t.Fatalf("unscoped ref must be nil, got %v", *ref)
	}
	ref := PropertyScope(7).PropertyRef()
	if ref == nil || *ref != 7 {
		t.Fatalf("expected ref to 7, got %v", ref)
	}
	// The ref must be a copy, not an alias into the scope.
	*ref = 99
	if got, _ := PropertyScope(7).Property(); got != 7 {
		t.Fatalf("mutating the ref leaked into the scope")
	}
}

func TestScopeSQLRoundTrip(t *testing.T) {
	v, err := PropertyScope(11).Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var back Scope
	if err := back.Scan(v); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got, _ := back.Property(); got != 11 {
		t.Fatalf("round trip lost the id: %d", got)
	}

	var null Scope
	if err := null.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if null.IsProperty() {
		t.Fatalf("NULL must scan to the unscoped value")
	}

	var bad Scope
	if err := bad.Scan("11"); err == nil {
		t.Fatalf("string scan must fail")
	}
}
