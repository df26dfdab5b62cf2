package matcher

import "testing"

func TestReloadableDelegatesToStoredMatcher(t *testing.T) {
	initial, err := New([]string{"foo"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := NewReloadable(initial)
	if !r.AnyMatch("has foo in it") {
		t.Error("expected the initial matcher to match")
	}

	replacement, err := New([]string{"bar"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Store(replacement)

	if r.AnyMatch("has foo in it") {
		t.Error("expected the replacement matcher to no longer match \"foo\"")
	}
	if !r.AnyMatch("has bar in it") {
		t.Error("expected the replacement matcher to match \"bar\"")
	}
}
