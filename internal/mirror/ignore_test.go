package mirror

import "testing"

func TestIgnoreMatcherFiltersPatterns(t *testing.T) {
	m, err := newIgnoreMatcher([]string{"*.log", "/build/"})
	if err != nil {
		t.Fatal(err)
	}
	if !m.Ignored("/debug.log") {
		t.Fatal("expected *.log to be ignored")
	}
	if !m.Ignored("/build/output.txt") {
		t.Fatal("expected /build/ to be ignored")
	}
	if m.Ignored("/keep.txt") {
		t.Fatal("expected unrelated file to survive")
	}
}

func TestIgnoreMatcherEmptyIgnoresNothing(t *testing.T) {
	m, err := newIgnoreMatcher(nil)
	if err != nil {
		t.Fatal(err)
	}
	if m.Ignored("/anything") {
		t.Fatal("expected no patterns to ignore nothing")
	}
}
