package domain

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name    string
		r, head Revision
		want    Revision
		wantErr bool
	}{
		{"head sentinel", HeadRevision, 10, 10, false},
		{"negative one is head", -1, 10, 10, false},
		{"negative offset", -2, 10, 9, false},
		{"concrete in range", 5, 10, 5, false},
		{"init", InitRevision, 10, 1, false},
		{"out of range high", 11, 10, 0, true},
		{"out of range low", -20, 10, 0, true},
		{"negative out of range", -11, 10, 0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Normalize(c.r, c.head)
			if c.wantErr {
				if err == nil {
					t.Fatalf("expected error, got revision %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Fatalf("Normalize(%d, %d) = %d, want %d", c.r, c.head, got, c.want)
			}
		})
	}
}

func TestNormalizeRangePreservesDirection(t *testing.T) {
	// Ascending traversal: from < to
	f, tt, err := NormalizeRange(2, HeadRevision, 10)
	if err != nil {
		t.Fatal(err)
	}
	if f != 2 || tt != 10 {
		t.Fatalf("got (%d,%d)", f, tt)
	}

	// Descending traversal: from > to (HEAD down to INIT)
	f, tt, err = NormalizeRange(HeadRevision, InitRevision, 10)
	if err != nil {
		t.Fatal(err)
	}
	if f != 10 || tt != 1 {
		t.Fatalf("got (%d,%d)", f, tt)
	}
}

func TestAscendingTieBreak(t *testing.T) {
	lo, hi, descending := Ascending(5, 5)
	if lo != 5 || hi != 5 || descending {
		t.Fatalf("got lo=%d hi=%d descending=%v", lo, hi, descending)
	}
}

func TestValidatePath(t *testing.T) {
	valid := []string{"/a.json", "/a/b.json", "/a/b/c"}
	for _, p := range valid {
		if err := ValidatePath(p); err != nil {
			t.Errorf("ValidatePath(%q) unexpected error: %v", p, err)
		}
	}
	invalid := []string{"", "a.json", "/a//b.json", "/a/./b", "/a/../b", "/"}
	for _, p := range invalid {
		if err := ValidatePath(p); err == nil {
			t.Errorf("ValidatePath(%q) expected error, got nil", p)
		}
	}
}
