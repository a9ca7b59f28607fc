package patch

import (
	"encoding/json"
	"testing"

	"github.com/line/centraldogma-go/internal/domain"
)

func TestApplyJSONReplace(t *testing.T) {
	original := []byte(`{"a":1,"b":2}`)
	ops := []domain.JSONPatchOp{
		{Op: "replace", Path: "/a", Value: json.RawMessage(`10`)},
	}
	got, err := ApplyJSON("/x.json", original, ops)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]int
	if err := json.Unmarshal(got, &m); err != nil {
		t.Fatal(err)
	}
	if m["a"] != 10 || m["b"] != 2 {
		t.Fatalf("got %v", m)
	}
}

func TestApplyJSONAddAndRemove(t *testing.T) {
	original := []byte(`{"a":1}`)
	ops := []domain.JSONPatchOp{
		{Op: "add", Path: "/b", Value: json.RawMessage(`"x"`)},
		{Op: "remove", Path: "/a"},
	}
	got, err := ApplyJSON("/x.json", original, ops)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(got, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["a"]; ok {
		t.Fatalf("expected /a removed, got %v", m)
	}
	if m["b"] != "x" {
		t.Fatalf("got %v", m)
	}
}

func TestApplyJSONSafeReplaceSucceeds(t *testing.T) {
	original := []byte(`{"a":1}`)
	ops := []domain.JSONPatchOp{
		{Op: "safeReplace", Path: "/a", OldValue: json.RawMessage(`1`), Value: json.RawMessage(`2`)},
	}
	got, err := ApplyJSON("/x.json", original, ops)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]int
	if err := json.Unmarshal(got, &m); err != nil {
		t.Fatal(err)
	}
	if m["a"] != 2 {
		t.Fatalf("got %v", m)
	}
}

func TestApplyJSONSafeReplaceConflict(t *testing.T) {
	original := []byte(`{"a":1}`)
	ops := []domain.JSONPatchOp{
		{Op: "safeReplace", Path: "/a", OldValue: json.RawMessage(`99`), Value: json.RawMessage(`2`)},
	}
	_, err := ApplyJSON("/x.json", original, ops)
	if err == nil {
		t.Fatal("expected conflict error")
	}
	var ce *domain.ConflictError
	if !asConflict(err, &ce) {
		t.Fatalf("expected *domain.ConflictError, got %T: %v", err, err)
	}
}

func asConflict(err error, target **domain.ConflictError) bool {
	ce, ok := err.(*domain.ConflictError)
	if ok {
		*target = ce
	}
	return ok
}
