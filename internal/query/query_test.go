package query

import (
	"encoding/json"
	"testing"

	"github.com/line/centraldogma-go/internal/domain"
)

func textEntry(path, content string) domain.Entry {
	return domain.Entry{Path: path, Type: domain.EntryText, Content: []byte(content)}
}

func jsonEntry(path, content string) domain.Entry {
	return domain.Entry{Path: path, Type: domain.EntryJSON, Content: []byte(content)}
}

func TestRunIdentity(t *testing.T) {
	e := textEntry("/a.txt", "hello")
	res, err := Run(domain.Identity("/a.txt"), e)
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Content) != "hello" {
		t.Fatalf("got %q", res.Content)
	}
}

func TestRunIdentityTextTypeMismatch(t *testing.T) {
	e := jsonEntry("/a.json", `{}`)
	_, err := Run(domain.IdentityText("/a.json"), e)
	if err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestRunJSONPath(t *testing.T) {
	e := jsonEntry("/a.json", `{"a":{"b":42}}`)
	res, err := Run(domain.JSONPath("/a.json", "$.a.b"), e)
	if err != nil {
		t.Fatal(err)
	}
	var got int
	if err := json.Unmarshal(res.Content, &got); err != nil {
		t.Fatal(err)
	}
	if got != 42 {
		t.Fatalf("got %d", got)
	}
}

func TestRunJSONPathChained(t *testing.T) {
	e := jsonEntry("/a.json", `{"a":{"b":{"c":[1,2,3]}}}`)
	res, err := Run(domain.JSONPath("/a.json", "$.a.b", "$.c[1]"), e)
	if err != nil {
		t.Fatal(err)
	}
	var got int
	if err := json.Unmarshal(res.Content, &got); err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Fatalf("got %d", got)
	}
}

func TestRunJSONPathOnTextEntryFails(t *testing.T) {
	e := textEntry("/a.txt", "hello")
	_, err := Run(domain.JSONPath("/a.txt", "$.a"), e)
	if err == nil {
		t.Fatal("expected error")
	}
}
