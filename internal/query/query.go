// Package query evaluates domain.Query against a domain.Entry, producing
// the projected bytes a caller asked for: the raw entry, its text or JSON
// content, or the result of one or more JSONPath expressions applied in
// sequence.
package query

import (
	"encoding/json"
	"fmt"

	"github.com/dolthub/jsonpath"

	"github.com/line/centraldogma-go/internal/domain"
)

// Result is the outcome of running a Query: Content is the raw bytes to
// hand back to the caller, Entry is the (possibly synthetic, for
// JSON_PATH) entry it was derived from.
type Result struct {
	Entry   domain.Entry
	Content []byte
}

// Run evaluates q against entry, returning the projected content.
// IDENTITY returns the entry's content unmodified for either TEXT or JSON
// entries. IDENTITY_TEXT and IDENTITY_JSON additionally assert the
// entry's type matches, failing with ErrQueryTypeMismatch otherwise.
// JSON_PATH requires a JSON entry and applies q.Expressions in order,
// each over the result of the previous one.
func Run(q domain.Query, entry domain.Entry) (Result, error) {
	switch q.Type {
	case domain.QueryIdentity:
		return Result{Entry: entry, Content: entry.Content}, nil

	case domain.QueryIdentityText:
		if entry.Type != domain.EntryText {
			return Result{}, fmt.Errorf("%w: IDENTITY_TEXT on %s entry %s", domain.ErrQueryTypeMismatch, entry.Type, entry.Path)
		}
		return Result{Entry: entry, Content: entry.Content}, nil

	case domain.QueryIdentityJSON:
		if entry.Type != domain.EntryJSON {
			return Result{}, fmt.Errorf("%w: IDENTITY_JSON on %s entry %s", domain.ErrQueryTypeMismatch, entry.Type, entry.Path)
		}
		return Result{Entry: entry, Content: entry.Content}, nil

	case domain.QueryJSONPath:
		if entry.Type != domain.EntryJSON {
			return Result{}, fmt.Errorf("%w: JSON_PATH on %s entry %s", domain.ErrQueryTypeMismatch, entry.Type, entry.Path)
		}
		out, err := evalJSONPath(entry.Content, q.Expressions)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Entry:   domain.Entry{Path: entry.Path, Type: domain.EntryJSON, Content: out},
			Content: out,
		}, nil

	default:
		return Result{}, fmt.Errorf("%w: unknown query type %v", domain.ErrQuerySyntax, q.Type)
	}
}

// evalJSONPath applies each expression in turn, re-marshaling the
// intermediate result back to JSON bytes so the next expression (or the
// caller) sees a well-formed document.
func evalJSONPath(content []byte, expressions []string) ([]byte, error) {
	var cur any
	if err := json.Unmarshal(content, &cur); err != nil {
		return nil, fmt.Errorf("%w: entry is not valid JSON: %v", domain.ErrQuerySyntax, err)
	}

	for _, expr := range expressions {
		compiled, err := jsonpath.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid JSONPath %q: %v", domain.ErrQuerySyntax, expr, err)
		}
		next, err := compiled.Lookup(cur)
		if err != nil {
			return nil, fmt.Errorf("%w: JSONPath %q: %v", domain.ErrEntryNotFound, expr, err)
		}
		cur = next
	}

	out, err := json.Marshal(cur)
	if err != nil {
		return nil, fmt.Errorf("marshal JSONPath result: %w", err)
	}
	return out, nil
}
