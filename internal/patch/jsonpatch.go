package patch

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/line/centraldogma-go/internal/domain"
)

// ApplyJSON applies a sequence of RFC 6902 operations (extended with
// "safeReplace") to a JSON document atomically: either every operation
// succeeds and the resulting document is returned, or the first failing
// operation aborts the whole change with a *domain.ConflictError.
//
// safeReplace is desugared into a standard "test" immediately followed by
// a "replace" at the same path, so the rest of the pipeline only ever
// has to deal with RFC 6902 proper; evanphx/json-patch does the actual
// application.
func ApplyJSON(path string, original []byte, ops []domain.JSONPatchOp) ([]byte, error) {
	if len(original) == 0 {
		original = []byte("null")
	}
	expanded, err := expandSafeReplace(original, ops)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("marshal json patch ops for %s: %w", path, err)
	}

	decoded, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed json patch for %s: %v", domain.ErrQuerySyntax, path, err)
	}

	result, err := decoded.ApplyIndent(original, "")
	if err != nil {
		return nil, domain.NewConflict(path, err.Error())
	}
	return result, nil
}

// rfc6902op is the wire shape evanphx/json-patch expects; OldValue never
// appears in it because safeReplace has already been desugared by the
// time we build these.
type rfc6902op struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

func expandSafeReplace(original []byte, ops []domain.JSONPatchOp) ([]rfc6902op, error) {
	out := make([]rfc6902op, 0, len(ops)+4)
	// We replay ops against a working copy so a safeReplace that depends on
	// an earlier op in the same batch sees the right current value.
	working := original
	for _, op := range ops {
		if op.Op != "safeReplace" {
			out = append(out, rfc6902op{Op: op.Op, Path: op.Path, From: op.From, Value: op.Value})
			next, err := applyOneForReplay(working, op)
			if err != nil {
				// Replay is best-effort context for later safeReplace checks;
				// if it fails here the real Apply call below will surface
				// the same conflict with a precise error.
				working = nil
			} else {
				working = next
			}
			continue
		}

		pointer := jsonPointerToGJSONPath(op.Path)
		var current gjson.Result
		if working != nil {
			current = gjson.GetBytes(working, pointer)
		}
		if !current.Exists() {
			return nil, domain.NewConflict(op.Path, "safeReplace target does not exist")
		}
		if string(normalizeJSON(json.RawMessage(current.Raw))) != string(normalizeJSON(op.OldValue)) {
			return nil, domain.NewConflict(op.Path, fmt.Sprintf("safeReplace expected %s, found %s", op.OldValue, current.Raw))
		}
		out = append(out, rfc6902op{Op: "test", Path: op.Path, Value: op.OldValue})
		out = append(out, rfc6902op{Op: "replace", Path: op.Path, Value: op.Value})

		next, err := applyOneForReplay(working, domain.JSONPatchOp{Op: "replace", Path: op.Path, Value: op.Value})
		if err == nil {
			working = next
		}
	}
	return out, nil
}

// applyOneForReplay applies a single op to a scratch copy purely so later
// safeReplace checks in the same batch see prior ops' effects. Errors are
// non-fatal here: the authoritative Apply pass below will report them.
//
// "add"/"replace" are the overwhelming majority of ops a safeReplace batch
// replays, so those go through sjson.SetRawBytes directly instead of a full
// jsonpatch decode+apply round trip; everything else (remove/move/copy/test)
// falls back to evanphx/json-patch.
func applyOneForReplay(doc []byte, op domain.JSONPatchOp) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("no working document")
	}
	if op.Op == "add" || op.Op == "replace" {
		return sjson.SetRawBytes(doc, jsonPointerToGJSONPath(op.Path), op.Value)
	}
	raw, err := json.Marshal([]rfc6902op{{Op: op.Op, Path: op.Path, From: op.From, Value: op.Value}})
	if err != nil {
		return nil, err
	}
	p, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, err
	}
	return p.ApplyIndent(doc, "")
}

// jsonPointerToGJSONPath converts an RFC 6901 JSON pointer ("/a/b/0") to
// the dotted path gjson expects ("a.b.0"), unescaping ~1 and ~0.
func jsonPointerToGJSONPath(pointer string) string {
	if pointer == "" || pointer == "/" {
		return "@this"
	}
	s := pointer
	if s[0] == '/' {
		s = s[1:]
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '/':
			out = append(out, '.')
		case s[i] == '~' && i+1 < len(s) && s[i+1] == '1':
			out = append(out, '/')
			i++
		case s[i] == '~' && i+1 < len(s) && s[i+1] == '0':
			out = append(out, '~')
			i++
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}

// normalizeJSON re-marshals a JSON value through encoding/json so two
// byte-different-but-structurally-equal encodings (e.g. "1.0" vs "1",
// different key order) compare equal.
func normalizeJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
