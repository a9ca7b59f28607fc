package mirror

import "path"

// AccessControl is one entry of the ordered allow/disallow list gating
// which mirrors may actually execute. Entries are evaluated in
// ascending Order; the first whose TargetPattern matches a mirror's ID
// wins.
type AccessControl struct {
	TargetPattern string `json:"targetPattern"`
	Allow         bool   `json:"allow"`
	Order         int    `json:"order"`
	Description   string `json:"description,omitempty"`
}

// Allowed reports whether mirrorID is permitted to run under rules,
// evaluated in ascending Order with first-match-wins. A mirror with no
// matching rule is allowed by default: access control is an opt-in
// restriction, not an opt-in allowlist.
func Allowed(rules []AccessControl, mirrorID string) bool {
	sorted := make([]AccessControl, len(rules))
	copy(sorted, rules)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Order > sorted[j].Order; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	for _, r := range sorted {
		if matched, _ := path.Match(r.TargetPattern, mirrorID); matched || r.TargetPattern == mirrorID {
			return r.Allow
		}
	}
	return true
}
