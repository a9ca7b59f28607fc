package mirror

import "testing"

func TestAllowedNoRulesDefaultsToAllowed(t *testing.T) {
	if !Allowed(nil, "acme/repo") {
		t.Fatal("expected allowed by default")
	}
}

func TestAllowedFirstMatchWinsByOrder(t *testing.T) {
	rules := []AccessControl{
		{TargetPattern: "acme/*", Allow: true, Order: 2},
		{TargetPattern: "acme/secret", Allow: false, Order: 1},
	}
	if Allowed(rules, "acme/secret") {
		t.Fatal("expected the lower-order disallow rule to win")
	}
	if !Allowed(rules, "acme/public") {
		t.Fatal("expected the glob allow rule to match")
	}
}

func TestAllowedUnmatchedDefaultsToAllowed(t *testing.T) {
	rules := []AccessControl{{TargetPattern: "other/*", Allow: false, Order: 1}}
	if !Allowed(rules, "acme/repo") {
		t.Fatal("expected unmatched mirror to default to allowed")
	}
}
