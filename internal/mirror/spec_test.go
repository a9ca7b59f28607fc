package mirror

import (
	"encoding/json"
	"testing"
)

func TestGitignoreUnmarshalString(t *testing.T) {
	var g Gitignore
	if err := json.Unmarshal([]byte(`"*.log\n/build/\n"`), &g); err != nil {
		t.Fatal(err)
	}
	if len(g) != 2 || g[0] != "*.log" || g[1] != "/build/" {
		t.Fatalf("got %#v", g)
	}
}

func TestGitignoreUnmarshalArray(t *testing.T) {
	var g Gitignore
	if err := json.Unmarshal([]byte(`["*.log", "/build/"]`), &g); err != nil {
		t.Fatal(err)
	}
	if len(g) != 2 || g[0] != "*.log" || g[1] != "/build/" {
		t.Fatalf("got %#v", g)
	}
}

func TestSpecEffectiveSchedule(t *testing.T) {
	s := Spec{}
	if s.EffectiveSchedule() != DefaultSchedule {
		t.Fatalf("got %q", s.EffectiveSchedule())
	}
	s.Schedule = "*/5 * * * * *"
	if s.EffectiveSchedule() != "*/5 * * * * *" {
		t.Fatalf("got %q", s.EffectiveSchedule())
	}
}
