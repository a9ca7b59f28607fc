package mirror

import "testing"

func TestParseRemoteURI(t *testing.T) {
	cases := []struct {
		uri        string
		cloneURL   string
		subPath    string
		branch     string
	}{
		{
			uri:      "git+https://github.com/example/repo.git",
			cloneURL: "https://github.com/example/repo.git",
		},
		{
			uri:      "git+https://github.com/example/repo.git/sub/dir#main",
			cloneURL: "https://github.com/example/repo.git",
			subPath:  "sub/dir",
			branch:   "main",
		},
		{
			uri:      "git+ssh://git@example.com:22/team/repo.git#release",
			cloneURL: "ssh://git@example.com:22/team/repo.git",
			branch:   "release",
		},
	}

	for _, tc := range cases {
		ref, err := parseRemoteURI(tc.uri)
		if err != nil {
			t.Fatalf("%s: %v", tc.uri, err)
		}
		if ref.CloneURL != tc.cloneURL {
			t.Errorf("%s: cloneURL = %q, want %q", tc.uri, ref.CloneURL, tc.cloneURL)
		}
		if ref.SubPath != tc.subPath {
			t.Errorf("%s: subPath = %q, want %q", tc.uri, ref.SubPath, tc.subPath)
		}
		if ref.Branch != tc.branch {
			t.Errorf("%s: branch = %q, want %q", tc.uri, ref.Branch, tc.branch)
		}
	}
}

func TestParseRemoteURIMissingGitSuffix(t *testing.T) {
	if _, err := parseRemoteURI("git+https://github.com/example/repo"); err == nil {
		t.Fatal("expected error for missing .git suffix")
	}
}
