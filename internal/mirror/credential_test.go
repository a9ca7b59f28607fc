package mirror

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

func TestResolveCredentialByID(t *testing.T) {
	creds := []Credential{
		{ID: "token-1", Type: CredentialAccessToken, Token: "abc"},
		{ID: "token-2", Type: CredentialAccessToken, Token: "def"},
	}
	spec := Spec{RemoteURI: "git+https://github.com/example/repo.git", CredentialID: "token-2"}

	got, err := ResolveCredential(spec, creds)
	if err != nil {
		t.Fatal(err)
	}
	if got.Token != "def" {
		t.Fatalf("got %+v", got)
	}
}

func TestResolveCredentialByHostnamePattern(t *testing.T) {
	creds := []Credential{
		{ID: "gh", Type: CredentialAccessToken, Token: "tok", HostnamePatterns: []string{`^github\.com$`}},
		{ID: "gl", Type: CredentialAccessToken, Token: "other", HostnamePatterns: []string{`^gitlab\.com$`}},
	}
	spec := Spec{RemoteURI: "git+https://github.com/example/repo.git"}

	got, err := ResolveCredential(spec, creds)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "gh" {
		t.Fatalf("got %+v", got)
	}
}

func TestResolveCredentialNoMatch(t *testing.T) {
	spec := Spec{RemoteURI: "git+https://github.com/example/repo.git"}
	if _, err := ResolveCredential(spec, nil); err == nil {
		t.Fatal("expected error for no matching credential")
	}
}

func TestAuthMethodAccessToken(t *testing.T) {
	am, err := AuthMethod(Credential{Type: CredentialAccessToken, Token: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	basic, ok := am.(*http.BasicAuth)
	if !ok {
		t.Fatalf("got %T", am)
	}
	if basic.Password != "secret" {
		t.Fatalf("got %+v", basic)
	}
}

func TestAuthMethodNone(t *testing.T) {
	am, err := AuthMethod(Credential{Type: CredentialNone})
	if err != nil {
		t.Fatal(err)
	}
	if am != nil {
		t.Fatalf("expected nil auth method, got %v", am)
	}
}
