package mirror

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/line/centraldogma-go/internal/domain"
)

// ResolveCredential picks the Credential a Spec should authenticate
// with: an explicit CredentialID wins outright; otherwise the first
// credential whose HostnamePatterns matches the remote URI's host is
// used. No match is a MirrorException per the spec.
func ResolveCredential(spec Spec, credentials []Credential) (Credential, error) {
	host, err := remoteHost(spec.RemoteURI)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", domain.ErrMirror, err)
	}

	if spec.CredentialID != "" {
		for _, c := range credentials {
			if c.ID == spec.CredentialID {
				return c, nil
			}
		}
		return Credential{}, fmt.Errorf("%w: credential %q not found", domain.ErrTokenNotFound, spec.CredentialID)
	}

	for _, c := range credentials {
		for _, pattern := range c.HostnamePatterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				continue
			}
			if re.MatchString(host) {
				return c, nil
			}
		}
	}
	return Credential{}, fmt.Errorf("%w: no credential matches host %q", domain.ErrMirror, host)
}

// remoteHost extracts the host component out of a
// git+http|git+https|git+ssh://host[:port]/... remote URI.
func remoteHost(remoteURI string) (string, error) {
	trimmed := strings.TrimPrefix(remoteURI, "git+")
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid remote URI %q: %w", remoteURI, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("remote URI %q has no host", remoteURI)
	}
	return u.Hostname(), nil
}

// AuthMethod builds the go-git transport.AuthMethod matching cred's
// tagged type, or nil for CredentialNone (public, unauthenticated
// remotes).
func AuthMethod(cred Credential) (transport.AuthMethod, error) {
	switch cred.Type {
	case CredentialNone, "":
		return nil, nil
	case CredentialPassword:
		return &http.BasicAuth{Username: cred.User, Password: cred.Password}, nil
	case CredentialAccessToken:
		return &http.BasicAuth{Username: "token", Password: cred.Token}, nil
	case CredentialPublicKey:
		signer, err := gitssh.NewPublicKeys(cred.User, []byte(cred.PrivateKey), cred.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("%w: parse public key credential: %v", domain.ErrMirror, err)
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("%w: unknown credential type %q", domain.ErrMirror, cred.Type)
	}
}
