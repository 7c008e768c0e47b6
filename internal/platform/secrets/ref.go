package secrets

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const latestVersion = "latest"

var secretName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,255}$`)

// Ref points at a Secret Manager secret: secret://NAME?version=V&project=P. The sm:// scheme
// is accepted as an alias.
type Ref struct {
	Name    string
	Version string
	Project string
}

// IsRef reports whether value looks like a secret reference rather than a literal.
func IsRef(value string) bool {
	value = strings.TrimSpace(value)
	return strings.HasPrefix(value, "secret://") || strings.HasPrefix(value, "sm://")
}

func ParseRef(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ref{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Ref{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" && u.Scheme != "sm" {
		return Ref{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if !secretName.MatchString(name) {
		return Ref{}, fmt.Errorf("secrets: invalid secret name %q", name)
	}
	q := u.Query()
	return Ref{
		Name:    name,
		Version: strings.TrimSpace(q.Get("version")),
		Project: strings.TrimSpace(q.Get("project")),
	}, nil
}

func (r Ref) String() string {
	return "secret://" + r.Name
}

func (r Ref) resource(project, version string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, r.Name, version)
}
