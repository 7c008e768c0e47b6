package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/stockline/api/internal/platform/httpx"
	"github.com/stockline/api/internal/platform/requestctx"
)

// Custom claim carrying the caller's role: a string, a list, or a map of role to bool.
const roleClaim = "role"

var (
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
	// ErrTokenRevoked covers revoked sessions and disabled accounts.
	ErrTokenRevoked = errors.New("auth: firebase session revoked")
)

type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator guards the public API with Firebase ID tokens.
type Authenticator struct {
	verifier     TokenVerifier
	fallbackRole string
	timeout      time.Duration
}

type Option func(*Authenticator)

// WithFallbackRole is granted to tokens that carry no role claim. An empty role rejects them.
func WithFallbackRole(role string) Option {
	return func(a *Authenticator) { a.fallbackRole = normaliseRole(role) }
}

// WithVerificationTimeout bounds a single verification, which may call Firebase when
// revocation checks are on.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{verifier: verifier, fallbackRole: RoleViewer, timeout: 5 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Authenticate verifies the bearer credential in header and builds the caller's identity.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (*Identity, *httpx.Error) {
	raw, ok := extractBearerToken(header)
	if !ok {
		return nil, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized)
	}
	if a == nil || a.verifier == nil {
		return nil, httpx.NewError("unauthenticated", "authorization service unavailable", http.StatusUnauthorized)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	token, err := a.verifier.VerifyIDToken(ctx, raw)
	if err != nil {
		return nil, verificationError(err)
	}

	identity := &Identity{
		UID:      token.UID,
		Email:    stringClaim(token.Claims, "email"),
		Roles:    rolesFromClaim(token.Claims[roleClaim]),
		token:    token,
		rawToken: raw,
	}
	if len(identity.Roles) == 0 && a.fallbackRole != "" {
		identity.Roles = []string{a.fallbackRole}
	}
	if len(identity.Roles) == 0 {
		return nil, httpx.NewError("missing_role", "no roles associated with identity", http.StatusForbidden)
	}
	return identity, nil
}

// RequireFirebaseAuth rejects requests without a valid ID token with 401. When roles are
// given, an identity holding none of them gets 403.
func (a *Authenticator) RequireFirebaseAuth(roles ...string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(roles))
	for _, role := range roles {
		if role = normaliseRole(role); role != "" {
			allowed = append(allowed, role)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, failure := a.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if failure == nil && len(allowed) > 0 && !identity.HasAnyRole(allowed...) {
				failure = httpx.NewError("insufficient_role", "identity does not have required role", http.StatusForbidden)
			}
			if failure != nil {
				httpx.WriteError(r.Context(), w, failure)
				return
			}
			requestctx.SetActor(r.Context(), requestctx.Actor{UID: identity.UID, Role: identity.PrimaryRole()})
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func verificationError(err error) *httpx.Error {
	unauthorized := func(code, message string) *httpx.Error {
		return httpx.NewError(code, message, http.StatusUnauthorized)
	}
	switch {
	case errors.Is(err, ErrTokenRevoked), firebaseauth.IsIDTokenRevoked(err), firebaseauth.IsUserDisabled(err):
		return unauthorized("token_revoked", "firebase session revoked")
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		return unauthorized("token_expired", "firebase id token expired")
	case errors.Is(err, ErrTokenInvalid), firebaseauth.IsIDTokenInvalid(err):
		return unauthorized("invalid_token", "firebase id token invalid")
	default:
		return unauthorized("invalid_token", "firebase id token verification failed")
	}
}

func rolesFromClaim(raw any) []string {
	var names []string
	switch v := raw.(type) {
	case string:
		names = []string{v}
	case []string:
		names = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
	case map[string]any:
		for name, granted := range v {
			if on, _ := granted.(bool); on {
				names = append(names, name)
			}
		}
		slices.Sort(names)
	}

	out := make([]string, 0, len(names))
	for _, name := range names {
		if role := normaliseRole(name); role != "" && !slices.Contains(out, role) {
			out = append(out, role)
		}
	}
	return out
}

func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return strings.TrimSpace(s)
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
