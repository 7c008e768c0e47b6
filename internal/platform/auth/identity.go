package auth

import (
	"context"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	domain "github.com/stockline/api/internal/domain"
)

// Role constants checked by the inventory routes. Roles are ordered by privilege.
const (
	RoleViewer  = "viewer"
	RoleStaff   = "staff"
	RoleManager = "manager"
	RoleAdmin   = "admin"
	// RoleService marks callers authenticated with a Google-signed OIDC token.
	RoleService = "service"
)

var rolePriority = map[string]int{
	RoleViewer:  1,
	RoleStaff:   2,
	RoleManager: 3,
	RoleAdmin:   4,
}

// Identity captures the authenticated principal details extracted from a Firebase ID token.
type Identity struct {
	UID   string
	Email string
	Roles []string

	token    *firebaseauth.Token
	rawToken string
}

// Token exposes the decoded Firebase ID token associated with this identity.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// BearerToken returns the credential presented by the caller so it can be forwarded downstream.
func (i *Identity) BearerToken() string {
	if i == nil {
		return ""
	}
	return i.rawToken
}

// HasRole reports whether the identity includes the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity includes any of the provided roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// PrimaryRole returns the most privileged known role, or the first role when none is known.
func (i *Identity) PrimaryRole() string {
	if i == nil || len(i.Roles) == 0 {
		return ""
	}
	best, bestRank := i.Roles[0], 0
	for _, role := range i.Roles {
		if rank := rolePriority[normaliseRole(role)]; rank > bestRank {
			best, bestRank = role, rank
		}
	}
	return normaliseRole(best)
}

// UserInfo converts the identity into the actor recorded on activity log entries.
func (i *Identity) UserInfo() domain.UserInfo {
	if i == nil {
		return domain.UserInfo{}
	}
	return domain.UserInfo{
		UID:   i.UID,
		Email: i.Email,
		Role:  i.PrimaryRole(),
		Token: i.rawToken,
	}
}

type contextKey string

const identityContextKey contextKey = "github.com/stockline/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// UserInfoFromContext resolves the acting user from either a Firebase or a service identity.
func UserInfoFromContext(ctx context.Context) (domain.UserInfo, bool) {
	if identity, ok := IdentityFromContext(ctx); ok {
		return identity.UserInfo(), true
	}
	if service, ok := ServiceIdentityFromContext(ctx); ok {
		return service.UserInfo(), true
	}
	return domain.UserInfo{}, false
}
