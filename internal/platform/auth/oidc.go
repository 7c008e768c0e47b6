package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/platform/httpx"
	"github.com/stockline/api/internal/platform/requestctx"
)

// MetricsRecorder records verification outcomes.
type MetricsRecorder interface {
	RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration)
}

// OIDCPolicy lists what an internal caller's Google-signed token must carry.
type OIDCPolicy struct {
	Audience string
	Issuers  []string
	// ServiceAccounts, when set, restricts callers to these service account emails.
	ServiceAccounts []string
}

// VerificationError carries the metric reason and HTTP status of a rejected token.
type VerificationError struct {
	Reason string
	Status int
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err == nil {
		return "oidc: " + e.Reason
	}
	return fmt.Sprintf("oidc: %s: %v", e.Reason, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

func rejected(reason string, err error) *VerificationError {
	return &VerificationError{Reason: reason, Status: http.StatusUnauthorized, Err: err}
}

// OIDCValidator verifies Google-signed ID tokens and IAP assertions on internal routes.
type OIDCValidator struct {
	cache    *JWKSCache
	policy   OIDCPolicy
	issuers  map[string]struct{}
	accounts map[string]struct{}
	logger   Logger
	metrics  MetricsRecorder
	now      func() time.Time
}

type OIDCOption func(*OIDCValidator)

func WithOIDCLogger(logger Logger) OIDCOption {
	return func(v *OIDCValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func WithOIDCMetrics(recorder MetricsRecorder) OIDCOption {
	return func(v *OIDCValidator) { v.metrics = recorder }
}

func WithOIDCClock(now func() time.Time) OIDCOption {
	return func(v *OIDCValidator) {
		if now != nil {
			v.now = now
		}
	}
}

func NewOIDCValidator(cache *JWKSCache, policy OIDCPolicy, opts ...OIDCOption) *OIDCValidator {
	v := &OIDCValidator{
		cache:    cache,
		policy:   policy,
		issuers:  toSet(policy.Issuers),
		accounts: toSet(policy.ServiceAccounts),
		logger:   nopLogger{},
		now:      time.Now,
	}
	v.policy.Audience = strings.TrimSpace(policy.Audience)
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// ServiceIdentity is the verified principal behind an internal call, such as the scheduler
// job that triggers ABC classification.
type ServiceIdentity struct {
	Subject  string
	Email    string
	Issuer   string
	Audience string
	Claims   map[string]any
}

// UserInfo converts the principal into the actor recorded on activity log entries.
func (s *ServiceIdentity) UserInfo() domain.UserInfo {
	if s == nil {
		return domain.UserInfo{}
	}
	email := s.Email
	if email == "" {
		email = s.Subject
	}
	return domain.UserInfo{UID: s.Subject, Email: email, Role: RoleService}
}

type serviceIdentityContextKey struct{}

func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceIdentityContextKey{}, identity)
}

func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey{}).(*ServiceIdentity)
	return identity, ok && identity != nil
}

// Verify checks the token signature and the policy. Failures are *VerificationError.
func (v *OIDCValidator) Verify(ctx context.Context, raw string) (*ServiceIdentity, error) {
	if v.policy.Audience == "" {
		return nil, &VerificationError{Reason: "audience_not_configured", Status: http.StatusServiceUnavailable}
	}
	if raw == "" {
		return nil, rejected("token_missing", nil)
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid")
		}
		return v.cache.Key(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, ErrJWKSFetchFailed) {
			return nil, &VerificationError{Reason: "jwks_unavailable", Status: http.StatusServiceUnavailable, Err: err}
		}
		return nil, rejected("token_invalid", err)
	}

	issuer, _ := claims["iss"].(string)
	if _, ok := v.issuers[strings.ToLower(issuer)]; len(v.issuers) > 0 && !ok {
		return nil, rejected("issuer_mismatch", fmt.Errorf("issuer %q", issuer))
	}
	if !claims.VerifyAudience(v.policy.Audience, true) {
		return nil, rejected("audience_mismatch", nil)
	}
	email, _ := claims["email"].(string)
	if len(v.accounts) > 0 {
		verified, _ := claims["email_verified"].(bool)
		if _, ok := v.accounts[strings.ToLower(email)]; !ok || !verified {
			return nil, rejected("service_account_not_allowed", fmt.Errorf("email %q", email))
		}
	}

	subject, _ := claims["sub"].(string)
	copied := make(map[string]any, len(claims))
	for k, val := range claims {
		copied[k] = val
	}
	return &ServiceIdentity{
		Subject:  subject,
		Email:    email,
		Issuer:   issuer,
		Audience: v.policy.Audience,
		Claims:   copied,
	}, nil
}

// Middleware rejects requests without a token satisfying the policy. Tokens are read from
// the bearer Authorization header, then from the IAP assertion header.
func (v *OIDCValidator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := v.now()

			identity, err := v.Verify(ctx, oidcToken(r))
			if err != nil {
				var verr *VerificationError
				if !errors.As(err, &verr) {
					verr = &VerificationError{Reason: "internal", Status: http.StatusInternalServerError, Err: err}
				}
				v.logger.Printf("auth: internal call rejected: %v", verr)
				v.record(ctx, false, verr.Reason, start)
				code := "invalid_token"
				if verr.Status == http.StatusServiceUnavailable {
					code = "verification_unavailable"
				}
				httpx.WriteError(ctx, w, httpx.NewError(code, "oidc token verification failed", verr.Status).With("reason", verr.Reason))
				return
			}

			v.record(ctx, true, "ok", start)
			requestctx.SetActor(ctx, requestctx.Actor{UID: identity.Subject, Role: RoleService, Service: true})
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
		})
	}
}

func (v *OIDCValidator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v.metrics != nil {
		v.metrics.RecordVerification(ctx, "oidc", success, reason, v.now().Sub(start))
	}
}

func oidcToken(r *http.Request) string {
	if bearer, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
		return bearer
	}
	return strings.TrimSpace(r.Header.Get("X-Goog-Iap-Jwt-Assertion"))
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		if value = strings.ToLower(strings.TrimSpace(value)); value != "" {
			set[value] = struct{}{}
		}
	}
	return set
}
