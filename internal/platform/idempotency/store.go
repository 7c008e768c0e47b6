package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL bounds how long a key stays reserved or replayable.
const DefaultTTL = 24 * time.Hour

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for a different request")

// State is the lifecycle of a stored entry.
type State string

const (
	StateInFlight  State = "in_flight"
	StateCompleted State = "completed"
)

// Outcome tells the caller what to do after Reserve.
type Outcome int

const (
	// OutcomeAcquired means the caller owns the key and must Complete or Release it.
	OutcomeAcquired Outcome = iota
	// OutcomeReplay means a finished response is stored under the key.
	OutcomeReplay
	// OutcomeInFlight means another request holds the key.
	OutcomeInFlight
)

// Key identifies a client supplied idempotency key within the scope of one caller.
type Key struct {
	Scope string
	Value string
}

// ID is the storage identifier. Raw client keys never reach the store.
func (k Key) ID() string {
	scope := strings.TrimSpace(k.Scope)
	if scope == "" {
		scope = anonymousScope
	}
	sum := sha256.Sum256([]byte(scope + "\x00" + strings.TrimSpace(k.Value)))
	return hex.EncodeToString(sum[:])
}

// Claim is one attempt to use a key.
type Claim struct {
	Key         Key
	Fingerprint string
	Route       string
	Now         time.Time
	TTL         time.Duration
}

func (c Claim) normalised() Claim {
	c.Now = c.Now.UTC()
	if c.Now.IsZero() {
		c.Now = time.Now().UTC()
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	return c
}

// Response is the captured HTTP response replayed for repeated claims.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Entry is what a store keeps per key.
type Entry struct {
	Scope       string
	Fingerprint string
	Route       string
	State       State
	Response    Response
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store persists idempotency entries.
type Store interface {
	// Reserve claims the key or reports the stored state of a previous claim.
	Reserve(ctx context.Context, claim Claim) (Outcome, Entry, error)
	// Complete stores resp against a key acquired by the same fingerprint.
	Complete(ctx context.Context, claim Claim, resp Response) error
	// Release frees a key so the request can be retried.
	Release(ctx context.Context, key Key) error
	// CleanupExpired deletes up to limit expired entries.
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// decide applies a claim to the current entry, if any. It returns the entry the store must
// write when the outcome is OutcomeAcquired.
func decide(current *Entry, claim Claim) (Outcome, Entry, error) {
	if current == nil || current.expired(claim.Now) {
		return OutcomeAcquired, Entry{
			Scope:       claim.Key.Scope,
			Fingerprint: claim.Fingerprint,
			Route:       claim.Route,
			State:       StateInFlight,
			CreatedAt:   claim.Now,
			ExpiresAt:   claim.Now.Add(claim.TTL),
		}, nil
	}
	if current.Fingerprint != claim.Fingerprint {
		return 0, Entry{}, ErrFingerprintMismatch
	}
	if current.State == StateCompleted {
		return OutcomeReplay, *current, nil
	}
	return OutcomeInFlight, *current, nil
}

// completed returns current updated with resp.
func completed(current *Entry, claim Claim, resp Response) (Entry, error) {
	entry := Entry{Scope: claim.Key.Scope, Fingerprint: claim.Fingerprint, Route: claim.Route, CreatedAt: claim.Now}
	if current != nil {
		if current.Fingerprint != claim.Fingerprint {
			return Entry{}, ErrFingerprintMismatch
		}
		entry = *current
	}
	entry.State = StateCompleted
	entry.Response = Response{
		Status:  resp.Status,
		Headers: replayableHeaders(resp.Headers),
		Body:    append([]byte(nil), resp.Body...),
	}
	entry.ExpiresAt = claim.Now.Add(claim.TTL)
	return entry, nil
}

var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Content-Length":      {},
	"Date":                {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"X-Request-Id":        {},
	"X-Trace-Id":          {},
}

func replayableHeaders(header http.Header) http.Header {
	out := make(http.Header, len(header))
	for name, values := range header {
		name = http.CanonicalHeaderKey(name)
		if _, skip := hopHeaders[name]; skip {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	return out
}
