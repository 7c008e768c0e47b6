package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ItemStatus enumerates lifecycle states shared by products and their variants.
type ItemStatus string

const (
	StatusDraft       ItemStatus = "draft"
	StatusActive      ItemStatus = "active"
	StatusDeactivated ItemStatus = "deactivated"
	StatusDeleted     ItemStatus = "deleted"
	StatusArchived    ItemStatus = "archived"
)

// ErrInvalidTransition is matched by every TransitionError.
var ErrInvalidTransition = errors.New("domain: invalid status transition")

var statusTransitions = map[ItemStatus][]ItemStatus{
	StatusDraft:       {StatusActive, StatusDeleted},
	StatusActive:      {StatusDraft, StatusDeactivated},
	StatusDeactivated: {StatusDraft, StatusDeleted},
	StatusDeleted:     nil,
	StatusArchived:    nil,
}

// ParseItemStatus normalises raw input into a known status.
func ParseItemStatus(raw string) (ItemStatus, bool) {
	status := ItemStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := statusTransitions[status]; !ok {
		return "", false
	}
	return status, true
}

// IsTerminal reports whether no transition may leave the status.
func (s ItemStatus) IsTerminal() bool {
	return s == StatusDeleted || s == StatusArchived
}

// AllowedTransitions lists the statuses reachable from s.
func AllowedTransitions(s ItemStatus) []ItemStatus {
	next := statusTransitions[s]
	out := make([]ItemStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether current may move to next. Staying in place is always allowed.
func CanTransition(current, next ItemStatus) bool {
	if current == next {
		return true
	}
	for _, allowed := range statusTransitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionError carries the rejected status pair.
type TransitionError struct {
	Entity    string
	Key       string
	Current   ItemStatus
	Requested ItemStatus
}

func (e *TransitionError) Error() string {
	if e == nil {
		return ""
	}
	subject := e.Entity
	if subject == "" {
		subject = "item"
	}
	if e.Key != "" {
		subject = fmt.Sprintf("%s %s", subject, e.Key)
	}
	return fmt.Sprintf("%s cannot move from %q to %q", subject, e.Current, e.Requested)
}

// Is allows errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ValidateTransition returns a *TransitionError when the pair is not in the transition table.
func ValidateTransition(entity, key string, current, requested ItemStatus) error {
	if _, ok := statusTransitions[requested]; !ok {
		return &TransitionError{Entity: entity, Key: key, Current: current, Requested: requested}
	}
	if CanTransition(current, requested) {
		return nil
	}
	return &TransitionError{Entity: entity, Key: key, Current: current, Requested: requested}
}

// StatusCascade maps a product status onto the status its variants should adopt.
type StatusCascade map[ItemStatus]ItemStatus

// DefaultStatusCascade keeps variants in lock-step with their product.
var DefaultStatusCascade = StatusCascade{
	StatusDraft:       StatusDraft,
	StatusActive:      StatusActive,
	StatusDeactivated: StatusDeactivated,
	StatusDeleted:     StatusDeleted,
	StatusArchived:    StatusArchived,
}

// VariantStatus resolves the variant status for the provided product status.
func (c StatusCascade) VariantStatus(shared ItemStatus) ItemStatus {
	if c != nil {
		if mapped, ok := c[shared]; ok && mapped != "" {
			return mapped
		}
	}
	return shared
}
