package domain

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// UserInfo identifies the staff member performing a mutation.
type UserInfo struct {
	UID   string
	Email string
	Role  string
	// Token is the caller's bearer credential, forwarded to the warehouse service.
	Token string
}

// ActivityLogEntry is one append-only audit record on a product or variant.
type ActivityLogEntry struct {
	Key         string
	Email       string
	Role        string
	Date        int64
	Description string
	Status      ItemStatus
	Changes     []FieldChange
}

// FieldChange records a single field difference. OldValue is nil when the field was introduced.
type FieldChange struct {
	Field    string
	OldValue any
	NewValue any
}

// Activity descriptions written by the mutation paths.
const (
	ActivityProductCreated    = "Product Created"
	ActivityProductUpdated    = "Product Updated"
	ActivityItemCreated       = "Item Created"
	ActivityItemUpdated       = "Item Updated"
	ActivityStatusUpdated     = "Status Updated"
	ActivityDuplicated        = "Duplicated"
	ActivityStockAdjusted     = "Stock Adjusted"
	ActivitySupplierAssigned  = "Supplier Updated"
	ActivityClassificationSet = "ABC Class Updated"
)

// NewActivityLog builds an entry stamped at the provided instant.
func NewActivityLog(user UserInfo, description string, status ItemStatus, changes []FieldChange, at time.Time) ActivityLogEntry {
	at = at.UTC()
	return ActivityLogEntry{
		Key:         ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		Email:       strings.TrimSpace(user.Email),
		Role:        strings.TrimSpace(user.Role),
		Date:        at.UnixMilli(),
		Description: description,
		Status:      status,
		Changes:     changes,
	}
}

// DuplicatedFrom is the description recorded on a cloned product.
func DuplicatedFrom(productID string) string {
	return "Duplicated from " + productID
}

// DetectChanges compares every key of updated against original.
// Results are ordered by field name.
func DetectChanges(original, updated map[string]any) []FieldChange {
	if len(updated) == 0 {
		return nil
	}
	keys := make([]string, 0, len(updated))
	for key := range updated {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var changes []FieldChange
	for _, key := range keys {
		newValue := updated[key]
		oldValue, existed := original[key]
		if existed && reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		if !existed {
			oldValue = nil
		}
		changes = append(changes, FieldChange{Field: key, OldValue: oldValue, NewValue: newValue})
	}
	return changes
}

// LatestActivity returns the newest entry by date, if any.
func LatestActivity(entries []ActivityLogEntry) (ActivityLogEntry, bool) {
	if len(entries) == 0 {
		return ActivityLogEntry{}, false
	}
	latest := entries[0]
	for _, entry := range entries[1:] {
		if entry.Date >= latest.Date {
			latest = entry
		}
	}
	return latest, true
}
