package domain

import (
	"reflect"
	"testing"
	"time"
)

func TestNewActivityLogStampsUser(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	entry := NewActivityLog(UserInfo{Email: " ops@stockline.test ", Role: "admin", Token: "secret"}, ActivityItemUpdated, StatusActive, nil, at)

	if entry.Key == "" {
		t.Fatal("expected generated key")
	}
	if entry.Email != "ops@stockline.test" || entry.Role != "admin" {
		t.Fatalf("unexpected actor %q/%q", entry.Email, entry.Role)
	}
	if entry.Date != at.UnixMilli() {
		t.Fatalf("expected date %d, got %d", at.UnixMilli(), entry.Date)
	}
	if entry.Status != StatusActive || entry.Description != ActivityItemUpdated {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestDetectChanges(t *testing.T) {
	original := map[string]any{
		"name":   "Widget",
		"tags":   []string{"a"},
		"weight": 1.5,
	}
	updated := map[string]any{
		"name":     "Widget",
		"tags":     []string{"a", "b"},
		"weight":   2.0,
		"category": "tools",
	}

	got := DetectChanges(original, updated)
	want := []FieldChange{
		{Field: "category", OldValue: nil, NewValue: "tools"},
		{Field: "tags", OldValue: []string{"a"}, NewValue: []string{"a", "b"}},
		{Field: "weight", OldValue: 1.5, NewValue: 2.0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DetectChanges mismatch\n got: %#v\nwant: %#v", got, want)
	}
	if DetectChanges(original, nil) != nil {
		t.Fatal("expected nil for empty update")
	}
}

func TestLatestActivityPrefersLaterEntries(t *testing.T) {
	if _, ok := LatestActivity(nil); ok {
		t.Fatal("expected no activity")
	}
	entries := []ActivityLogEntry{
		{Key: "1", Date: 10},
		{Key: "2", Date: 30},
		{Key: "3", Date: 30},
		{Key: "4", Date: 20},
	}
	latest, ok := LatestActivity(entries)
	if !ok || latest.Key != "3" {
		t.Fatalf("expected last of the newest entries, got %+v", latest)
	}
}

func TestDuplicatedFrom(t *testing.T) {
	if got := DuplicatedFrom("PID000042"); got != "Duplicated from PID000042" {
		t.Fatalf("unexpected description %q", got)
	}
}
