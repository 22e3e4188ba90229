package models

import (
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *string
	}{
		{"empty stays nil", "", nil},
		{"bare name gets sigil", "alice", strPtr("@alice")},
		{"already prefixed", "@bob", strPtr("@bob")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeUsername(tt.raw)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("NormalizeUsername(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("NormalizeUsername(%q) = %q, want %q", tt.raw, *got, *tt.want)
			}
		})
	}
}

func TestSnapshotSet_CollapsesExactRepeats(t *testing.T) {
	now := time.Now().In(CollectedZone).Truncate(time.Second)
	snap := UserSnapshot{
		UserID:           42,
		Username:         NormalizeUsername("alice"),
		CollectedAt:      now,
		SourceGroupTitle: "gophers",
		SourceGroupID:    100,
		AccountLabel:     "main",
	}

	set := NewSnapshotSet()
	set.Add(snap)
	set.Add(snap)

	if set.Len() != 1 {
		t.Errorf("Len() = %d, want 1", set.Len())
	}
}

func TestSnapshotSet_KeepsCrossGroupObservations(t *testing.T) {
	now := time.Now().In(CollectedZone).Truncate(time.Second)
	a := UserSnapshot{UserID: 42, CollectedAt: now, SourceGroupTitle: "g1", SourceGroupID: 1}
	b := UserSnapshot{UserID: 42, CollectedAt: now, SourceGroupTitle: "g2", SourceGroupID: 2}

	set := NewSnapshotSet()
	set.Add(a)
	set.Add(b)

	if set.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (same user in two groups is two snapshots)", set.Len())
	}
}

func TestSnapshotSet_Union(t *testing.T) {
	now := time.Now().In(CollectedZone).Truncate(time.Second)

	left := NewSnapshotSet()
	left.Add(UserSnapshot{UserID: 1, CollectedAt: now, SourceGroupID: 1})
	left.Add(UserSnapshot{UserID: 2, CollectedAt: now, SourceGroupID: 1})

	right := NewSnapshotSet()
	right.Add(UserSnapshot{UserID: 2, CollectedAt: now, SourceGroupID: 1}) // exact repeat
	right.Add(UserSnapshot{UserID: 3, CollectedAt: now, SourceGroupID: 2})

	left.Union(right)
	if left.Len() != 3 {
		t.Errorf("Len() = %d, want 3", left.Len())
	}
}

func TestFingerprint_DistinguishesFieldChanges(t *testing.T) {
	now := time.Now().In(CollectedZone).Truncate(time.Second)
	base := UserSnapshot{UserID: 7, CollectedAt: now, SourceGroupID: 9}

	changed := base
	changed.Username = NormalizeUsername("carol")

	if base.Fingerprint() == changed.Fingerprint() {
		t.Error("snapshots differing in username should have distinct fingerprints")
	}
}
