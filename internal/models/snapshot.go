// Package models defines the persisted and in-flight data types of the harvester.
package models

import (
	"fmt"
	"strings"
	"time"
)

// CollectedZone is the fixed offset used for collected_at timestamps.
var CollectedZone = time.FixedZone("UTC+1", 3600)

// UserSnapshot is one observation of a Telegram user in one group on one day.
// A user observed in the same group by two different collection runs is a
// distinct row; the unique index collapses exact duplicates at insert time.
type UserSnapshot struct {
	ID               uint       `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID           int64      `gorm:"column:user_id;not null;index;uniqueIndex:uniq_user_collection" json:"user_id"`
	Username         *string    `gorm:"column:username;index" json:"username,omitempty"`
	FirstName        *string    `gorm:"column:first_name" json:"first_name,omitempty"`
	LastName         *string    `gorm:"column:last_name" json:"last_name,omitempty"`
	Phone            *string    `gorm:"column:phone" json:"phone,omitempty"`
	Gender           *string    `gorm:"column:gender" json:"gender,omitempty"`
	IsPremium        *bool      `gorm:"column:is_premium" json:"is_premium,omitempty"`
	IsVerified       *bool      `gorm:"column:is_verified" json:"is_verified,omitempty"`
	IsBot            bool       `gorm:"column:is_bot" json:"is_bot"`
	LastSeenAt       *time.Time `gorm:"column:last_seen_at" json:"last_seen_at,omitempty"`
	CollectedAt      time.Time  `gorm:"column:collected_at;not null;index;uniqueIndex:uniq_user_collection" json:"collected_at"`
	SourceGroupTitle string     `gorm:"column:source_group_title;index" json:"source_group_title"`
	SourceGroupID    int64      `gorm:"column:source_group_id;uniqueIndex:uniq_user_collection" json:"source_group_id"`
	AccountLabel     string     `gorm:"column:account_label" json:"account_label"`
	CreatedAt        time.Time  `json:"-"`
}

// TableName fixes the table name regardless of gorm pluralization settings.
func (UserSnapshot) TableName() string { return "users" }

// NormalizeUsername returns the username with a leading @, or nil when the
// raw value is empty. Absent usernames are stored as null, never "".
func NormalizeUsername(raw string) *string {
	if raw == "" {
		return nil
	}
	if !strings.HasPrefix(raw, "@") {
		raw = "@" + raw
	}
	return &raw
}

// Fingerprint is the full-record identity used by SnapshotSet. Two snapshots
// differing in any field are distinct set members.
func (s UserSnapshot) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|", s.UserID)
	writeOpt(&b, s.Username)
	writeOpt(&b, s.FirstName)
	writeOpt(&b, s.LastName)
	writeOpt(&b, s.Phone)
	writeOpt(&b, s.Gender)
	writeOptBool(&b, s.IsPremium)
	writeOptBool(&b, s.IsVerified)
	fmt.Fprintf(&b, "%t|", s.IsBot)
	if s.LastSeenAt != nil {
		b.WriteString(s.LastSeenAt.UTC().Format(time.RFC3339))
	}
	b.WriteByte('|')
	b.WriteString(s.CollectedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "|%s|%d|%s", s.SourceGroupTitle, s.SourceGroupID, s.AccountLabel)
	return b.String()
}

// CollectionKey is the persistence identity: the column triple covered by
// the users table's unique index.
func (s UserSnapshot) CollectionKey() string {
	return fmt.Sprintf("%d|%d|%d", s.UserID, s.CollectedAt.Unix(), s.SourceGroupID)
}

func writeOpt(b *strings.Builder, v *string) {
	if v != nil {
		b.WriteString(*v)
	}
	b.WriteByte('|')
}

func writeOptBool(b *strings.Builder, v *bool) {
	if v != nil {
		fmt.Fprintf(b, "%t", *v)
	}
	b.WriteByte('|')
}

// SnapshotSet is a set of UserSnapshots keyed by full record identity.
// Cross-group observations of the same user stay distinct members; exact
// repeats collapse.
type SnapshotSet struct {
	members map[string]UserSnapshot
}

// NewSnapshotSet creates an empty snapshot set.
func NewSnapshotSet() *SnapshotSet {
	return &SnapshotSet{members: make(map[string]UserSnapshot)}
}

// Add inserts a snapshot, collapsing exact duplicates.
func (s *SnapshotSet) Add(snap UserSnapshot) {
	s.members[snap.Fingerprint()] = snap
}

// Union merges another set into this one.
func (s *SnapshotSet) Union(other *SnapshotSet) {
	if other == nil {
		return
	}
	for k, v := range other.members {
		s.members[k] = v
	}
}

// Len returns the number of distinct snapshots.
func (s *SnapshotSet) Len() int { return len(s.members) }

// Items returns the snapshots in unspecified order.
func (s *SnapshotSet) Items() []UserSnapshot {
	out := make([]UserSnapshot, 0, len(s.members))
	for _, v := range s.members {
		out = append(out, v)
	}
	return out
}
