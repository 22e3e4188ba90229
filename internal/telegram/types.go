package telegram

import (
	"time"

	"github.com/gotd/td/tg"
)

// Chat is one dialog entry as seen by a connected account. Chats are
// enumerated fresh on every run and never persisted.
type Chat struct {
	ID         int64
	AccessHash int64
	Title      string

	// IsGroup marks basic groups and supergroups; broadcast channels and
	// private dialogs are enumerated but not harvestable.
	IsGroup bool

	// IsChannel marks channel-backed peers (supergroups and broadcasts),
	// which need the access hash for API calls.
	IsChannel bool

	Archived bool

	// MemberCount is only meaningful when MemberCountKnown is set; the
	// dialog listing does not always carry participant counts.
	MemberCount      int
	MemberCountKnown bool
}

// InputPeer builds the request peer for history calls.
func (c Chat) InputPeer() tg.InputPeerClass {
	if c.IsChannel {
		return &tg.InputPeerChannel{ChannelID: c.ID, AccessHash: c.AccessHash}
	}
	return &tg.InputPeerChat{ChatID: c.ID}
}

// Sender is the normalized profile of a message author. Optional profile
// fields are resolved from the user list attached to the history response;
// Premium and Verified stay nil when the profile could not be resolved.
type Sender struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Phone     string
	Premium   *bool
	Verified  *bool
	Bot       bool
}

// MessageInfo is a parsed history message. Sender is nil when the author is
// not a resolvable user (service messages, anonymous admins, channels).
type MessageInfo struct {
	ID     int
	Date   time.Time
	Sender *Sender
}
