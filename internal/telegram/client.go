// Package telegram wraps the MTProto API surface the harvester relies on:
// per-account sessions, dialog enumeration and history windows.
package telegram

import (
	"context"
	"strconv"
	"time"

	"github.com/gotd/td/tg"

	"github.com/mkushnerov/tg-harvester/internal/logger"
)

// historyAPI is the slice of tg.Client the harvester uses. Narrowed to an
// interface so tests can run against a scripted fake.
type historyAPI interface {
	MessagesGetDialogs(ctx context.Context, request *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error)
	MessagesGetHistory(ctx context.Context, request *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
}

const dialogsPageSize = 100

// Client provides high-level history operations for one connected account.
type Client struct {
	api         historyAPI
	rateLimiter *RateLimiter
	pageSize    int
	log         *logger.Logger
}

// NewClient wraps an open session. pageSize caps how many messages a single
// history request asks for; the API itself tops out at 100.
func NewClient(session *Session, pageSize int) *Client {
	return newClient(session.API(), pageSize)
}

func newClient(api historyAPI, pageSize int) *Client {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	return &Client{
		api:         api,
		rateLimiter: DefaultRateLimiter(),
		pageSize:    pageSize,
		log:         logger.Get(),
	}
}

// Chats enumerates every dialog of the account, paging through the full
// list. Private dialogs and broadcast channels come back with IsGroup false
// so the caller can filter without a second pass.
func (c *Client) Chats(ctx context.Context) ([]Chat, error) {
	var (
		chats      []Chat
		offsetDate int
		offsetID   int
		offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}
	)

	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: offsetPeer,
			Limit:      dialogsPageSize,
		})
		if err != nil {
			c.noteFloodWait(err)
			return nil, wrapAPIError("get dialogs", err)
		}

		var (
			dialogs  []tg.DialogClass
			rawChats []tg.ChatClass
			messages []tg.MessageClass
			lastPage bool
		)
		switch d := resp.(type) {
		case *tg.MessagesDialogs:
			dialogs, rawChats, messages = d.Dialogs, d.Chats, d.Messages
			lastPage = true
		case *tg.MessagesDialogsSlice:
			dialogs, rawChats, messages = d.Dialogs, d.Chats, d.Messages
			lastPage = len(dialogs) < dialogsPageSize
		default:
			lastPage = true
		}

		byPeer := indexChats(rawChats)
		for _, dc := range dialogs {
			dialog, ok := dc.(*tg.Dialog)
			if !ok {
				continue
			}
			chat, ok := byPeer[peerKey(dialog.Peer)]
			if !ok {
				continue
			}
			chat.Archived = dialog.FolderID == 1
			chats = append(chats, chat)
		}

		if lastPage || len(dialogs) == 0 {
			break
		}

		last, ok := dialogs[len(dialogs)-1].(*tg.Dialog)
		if !ok {
			break
		}
		offsetID = last.TopMessage
		offsetDate = topMessageDate(messages, last.Peer, last.TopMessage)
		offsetPeer = inputPeerFor(last.Peer, byPeer)
	}

	c.log.Debug().Int("dialogs", len(chats)).Msg("telegram: dialogs enumerated")
	return chats, nil
}

// MessagesBefore returns up to limit messages strictly older than the given
// moment, newest first.
func (c *Client) MessagesBefore(ctx context.Context, chat Chat, before time.Time, limit int) ([]MessageInfo, error) {
	if limit > c.pageSize {
		limit = c.pageSize
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:       chat.InputPeer(),
		OffsetDate: int(before.Unix()),
		Limit:      limit,
	})
	if err != nil {
		c.noteFloodWait(err)
		return nil, wrapAPIError("get history before", err)
	}
	return extractMessages(resp), nil
}

// MessagesAfter returns up to limit messages at or after the given moment,
// oldest first. AddOffset shifts the history window forward past the offset
// date, which is how the API reads newer-than queries.
func (c *Client) MessagesAfter(ctx context.Context, chat Chat, after time.Time, limit int) ([]MessageInfo, error) {
	if limit > c.pageSize {
		limit = c.pageSize
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:       chat.InputPeer(),
		OffsetDate: int(after.Unix()),
		AddOffset:  -limit,
		Limit:      limit,
	})
	if err != nil {
		c.noteFloodWait(err)
		return nil, wrapAPIError("get history after", err)
	}

	msgs := extractMessages(resp)
	reverse(msgs)

	// the window may still include messages older than the cutoff
	filtered := msgs[:0]
	for _, m := range msgs {
		if !m.Date.Before(after) {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// MessagesBetween returns every message with an ID in [firstID, lastID],
// paging as needed. Results come back in no particular order.
func (c *Client) MessagesBetween(ctx context.Context, chat Chat, firstID, lastID int) ([]MessageInfo, error) {
	var (
		out      []MessageInfo
		offsetID = lastID + 1
	)

	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     chat.InputPeer(),
			OffsetID: offsetID,
			MinID:    firstID - 1,
			Limit:    c.pageSize,
		})
		if err != nil {
			c.noteFloodWait(err)
			return nil, wrapAPIError("get history between", err)
		}

		msgs := extractMessages(resp)
		if len(msgs) == 0 {
			break
		}

		progressed := false
		for _, m := range msgs {
			if m.ID < firstID || m.ID > lastID {
				continue
			}
			out = append(out, m)
			if m.ID < offsetID {
				offsetID = m.ID
				progressed = true
			}
		}
		if !progressed || offsetID <= firstID {
			break
		}
	}

	return out, nil
}

// noteFloodWait feeds an API flood signal back into the limiter so every
// subsequent call on this account pauses too.
func (c *Client) noteFloodWait(err error) {
	if seconds := floodWaitSeconds(err); seconds > 0 {
		c.log.Warn().Int("wait_seconds", seconds).Msg("telegram: FLOOD_WAIT detected, pausing account")
		c.rateLimiter.SetFloodWait(time.Duration(seconds) * time.Second)
	}
}

// extractMessages converts a history response into MessageInfo values,
// resolving senders against the user list attached to the same response.
func extractMessages(resp tg.MessagesMessagesClass) []MessageInfo {
	var (
		raw   []tg.MessageClass
		users []tg.UserClass
	)
	switch h := resp.(type) {
	case *tg.MessagesMessages:
		raw, users = h.Messages, h.Users
	case *tg.MessagesMessagesSlice:
		raw, users = h.Messages, h.Users
	case *tg.MessagesChannelMessages:
		raw, users = h.Messages, h.Users
	default:
		return nil
	}

	profiles := make(map[int64]*tg.User, len(users))
	for _, uc := range users {
		if u, ok := uc.(*tg.User); ok {
			profiles[u.ID] = u
		}
	}

	var out []MessageInfo
	for _, mc := range raw {
		m, ok := mc.(*tg.Message)
		if !ok {
			continue
		}
		out = append(out, MessageInfo{
			ID:     m.ID,
			Date:   time.Unix(int64(m.Date), 0).UTC(),
			Sender: resolveSender(m, profiles),
		})
	}
	return out
}

// resolveSender maps a message author onto its profile. Service messages,
// anonymous admins and channel posts have no user author and yield nil.
func resolveSender(m *tg.Message, profiles map[int64]*tg.User) *Sender {
	peer, ok := m.FromID.(*tg.PeerUser)
	if !ok {
		return nil
	}

	s := &Sender{ID: peer.UserID}
	u, ok := profiles[peer.UserID]
	if !ok {
		return s
	}

	s.Username = u.Username
	s.FirstName = u.FirstName
	s.LastName = u.LastName
	s.Phone = u.Phone
	s.Bot = u.Bot
	premium, verified := u.Premium, u.Verified
	s.Premium = &premium
	s.Verified = &verified
	return s
}

func indexChats(raw []tg.ChatClass) map[string]Chat {
	out := make(map[string]Chat, len(raw))
	for _, cc := range raw {
		switch ch := cc.(type) {
		case *tg.Chat:
			if ch.Deactivated {
				continue
			}
			out[peerKey(&tg.PeerChat{ChatID: ch.ID})] = Chat{
				ID:               ch.ID,
				Title:            ch.Title,
				IsGroup:          true,
				MemberCount:      ch.ParticipantsCount,
				MemberCountKnown: true,
			}
		case *tg.Channel:
			count, known := ch.GetParticipantsCount()
			out[peerKey(&tg.PeerChannel{ChannelID: ch.ID})] = Chat{
				ID:               ch.ID,
				AccessHash:       ch.AccessHash,
				Title:            ch.Title,
				IsGroup:          !ch.Broadcast,
				IsChannel:        true,
				MemberCount:      count,
				MemberCountKnown: known,
			}
		}
	}
	return out
}

func peerKey(peer tg.PeerClass) string {
	switch p := peer.(type) {
	case *tg.PeerChat:
		return "chat:" + strconv.FormatInt(p.ChatID, 10)
	case *tg.PeerChannel:
		return "channel:" + strconv.FormatInt(p.ChannelID, 10)
	case *tg.PeerUser:
		return "user:" + strconv.FormatInt(p.UserID, 10)
	}
	return ""
}

func inputPeerFor(peer tg.PeerClass, byPeer map[string]Chat) tg.InputPeerClass {
	if chat, ok := byPeer[peerKey(peer)]; ok {
		return chat.InputPeer()
	}
	if p, ok := peer.(*tg.PeerUser); ok {
		return &tg.InputPeerUser{UserID: p.UserID}
	}
	return &tg.InputPeerEmpty{}
}

func topMessageDate(messages []tg.MessageClass, peer tg.PeerClass, topID int) int {
	for _, mc := range messages {
		m, ok := mc.(*tg.Message)
		if !ok || m.ID != topID {
			continue
		}
		if peerKey(m.PeerID) == peerKey(peer) {
			return m.Date
		}
	}
	return 0
}

func reverse(msgs []MessageInfo) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

