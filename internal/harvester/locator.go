// Package harvester implements the per-day user-collection pipeline: bounding
// a calendar day inside a chat's message history, walking the bounded range to
// snapshot distinct senders, fanning out across an account's groups, and
// reconciling the union against the persistent store.
package harvester

import (
	"context"
	"time"

	"github.com/mkushnerov/tg-harvester/internal/logger"
	"github.com/mkushnerov/tg-harvester/internal/telegram"
)

// HistoryClient is the slice of the telegram client the pipeline needs.
type HistoryClient interface {
	Chats(ctx context.Context) ([]telegram.Chat, error)
	MessagesBefore(ctx context.Context, chat telegram.Chat, before time.Time, limit int) ([]telegram.MessageInfo, error)
	MessagesAfter(ctx context.Context, chat telegram.Chat, after time.Time, limit int) ([]telegram.MessageInfo, error)
	MessagesBetween(ctx context.Context, chat telegram.Chat, firstID, lastID int) ([]telegram.MessageInfo, error)
}

// Locator finds the message-ID range bounding one calendar day in one chat.
type Locator struct {
	client   HistoryClient
	lookback int
	sleep    func(ctx context.Context, d time.Duration) error
	log      *logger.Logger
}

// NewLocator creates a locator. lookback bounds both probes: if the boundary
// message sits deeper than lookback messages from the day edge, the day is
// reported as empty. That is a deliberate accuracy/cost trade-off for very
// busy chats, not a bug.
func NewLocator(client HistoryClient, lookback int) *Locator {
	return &Locator{
		client:   client,
		lookback: lookback,
		sleep:    sleepCtx,
		log:      logger.Get(),
	}
}

// Locate returns the IDs of the first and last message posted on the given
// day. found is false when the day has no messages within the probe bounds,
// or when the chat could not be read; either way the chat is skipped, never
// the whole run.
//
// A flood-wait signal from the API is not a failure: the probe sleeps the
// signaled duration and retries the same call, as many times as the API
// keeps asking.
func (l *Locator) Locate(ctx context.Context, chat telegram.Chat, day time.Time) (firstID, lastID int, found bool) {
	dayStart := day.Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	lastID, ok := l.probeLast(ctx, chat, dayStart, dayEnd)
	if !ok {
		return 0, 0, false
	}
	firstID, ok = l.probeFirst(ctx, chat, dayStart, dayEnd)
	if !ok {
		return 0, 0, false
	}
	return firstID, lastID, true
}

// probeLast scans backward from just past the end of the day for the newest
// message still inside it.
func (l *Locator) probeLast(ctx context.Context, chat telegram.Chat, dayStart, dayEnd time.Time) (int, bool) {
	msgs, err := l.withFloodRetry(ctx, func() ([]telegram.MessageInfo, error) {
		return l.client.MessagesBefore(ctx, chat, dayEnd.Add(time.Second), l.lookback)
	})
	if err != nil {
		l.logProbeError(chat, "last", err)
		return 0, false
	}

	// newest first: the first in-day hit is the last message of the day
	for _, m := range msgs {
		if m.Date.Before(dayStart) {
			break
		}
		if m.Date.Before(dayEnd) {
			return m.ID, true
		}
	}
	return 0, false
}

// probeFirst scans forward from the start of the day for the oldest message
// inside it.
func (l *Locator) probeFirst(ctx context.Context, chat telegram.Chat, dayStart, dayEnd time.Time) (int, bool) {
	msgs, err := l.withFloodRetry(ctx, func() ([]telegram.MessageInfo, error) {
		return l.client.MessagesAfter(ctx, chat, dayStart, l.lookback)
	})
	if err != nil {
		l.logProbeError(chat, "first", err)
		return 0, false
	}

	// oldest first: the first in-day hit is the first message of the day
	for _, m := range msgs {
		if !m.Date.Before(dayEnd) {
			break
		}
		if !m.Date.Before(dayStart) {
			return m.ID, true
		}
	}
	return 0, false
}

// withFloodRetry runs one probe call, sleeping out every flood-wait signal
// and retrying. An explicit loop rather than recursion so repeated signals
// never grow the stack.
func (l *Locator) withFloodRetry(ctx context.Context, call func() ([]telegram.MessageInfo, error)) ([]telegram.MessageInfo, error) {
	for {
		msgs, err := call()
		if err == nil {
			return msgs, nil
		}
		wait, ok := telegram.AsFloodWait(err)
		if !ok {
			return nil, err
		}
		l.log.Warn().Dur("wait", wait).Msg("harvester: flood wait during probe, sleeping")
		if err := l.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (l *Locator) logProbeError(chat telegram.Chat, probe string, err error) {
	l.log.Error().
		Err(err).
		Int64("chat_id", chat.ID).
		Str("chat_title", chat.Title).
		Str("probe", probe).
		Msg("harvester: date probe failed, skipping chat")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
