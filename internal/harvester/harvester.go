package harvester

import (
	"context"
	"fmt"
	"time"

	"github.com/mkushnerov/tg-harvester/internal/logger"
	"github.com/mkushnerov/tg-harvester/internal/models"
	"github.com/mkushnerov/tg-harvester/internal/telegram"
)

// Harvester walks a located message range and snapshots distinct senders.
type Harvester struct {
	client HistoryClient
	log    *logger.Logger
}

// NewHarvester creates a harvester over the given client.
func NewHarvester(client HistoryClient) *Harvester {
	return &Harvester{
		client: client,
		log:    logger.Get(),
	}
}

// Harvest collects one snapshot per distinct sender among the messages of
// one day in one chat. The examined ID range is widened by one on each side
// to absorb boundary ambiguity from the locator; messages outside the target
// day are filtered by date instead.
//
// Only the first qualifying message per sender produces a snapshot. Which
// message that is depends on the order history pages come back, so callers
// must not rely on a particular message winning.
func (h *Harvester) Harvest(ctx context.Context, chat telegram.Chat, firstID, lastID int, day time.Time, collectedAt time.Time, accountLabel string) (*models.SnapshotSet, error) {
	dayStart := day.Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	msgs, err := h.client.MessagesBetween(ctx, chat, firstID-1, lastID+1)
	if err != nil {
		return nil, fmt.Errorf("walk range [%d, %d]: %w", firstID-1, lastID+1, err)
	}

	set := models.NewSnapshotSet()
	seen := make(map[int64]struct{})
	processed := 0

	for _, m := range msgs {
		processed++
		if m.Date.Before(dayStart) || !m.Date.Before(dayEnd) {
			continue
		}
		if m.Sender == nil {
			continue
		}
		if _, ok := seen[m.Sender.ID]; ok {
			continue
		}
		seen[m.Sender.ID] = struct{}{}
		set.Add(buildSnapshot(m, chat, collectedAt, accountLabel))
	}

	h.log.Debug().
		Int64("chat_id", chat.ID).
		Str("chat_title", chat.Title).
		Int("messages", processed).
		Int("senders", set.Len()).
		Msg("harvester: chat harvested")

	return set, nil
}

// buildSnapshot normalizes one observed sender into a UserSnapshot. All
// heterogeneity of the remote profile shapes is resolved here, nowhere else.
func buildSnapshot(m telegram.MessageInfo, chat telegram.Chat, collectedAt time.Time, accountLabel string) models.UserSnapshot {
	sender := m.Sender
	lastSeen := m.Date

	return models.UserSnapshot{
		UserID:           sender.ID,
		Username:         models.NormalizeUsername(sender.Username),
		FirstName:        optString(sender.FirstName),
		LastName:         optString(sender.LastName),
		Phone:            optString(sender.Phone),
		IsPremium:        sender.Premium,
		IsVerified:       sender.Verified,
		IsBot:            sender.Bot,
		LastSeenAt:       &lastSeen,
		CollectedAt:      collectedAt,
		SourceGroupTitle: chat.Title,
		SourceGroupID:    chat.ID,
		AccountLabel:     accountLabel,
	}
}

func optString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
