package harvester

import (
	"context"
	"sync"
	"time"

	"github.com/mkushnerov/tg-harvester/internal/logger"
	"github.com/mkushnerov/tg-harvester/internal/models"
	"github.com/mkushnerov/tg-harvester/internal/telegram"
)

// FanoutStats summarizes one account-day fanout for the operator report.
type FanoutStats struct {
	ChatsTotal     int
	GroupsMatched  int
	GroupsEmpty    int
	GroupsFailed   int
	UsersCollected int
}

// Fanout runs the locate-then-harvest pair over every qualifying group of an
// account, bounded by a concurrency cap.
type Fanout struct {
	client    HistoryClient
	locator   *Locator
	harvester *Harvester

	minMembers  int
	concurrency int
	log         *logger.Logger
}

// NewFanout wires a fanout over one connected account's client.
// minMembers filters out tiny groups; concurrency caps simultaneous harvests
// to stay inside the API's rate limits, not for local resource pressure.
func NewFanout(client HistoryClient, lookback, minMembers, concurrency int) *Fanout {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Fanout{
		client:      client,
		locator:     NewLocator(client, lookback),
		harvester:   NewHarvester(client),
		minMembers:  minMembers,
		concurrency: concurrency,
		log:         logger.Get(),
	}
}

// Collect harvests every qualifying group of the account for one day and
// unions the results. One group's failure contributes zero snapshots and
// never aborts its siblings.
func (f *Fanout) Collect(ctx context.Context, day, collectedAt time.Time, accountLabel string) (*models.SnapshotSet, FanoutStats, error) {
	stats := FanoutStats{}

	chats, err := f.client.Chats(ctx)
	if err != nil {
		return nil, stats, err
	}
	stats.ChatsTotal = len(chats)

	groups := f.filterGroups(chats)
	stats.GroupsMatched = len(groups)

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		sem    = make(chan struct{}, f.concurrency)
		result = models.NewSnapshotSet()
	)

	for _, chat := range groups {
		wg.Add(1)
		go func(chat telegram.Chat) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			set, err := f.harvestGroup(ctx, chat, day, collectedAt, accountLabel)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.GroupsFailed++
			case set == nil || set.Len() == 0:
				stats.GroupsEmpty++
			default:
				result.Union(set)
			}
		}(chat)
	}
	wg.Wait()

	stats.UsersCollected = result.Len()
	f.log.Info().
		Str("account", accountLabel).
		Str("day", day.Format("2006-01-02")).
		Int("chats", stats.ChatsTotal).
		Int("groups", stats.GroupsMatched).
		Int("failed", stats.GroupsFailed).
		Int("users", stats.UsersCollected).
		Msg("harvester: fanout finished")

	return result, stats, nil
}

// harvestGroup runs one group through the locator and harvester, catching
// faults so they stay local to the group.
func (f *Fanout) harvestGroup(ctx context.Context, chat telegram.Chat, day, collectedAt time.Time, accountLabel string) (*models.SnapshotSet, error) {
	firstID, lastID, found := f.locator.Locate(ctx, chat, day)
	if !found {
		return nil, nil
	}

	set, err := f.harvester.Harvest(ctx, chat, firstID, lastID, day, collectedAt, accountLabel)
	if err != nil {
		f.log.Error().
			Err(err).
			Int64("chat_id", chat.ID).
			Str("chat_title", chat.Title).
			Msg("harvester: group harvest failed, skipping")
		return nil, err
	}
	return set, nil
}

// filterGroups keeps groups that are not archived and are big enough.
// Groups with unknown member counts are kept rather than excluded.
func (f *Fanout) filterGroups(chats []telegram.Chat) []telegram.Chat {
	var out []telegram.Chat
	for _, c := range chats {
		if !c.IsGroup || c.Archived {
			continue
		}
		if c.MemberCountKnown && c.MemberCount <= f.minMembers {
			continue
		}
		out = append(out, c)
	}
	return out
}
