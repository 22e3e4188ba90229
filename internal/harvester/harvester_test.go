package harvester

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkushnerov/tg-harvester/internal/models"
	"github.com/mkushnerov/tg-harvester/internal/telegram"
)

var testCollectedAt = time.Date(2024, 1, 15, 18, 30, 0, 0, models.CollectedZone)

func TestHarvester_Harvest_OneSnapshotPerSender(t *testing.T) {
	client := &fakeClient{
		history: map[int64][]telegram.MessageInfo{
			1: {
				msg(100, onDay(time.Hour), 5),
				msg(101, onDay(2*time.Hour), 5),
				msg(102, onDay(3*time.Hour), 5),
				msg(103, onDay(4*time.Hour), 6),
			},
		},
	}
	h := NewHarvester(client)

	set, err := h.Harvest(context.Background(), telegram.Chat{ID: 1, Title: "g"}, 100, 103, testDay, testCollectedAt, "acc")
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	ids := make(map[int64]int)
	for _, s := range set.Items() {
		ids[s.UserID]++
	}
	assert.Equal(t, 1, ids[5])
	assert.Equal(t, 1, ids[6])
}

func TestHarvester_Harvest_WidensRangeByOne(t *testing.T) {
	client := &fakeClient{
		history: map[int64][]telegram.MessageInfo{
			1: {msg(150, onDay(time.Hour), 5)},
		},
	}
	h := NewHarvester(client)

	_, err := h.Harvest(context.Background(), telegram.Chat{ID: 1}, 100, 200, testDay, testCollectedAt, "acc")
	require.NoError(t, err)

	// located range (100, 200) means examining IDs 99 through 201 inclusive
	require.Len(t, client.betweenCalls, 1)
	assert.Equal(t, [2]int{99, 201}, client.betweenCalls[0])
}

func TestHarvester_Harvest_SkipsOutOfDayAndSenderless(t *testing.T) {
	client := &fakeClient{
		history: map[int64][]telegram.MessageInfo{
			1: {
				msg(99, onDay(-time.Hour), 7),  // previous day, in widened range
				msg(100, onDay(time.Hour), 0),  // service message, no sender
				msg(101, onDay(2*time.Hour), 5),
				msg(201, onDay(25*time.Hour), 8), // next day, in widened range
			},
		},
	}
	h := NewHarvester(client)

	set, err := h.Harvest(context.Background(), telegram.Chat{ID: 1}, 100, 200, testDay, testCollectedAt, "acc")
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	assert.Equal(t, int64(5), set.Items()[0].UserID)
}

func TestHarvester_Harvest_SnapshotFields(t *testing.T) {
	when := onDay(5 * time.Hour)
	premium := true
	client := &fakeClient{
		history: map[int64][]telegram.MessageInfo{
			1: {
				{
					ID:   100,
					Date: when,
					Sender: &telegram.Sender{
						ID:        42,
						Username:  "alice",
						FirstName: "Alice",
						Phone:     "79990001122",
						Premium:   &premium,
					},
				},
			},
		},
	}
	h := NewHarvester(client)

	set, err := h.Harvest(context.Background(), telegram.Chat{ID: 1, Title: "dev chat"}, 100, 100, testDay, testCollectedAt, "main")
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())

	snap := set.Items()[0]
	assert.Equal(t, int64(42), snap.UserID)
	require.NotNil(t, snap.Username)
	assert.Equal(t, "@alice", *snap.Username)
	require.NotNil(t, snap.FirstName)
	assert.Equal(t, "Alice", *snap.FirstName)
	assert.Nil(t, snap.LastName) // absent fields stay null, never ""
	require.NotNil(t, snap.IsPremium)
	assert.True(t, *snap.IsPremium)
	assert.Nil(t, snap.IsVerified)
	require.NotNil(t, snap.LastSeenAt)
	assert.Equal(t, when, *snap.LastSeenAt)
	assert.Equal(t, testCollectedAt, snap.CollectedAt)
	assert.Equal(t, "dev chat", snap.SourceGroupTitle)
	assert.Equal(t, int64(1), snap.SourceGroupID)
	assert.Equal(t, "main", snap.AccountLabel)
}

func TestHarvester_Harvest_PropagatesWalkError(t *testing.T) {
	client := &fakeClient{
		history:    map[int64][]telegram.MessageInfo{},
		betweenErr: map[int64]error{1: assert.AnError},
	}
	h := NewHarvester(client)

	_, err := h.Harvest(context.Background(), telegram.Chat{ID: 1}, 100, 200, testDay, testCollectedAt, "acc")
	assert.Error(t, err)
}
