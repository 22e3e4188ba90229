package harvester

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mkushnerov/tg-harvester/internal/config"
	"github.com/mkushnerov/tg-harvester/internal/logger"
	"github.com/mkushnerov/tg-harvester/internal/models"
	"github.com/mkushnerov/tg-harvester/internal/telegram"
)

// UsersStore is the persistence contract the pipeline needs: read the full
// identity set, append unseen rows. No updates, no deletes.
type UsersStore interface {
	ExistingIDs(ctx context.Context) (map[int64]struct{}, error)
	InsertBatch(ctx context.Context, snapshots []models.UserSnapshot) (int, error)
}

// EventPublisher publishes harvest lifecycle events.
type EventPublisher interface {
	PublishHarvestCompleted(ctx context.Context, event HarvestCompletedEvent) error
}

// HarvestCompletedEvent is emitted after one account finishes a harvest.
type HarvestCompletedEvent struct {
	AccountLabel   string    `json:"account_label"`
	DateFrom       string    `json:"date_from"`
	DateTo         string    `json:"date_to"`
	UsersCollected int       `json:"users_collected"`
	NewUsers       int       `json:"new_users"`
	Duplicates     int       `json:"duplicates"`
	CompletedAt    time.Time `json:"completed_at"`
}

// ReplyWriter renders the newly inserted rows of a run into a report file.
type ReplyWriter interface {
	WriteReply(accountLabel string, from, to time.Time, rows []models.UserSnapshot) (string, error)
}

// ConnectFunc opens a session for one account and returns a history client
// plus its teardown. Injected so tests can run without a live account.
type ConnectFunc func(ctx context.Context, account config.Account) (HistoryClient, func(), error)

// BackupFunc snapshots the store before it is mutated. Returns the backup
// path, or "" when the storage backend does not support file backups.
type BackupFunc func() (string, error)

// Service orchestrates one account's harvest: connect, fan out over groups
// for each day in the range, deduplicate against the store, persist, export.
type Service struct {
	cfg       *config.Config
	store     UsersStore
	publisher EventPublisher
	exporter  ReplyWriter
	backup    BackupFunc
	connect   ConnectFunc
	log       *logger.Logger
}

// NewService creates a harvest service. publisher, exporter and backup may
// be nil; the pipeline then runs without events, report files or backups.
func NewService(cfg *config.Config, store UsersStore, publisher EventPublisher, exporter ReplyWriter, backup BackupFunc, connect ConnectFunc) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		publisher: publisher,
		exporter:  exporter,
		backup:    backup,
		connect:   connect,
		log:       logger.Get(),
	}
}

// Connect opens a real Telegram session for an account. This is the
// production ConnectFunc.
func Connect(cfg *config.Config) ConnectFunc {
	return func(ctx context.Context, account config.Account) (HistoryClient, func(), error) {
		session, err := telegram.OpenSession(ctx, cfg, account)
		if err != nil {
			return nil, nil, err
		}
		client := telegram.NewClient(session, cfg.HistoryPageSize)
		return client, session.Close, nil
	}
}

// Collect harvests the inclusive day range for one account. It always
// returns human-readable status lines, even on total failure, so the
// operator surface can render something. The second return value is the
// path of the report file with this run's newly inserted rows, or "".
func (s *Service) Collect(ctx context.Context, account config.Account, from, to time.Time) ([]string, string) {
	label := account.DisplayLabel()
	rangeLabel := formatRange(from, to)

	if err := account.Validate(); err != nil {
		return []string{fmt.Sprintf("%s: configuration error: %v", label, err)}, ""
	}

	client, closeFn, err := s.connect(ctx, account)
	if err != nil {
		if errors.Is(err, telegram.ErrUnauthorized) {
			return []string{fmt.Sprintf("%s: not authorized, run tg-auth for this account", label)}, ""
		}
		return []string{fmt.Sprintf("%s: connection failed: %v", label, err)}, ""
	}
	defer closeFn()

	// one collection timestamp for the whole run so every row of this run
	// shares the persistence key component
	collectedAt := time.Now().In(models.CollectedZone)

	var (
		lines []string
		all   = models.NewSnapshotSet()
		total FanoutStats
	)

	fanout := NewFanout(client, s.cfg.LookbackLimit, s.cfg.MinGroupMembers, s.cfg.HarvestConcurrency)
	for day := from; !day.After(to); day = day.Add(24 * time.Hour) {
		set, stats, err := fanout.Collect(ctx, day, collectedAt, label)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s, %s: failed to list chats: %v", label, day.Format(dateLayout), err))
			continue
		}
		total.ChatsTotal = stats.ChatsTotal
		total.GroupsMatched = stats.GroupsMatched
		total.GroupsEmpty += stats.GroupsEmpty
		total.GroupsFailed += stats.GroupsFailed
		all.Union(set)
	}
	total.UsersCollected = all.Len()

	lines = append(lines, fmt.Sprintf(
		"%s, %s: %d chats, %d qualifying groups (%d empty, %d failed), %d users collected",
		label, rangeLabel,
		total.ChatsTotal, total.GroupsMatched, total.GroupsEmpty, total.GroupsFailed, total.UsersCollected,
	))

	if all.Len() == 0 {
		return lines, ""
	}

	newRows, duplicates, err := s.persist(ctx, all)
	if err != nil {
		lines = append(lines, fmt.Sprintf("%s: persistence failed, 0 new rows: %v", label, err))
		return lines, ""
	}
	lines = append(lines, fmt.Sprintf("%s: %d new users, %d already known", label, len(newRows), duplicates))

	artifact := s.writeReport(label, from, to, newRows)
	s.publishCompleted(ctx, HarvestCompletedEvent{
		AccountLabel:   label,
		DateFrom:       from.Format(dateLayout),
		DateTo:         to.Format(dateLayout),
		UsersCollected: all.Len(),
		NewUsers:       len(newRows),
		Duplicates:     duplicates,
		CompletedAt:    time.Now().UTC(),
	})

	return lines, artifact
}

// persist filters the batch against the existing identity set and inserts
// the remainder. The unique index catches anything that slips through the
// set check, so re-running the same day twice stays idempotent.
func (s *Service) persist(ctx context.Context, all *models.SnapshotSet) ([]models.UserSnapshot, int, error) {
	existing, err := s.store.ExistingIDs(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("read identity set: %w", err)
	}

	// A sender active in the same group on several days of one run produces
	// snapshots with distinct fingerprints but the same persistence key, so
	// the batch is collapsed to one row per key before inserting. Otherwise
	// the unique index would drop rows the report already counted.
	var newRows []models.UserSnapshot
	keys := make(map[string]struct{})
	for _, snap := range all.Items() {
		if _, ok := existing[snap.UserID]; ok {
			continue
		}
		key := snap.CollectionKey()
		if _, ok := keys[key]; ok {
			continue
		}
		keys[key] = struct{}{}
		newRows = append(newRows, snap)
	}
	duplicates := all.Len() - len(newRows)

	if len(newRows) == 0 {
		return nil, duplicates, nil
	}

	if s.backup != nil {
		if path, err := s.backup(); err != nil {
			s.log.Warn().Err(err).Msg("harvester: store backup failed")
		} else if path != "" {
			s.log.Info().Str("path", path).Msg("harvester: store backed up")
		}
	}

	inserted, err := s.store.InsertBatch(ctx, newRows)
	if err != nil {
		return nil, duplicates, fmt.Errorf("insert batch: %w", err)
	}
	if inserted < len(newRows) {
		s.log.Warn().
			Int("expected", len(newRows)).
			Int("inserted", inserted).
			Msg("harvester: some rows were rejected by the unique index")
	}

	return newRows, duplicates, nil
}

func (s *Service) writeReport(label string, from, to time.Time, rows []models.UserSnapshot) string {
	if s.exporter == nil || len(rows) == 0 {
		return ""
	}
	path, err := s.exporter.WriteReply(label, from, to, rows)
	if err != nil {
		s.log.Error().Err(err).Msg("harvester: report file write failed")
		return ""
	}
	return path
}

func (s *Service) publishCompleted(ctx context.Context, event HarvestCompletedEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishHarvestCompleted(ctx, event); err != nil {
		s.log.Warn().Err(err).Msg("harvester: failed to publish completion event")
	}
}

func formatRange(from, to time.Time) string {
	if from.Equal(to) {
		return from.Format(dateLayout)
	}
	return from.Format(dateLayout) + ".." + to.Format(dateLayout)
}
