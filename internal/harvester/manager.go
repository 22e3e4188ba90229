package harvester

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkushnerov/tg-harvester/internal/config"
)

// errors
var (
	ErrAlreadyRunning  = errors.New("a harvest is already running for this requester")
	ErrUnknownAccount  = errors.New("no account with that label")
	ErrNoAccounts      = errors.New("no accounts configured")
	ErrRunStillActive  = errors.New("harvest still running, cannot be interrupted")
	ErrNothingToCancel = errors.New("no harvest to cancel")
)

// Collector runs one account's harvest. Satisfied by *Service.
type Collector interface {
	Collect(ctx context.Context, account config.Account, from, to time.Time) ([]string, string)
}

// Run is one requester's harvest: the requested range, the accounts it
// covers and, once finished, the status lines and report file.
type Run struct {
	ID        uuid.UUID `json:"id"`
	Requester string    `json:"requester"`
	DateFrom  string    `json:"date_from"`
	DateTo    string    `json:"date_to"`
	Accounts  []string  `json:"accounts"`
	StartedAt time.Time `json:"started_at"`

	Done       bool       `json:"done"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     []string   `json:"status,omitempty"`
	Artifacts  []string   `json:"artifacts,omitempty"`
}

// RunManager tracks at most one harvest per requester. The per-requester
// state is held by this injected store, never in package globals, so two
// managers never share runs and tests stay hermetic.
type RunManager struct {
	mu   sync.Mutex
	runs map[string]*Run

	collector Collector
	accounts  []config.Account
}

// NewRunManager creates a manager over the configured accounts.
func NewRunManager(collector Collector, accounts []config.Account) *RunManager {
	return &RunManager{
		runs:      make(map[string]*Run),
		collector: collector,
		accounts:  accounts,
	}
}

// Start launches a harvest for the requester in the background. Returns
// ErrAlreadyRunning while that requester's previous run is still in flight;
// other requesters are unaffected. A finished run is replaced.
func (m *RunManager) Start(_ context.Context, req HarvestRequest) (*Run, error) {
	accounts, err := m.selectAccounts(req.Account)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.runs[req.Requester]; ok && !current.Done {
		return nil, ErrAlreadyRunning
	}

	from, to := req.Dates()
	run := &Run{
		ID:        uuid.New(),
		Requester: req.Requester,
		DateFrom:  from.Format(dateLayout),
		DateTo:    to.Format(dateLayout),
		StartedAt: time.Now(),
	}
	for _, a := range accounts {
		run.Accounts = append(run.Accounts, a.DisplayLabel())
	}
	m.runs[req.Requester] = run

	// The HTTP request context dies when the handler returns; the run must
	// outlive it, so it gets a fresh background context.
	go m.run(context.Background(), run, accounts, from, to)

	cp := *run
	return &cp, nil
}

// Cancel clears a finished run so the requester can start a new one. An
// in-flight harvest is never interrupted; cancelling one is an error.
func (m *RunManager) Cancel(requester string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[requester]
	if !ok {
		return ErrNothingToCancel
	}
	if !run.Done {
		return ErrRunStillActive
	}
	delete(m.runs, requester)
	return nil
}

// Current returns a copy of the requester's run, finished or not.
// Nil when none.
func (m *RunManager) Current(requester string) *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[requester]
	if !ok {
		return nil
	}
	cp := *run
	return &cp
}

// run processes the accounts sequentially, one full session lifecycle at a
// time, and records the combined result on the run.
func (m *RunManager) run(ctx context.Context, run *Run, accounts []config.Account, from, to time.Time) {
	var (
		lines     []string
		artifacts []string
	)
	for _, account := range accounts {
		status, artifact := m.collector.Collect(ctx, account, from, to)
		lines = append(lines, status...)
		if artifact != "" {
			artifacts = append(artifacts, artifact)
		}
	}

	now := time.Now()
	m.mu.Lock()
	run.Done = true
	run.FinishedAt = &now
	run.Status = lines
	run.Artifacts = artifacts
	m.mu.Unlock()
}

func (m *RunManager) selectAccounts(label string) ([]config.Account, error) {
	if len(m.accounts) == 0 {
		return nil, ErrNoAccounts
	}
	if label == "" {
		return m.accounts, nil
	}
	if a, ok := config.AccountByLabel(m.accounts, label); ok {
		return []config.Account{a}, nil
	}
	return nil, ErrUnknownAccount
}
