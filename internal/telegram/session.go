package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/glebarez/sqlite"
	"github.com/gotd/td/tg"

	"github.com/mkushnerov/tg-harvester/internal/config"
	"github.com/mkushnerov/tg-harvester/internal/logger"
)

// Session wraps an authorized gotgproto client for a single account.
type Session struct {
	Account config.Account
	proto   *gotgproto.Client

	log *logger.Logger
}

// SessionPath returns the session database file for an account.
// One file per phone number so accounts never share auth state.
func SessionPath(sessionDir, phone string) string {
	name := "session_" + strings.TrimPrefix(phone, "+") + ".db"
	return filepath.Join(sessionDir, name)
}

// OpenSession connects an account using its stored session file. It never
// starts an interactive login: a missing or revoked session yields
// ErrUnauthorized and the caller moves on to the next account.
func OpenSession(ctx context.Context, cfg *config.Config, account config.Account) (*Session, error) {
	log := logger.Get()

	path := SessionPath(cfg.SessionDir, account.Phone)
	if _, err := os.Stat(path); err != nil {
		log.Warn().
			Str("account", account.DisplayLabel()).
			Str("session_file", path).
			Msg("telegram: session file not found, account needs auth")
		return nil, fmt.Errorf("account %s: %w", account.DisplayLabel(), ErrUnauthorized)
	}

	client, err := gotgproto.NewClient(
		account.APIID,
		account.APIHash,
		gotgproto.ClientTypePhone(""), // empty = use stored session only
		&gotgproto.ClientOpts{
			Session:          sessionMaker.SqlSession(sqlite.Open(path)),
			DisableCopyright: true,
		},
	)
	if err != nil {
		if isAuthError(err) {
			log.Warn().
				Err(err).
				Str("account", account.DisplayLabel()).
				Msg("telegram: account not authorized")
			return nil, fmt.Errorf("account %s: %w", account.DisplayLabel(), ErrUnauthorized)
		}
		return nil, fmt.Errorf("connect account %s: %w", account.DisplayLabel(), err)
	}

	log.Info().
		Str("account", account.DisplayLabel()).
		Msg("telegram: session opened")

	return &Session{
		Account: account,
		proto:   client,
		log:     log,
	}, nil
}

// API returns the raw tg.Client for direct MTProto calls.
func (s *Session) API() *tg.Client {
	return s.proto.API()
}

// Close stops the underlying client. Safe to call on a nil session.
func (s *Session) Close() {
	if s == nil || s.proto == nil {
		return
	}
	s.proto.Stop()
	s.log.Debug().
		Str("account", s.Account.DisplayLabel()).
		Msg("telegram: session closed")
}
