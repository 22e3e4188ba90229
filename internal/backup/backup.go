// Package backup copies the sqlite store aside before mutating runs.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Store snapshots file-backed databases. For backends without a single
// backing file (postgres) it is a no-op.
type Store struct {
	dbPath    string
	backupDir string
}

// New creates a backup store. dbPath may be empty when the database has no
// backing file; Run then does nothing.
func New(dbPath, backupDir string) *Store {
	return &Store{dbPath: dbPath, backupDir: backupDir}
}

// Run copies the database file into the backup directory with a timestamped
// name and returns the copy's path. Returns "" without error when the
// backend is not file-backed or the file does not exist yet.
func (s *Store) Run() (string, error) {
	if s.dbPath == "" {
		return "", nil
	}
	if _, err := os.Stat(s.dbPath); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("stat database file: %w", err)
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	base := filepath.Base(s.dbPath)
	dst := filepath.Join(s.backupDir, fmt.Sprintf("%s.%s.bak", base, stamp))

	if err := copyFile(s.dbPath, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy database: %w", err)
	}
	return out.Sync()
}
