// Package database provides the persistent store connection.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mkushnerov/tg-harvester/internal/models"
)

// DB wraps the GORM handle together with driver knowledge the backup layer needs.
type DB struct {
	GORM *gorm.DB

	// SQLitePath is the store file path when the sqlite driver is in use,
	// empty for postgres. File-level backups are only supported for sqlite.
	SQLitePath string
}

// New opens the store. DatabaseURL is either a postgres:// URL or a sqlite
// file path. The sqlite store runs with WAL journaling and a busy timeout so
// concurrent readers don't trip over the writer.
func New(databaseURL string) (*DB, error) {
	var (
		dialector  gorm.Dialector
		sqlitePath string
	)

	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		dialector = postgres.Open(databaseURL)
	} else {
		sqlitePath = databaseURL
		if dir := filepath.Dir(sqlitePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		dsn := sqlitePath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)&_pragma=synchronous(NORMAL)"
		dialector = sqlite.Open(dsn)
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &DB{GORM: gormDB, SQLitePath: sqlitePath}, nil
}

// Migrate creates the users table and its indexes, including the uniqueness
// constraint over (user_id, collected_at, source_group_id).
func (db *DB) Migrate() error {
	if err := db.GORM.AutoMigrate(&models.UserSnapshot{}); err != nil {
		return fmt.Errorf("migrate users table: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.GORM.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
