// Package config loads application configuration from environment variables
// and the accounts YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Account holds credentials for one Telegram user account used for harvesting.
type Account struct {
	// Label identifies the account in logs, status lines and persisted rows.
	// Defaults to the phone number when empty.
	Label    string `yaml:"label"`
	Phone    string `yaml:"phone"`
	APIID    int    `yaml:"api_id"`
	APIHash  string `yaml:"api_hash"`
	Password string `yaml:"password"` // optional 2FA password
}

// DisplayLabel returns the label used in status lines and account_label columns.
func (a Account) DisplayLabel() string {
	if a.Label != "" {
		return a.Label
	}
	return a.Phone
}

// Validate checks that the account carries enough credentials to connect.
func (a Account) Validate() error {
	if a.Phone == "" {
		return fmt.Errorf("account %q: phone is required", a.Label)
	}
	if a.APIID == 0 || a.APIHash == "" {
		return fmt.Errorf("account %q: missing api_id/api_hash", a.DisplayLabel())
	}
	return nil
}

// Config holds all application configuration.
type Config struct {
	// database: sqlite file path or postgres:// URL
	DatabaseURL string

	// nats
	NatsURL string

	// accounts file (yaml)
	AccountsFile string
	Accounts     []Account

	// directories
	SessionDir string
	ReplyDir   string
	BackupDir  string

	// harvesting policy
	MinGroupMembers    int
	LookbackLimit      int
	HarvestConcurrency int
	HistoryPageSize    int

	// server
	HTTPPort int

	// logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from the environment with defaults, then loads the
// accounts file if it exists. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", "./data/users.db"),
		NatsURL:            getEnv("NATS_URL", ""),
		AccountsFile:       getEnv("ACCOUNTS_FILE", "./accounts.yaml"),
		SessionDir:         getEnv("SESSION_DIR", "./sessions"),
		ReplyDir:           getEnv("REPLY_DIR", "./data/reply"),
		BackupDir:          getEnv("BACKUP_DIR", "./data/backups"),
		MinGroupMembers:    getEnvInt("MIN_GROUP_MEMBERS", 10),
		LookbackLimit:      getEnvInt("LOOKBACK_LIMIT", 50),
		HarvestConcurrency: getEnvInt("HARVEST_CONCURRENCY", 3),
		HistoryPageSize:    getEnvInt("HISTORY_PAGE_SIZE", 100),
		HTTPPort:           getEnvInt("HTTP_PORT", 3200),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFile:            getEnv("LOG_FILE", ""),
	}

	if _, err := os.Stat(cfg.AccountsFile); err == nil {
		accounts, err := LoadAccounts(cfg.AccountsFile)
		if err != nil {
			return nil, err
		}
		cfg.Accounts = accounts
	}

	return cfg, nil
}

// accountsFile is the on-disk shape of the accounts YAML file.
type accountsFile struct {
	Accounts []Account `yaml:"accounts"`
}

// LoadAccounts parses the accounts YAML file.
func LoadAccounts(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	var f accountsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}

	return f.Accounts, nil
}

// AccountByLabel finds a configured account by display label.
func AccountByLabel(accounts []Account, label string) (Account, bool) {
	for _, a := range accounts {
		if a.DisplayLabel() == label {
			return a, true
		}
	}
	return Account{}, false
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
