package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_Defaults(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("MIN_GROUP_MEMBERS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DatabaseURL != "./data/users.db" {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, "./data/users.db")
	}
	if cfg.MinGroupMembers != 10 {
		t.Errorf("MinGroupMembers = %d, want 10", cfg.MinGroupMembers)
	}
	if cfg.LookbackLimit != 50 {
		t.Errorf("LookbackLimit = %d, want 50", cfg.LookbackLimit)
	}
	if cfg.HarvestConcurrency != 3 {
		t.Errorf("HarvestConcurrency = %d, want 3", cfg.HarvestConcurrency)
	}
}

func TestConfig_FromEnv(t *testing.T) {
	os.Setenv("MIN_GROUP_MEMBERS", "25")
	defer os.Unsetenv("MIN_GROUP_MEMBERS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MinGroupMembers != 25 {
		t.Errorf("MinGroupMembers = %d, want 25", cfg.MinGroupMembers)
	}
}

func TestLoadAccounts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.yaml")

	data := `accounts:
  - label: main
    phone: "+15550001111"
    api_id: 12345
    api_hash: abcdef
  - phone: "+15550002222"
    api_id: 67890
    api_hash: fedcba
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	accounts, err := LoadAccounts(path)
	if err != nil {
		t.Fatalf("LoadAccounts() error = %v", err)
	}

	if len(accounts) != 2 {
		t.Fatalf("got %d accounts, want 2", len(accounts))
	}
	if accounts[0].DisplayLabel() != "main" {
		t.Errorf("first label = %q, want %q", accounts[0].DisplayLabel(), "main")
	}
	if accounts[1].DisplayLabel() != "+15550002222" {
		t.Errorf("second label = %q, want phone fallback", accounts[1].DisplayLabel())
	}
	if err := accounts[0].Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestAccountByLabel(t *testing.T) {
	accounts := []Account{
		{Label: "main", Phone: "+15550001111"},
		{Phone: "+15550002222"},
	}

	if a, ok := AccountByLabel(accounts, "main"); !ok || a.Phone != "+15550001111" {
		t.Errorf("AccountByLabel(main) = (%+v, %v), want labeled account", a, ok)
	}
	if a, ok := AccountByLabel(accounts, "+15550002222"); !ok || a.Phone != "+15550002222" {
		t.Errorf("AccountByLabel(phone) = (%+v, %v), want phone fallback match", a, ok)
	}
	if _, ok := AccountByLabel(accounts, "missing"); ok {
		t.Error("AccountByLabel(missing) matched, want no match")
	}
}

func TestAccount_Validate(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		wantErr bool
	}{
		{"complete", Account{Phone: "+1555", APIID: 1, APIHash: "h"}, false},
		{"missing phone", Account{APIID: 1, APIHash: "h"}, true},
		{"missing api_id", Account{Phone: "+1555", APIHash: "h"}, true},
		{"missing api_hash", Account{Phone: "+1555", APIID: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.account.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
