package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/glebarez/sqlite"

	"github.com/mkushnerov/tg-harvester/internal/config"
	"github.com/mkushnerov/tg-harvester/internal/telegram"
)

// tg-auth seeds the per-account session files the harvester service uses.
// It walks the accounts file and runs the interactive phone login for every
// account that has no session yet. The service itself never prompts; without
// a seeded session an account is reported as unauthorized and skipped.
func main() {
	var (
		accountsPath = flag.String("accounts", "", "path to accounts.yaml (defaults to ACCOUNTS_FILE)")
		onlyLabel    = flag.String("account", "", "authorize only the account with this label")
		force        = flag.Bool("force", false, "re-authorize accounts that already have a session")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	if *accountsPath == "" {
		*accountsPath = cfg.AccountsFile
	}

	accounts, err := config.LoadAccounts(*accountsPath)
	if err != nil {
		fatalf("failed to load accounts from %s: %v", *accountsPath, err)
	}
	if len(accounts) == 0 {
		fatalf("no accounts found in %s", *accountsPath)
	}

	if err := os.MkdirAll(cfg.SessionDir, 0o700); err != nil {
		fatalf("failed to create session dir: %v", err)
	}

	fmt.Println("=== telegram account auth ===")
	fmt.Printf("session dir: %s\n\n", cfg.SessionDir)

	reader := bufio.NewReader(os.Stdin)
	authorized, skipped, failed := 0, 0, 0

	for _, account := range accounts {
		if *onlyLabel != "" && account.Label != *onlyLabel {
			continue
		}
		if err := account.Validate(); err != nil {
			fmt.Printf("✗ %s: %v\n", account.DisplayLabel(), err)
			failed++
			continue
		}

		path := telegram.SessionPath(cfg.SessionDir, account.Phone)
		if _, err := os.Stat(path); err == nil && !*force {
			fmt.Printf("- %s: session already exists (%s), skipping\n", account.DisplayLabel(), filepath.Base(path))
			skipped++
			continue
		}

		if err := authorize(account, path, reader); err != nil {
			fmt.Printf("✗ %s: %v\n", account.DisplayLabel(), err)
			failed++
			continue
		}
		authorized++
	}

	fmt.Printf("\ndone: %d authorized, %d skipped, %d failed\n", authorized, skipped, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// authorize runs the interactive phone login for one account and leaves the
// session in its file. gotgproto prompts for the code (and 2FA password if
// the account has one) on the terminal.
func authorize(account config.Account, sessionPath string, reader *bufio.Reader) error {
	fmt.Printf("\nauthorizing %s (%s)\n", account.DisplayLabel(), maskPhone(account.Phone))
	fmt.Print("press enter to send the login code, or type 'skip': ")
	answer, _ := reader.ReadString('\n')
	if strings.TrimSpace(answer) == "skip" {
		return fmt.Errorf("skipped by operator")
	}

	client, err := gotgproto.NewClient(
		account.APIID,
		account.APIHash,
		gotgproto.ClientTypePhone(account.Phone),
		&gotgproto.ClientOpts{
			Session:          sessionMaker.SqlSession(sqlite.Open(sessionPath)),
			DisableCopyright: true,
		},
	)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	defer client.Stop()

	fmt.Printf("✓ logged in as @%s, session saved to %s\n", client.Self.Username, sessionPath)
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 5 {
		return phone
	}
	return phone[:3] + strings.Repeat("*", len(phone)-5) + phone[len(phone)-2:]
}

func fatalf(format string, args ...interface{}) {
	fmt.Printf("error: "+format+"\n", args...)
	os.Exit(1)
}
