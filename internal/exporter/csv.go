// Package exporter renders harvested snapshots as CSV report files.
package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mkushnerov/tg-harvester/internal/models"
)

// Header is the fixed column schema of every exported file. The mixed
// languages are intentional: the reports are consumed by Russian-speaking
// operators and the schema is stable across tooling.
var Header = []string{
	"User_id",
	"Username",
	"Имя",
	"Фамилия",
	"Телефон",
	"Пол",
	"Премиум",
	"Verified",
	"Последняя активность (UTC)",
	"Время сбора (UTC+1)",
	"Источник группы",
	"ID группы",
	"Тип аккаунта",
}

const timestampLayout = "2006-01-02 15:04:05"

// CSV writes snapshot rows in the fixed report schema.
type CSV struct {
	replyDir string
}

// NewCSV creates an exporter that writes report files under replyDir.
func NewCSV(replyDir string) *CSV {
	return &CSV{replyDir: replyDir}
}

// Write renders rows to w, header first.
func (e *CSV) Write(w io.Writer, rows []models.UserSnapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(record(row)); err != nil {
			return fmt.Errorf("write row for user %d: %w", row.UserID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReply writes the rows of one run into a reply file named after the
// account and date range, and returns its path.
func (e *CSV) WriteReply(accountLabel string, from, to time.Time, rows []models.UserSnapshot) (string, error) {
	if err := os.MkdirAll(e.replyDir, 0o755); err != nil {
		return "", fmt.Errorf("create reply dir: %w", err)
	}

	name := fmt.Sprintf("reply_%s_%s.csv", sanitize(accountLabel), rangeSuffix(from, to))
	path := filepath.Join(e.replyDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create reply file: %w", err)
	}
	defer f.Close()

	if err := e.Write(f, rows); err != nil {
		return "", err
	}
	return path, nil
}

func record(s models.UserSnapshot) []string {
	return []string{
		strconv.FormatInt(s.UserID, 10),
		optStr(s.Username),
		optStr(s.FirstName),
		optStr(s.LastName),
		optStr(s.Phone),
		optStr(s.Gender),
		optBool(s.IsPremium),
		optBool(s.IsVerified),
		optTime(s.LastSeenAt),
		s.CollectedAt.Format(timestampLayout),
		s.SourceGroupTitle,
		strconv.FormatInt(s.SourceGroupID, 10),
		accountType(s.IsBot),
	}
}

func optStr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func optBool(v *bool) string {
	if v == nil {
		return ""
	}
	if *v {
		return "Да"
	}
	return "Нет"
}

func optTime(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(timestampLayout)
}

func accountType(isBot bool) string {
	if isBot {
		return "Бот"
	}
	return "Пользователь"
}

func rangeSuffix(from, to time.Time) string {
	if from.Equal(to) {
		return from.Format("2006-01-02")
	}
	return from.Format("2006-01-02") + "_" + to.Format("2006-01-02")
}

// sanitize keeps labels filesystem-safe.
func sanitize(label string) string {
	out := make([]rune, 0, len(label))
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
