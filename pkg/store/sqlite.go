package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dotsetgreg/dotcommunity/pkg/logger"
	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

const lastActiveExpr = `json_extract(doc_json, '$.context.last_active_at_ms')`

// SQLiteStore keeps every collection in one documents table. Documents are
// JSON; merge writes use json_patch so partial updates never clobber fields
// they do not mention.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// The pipeline and the scheduler share one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Enabled() bool { return true }

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			doc_json TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			PRIMARY KEY(collection, id)
		);`,
		`CREATE INDEX IF NOT EXISTS documents_created_idx ON documents(collection, created_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS documents_topic_hour_idx ON documents(collection, json_extract(doc_json, '$.channel_id'), json_extract(doc_json, '$.hour_key'));`,
		`CREATE INDEX IF NOT EXISTS documents_topic_date_idx ON documents(collection, json_extract(doc_json, '$.date_key'));`,
		`CREATE INDEX IF NOT EXISTS documents_member_active_idx ON documents(collection, ` + lastActiveExpr + `);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(sql string) string {
	line := strings.TrimSpace(sql)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

func nowMS() int64 { return time.Now().UnixMilli() }

// put writes one document. With merge the stored JSON is patched, otherwise
// replaced.
func (s *SQLiteStore) put(ctx context.Context, collection, id string, doc any, merge bool) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("put %s: missing id", collection)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	update := `doc_json = excluded.doc_json`
	if merge {
		update = `doc_json = json_patch(documents.doc_json, excluded.doc_json)`
	}
	ts := nowMS()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO documents(collection, id, doc_json, created_at_ms, updated_at_ms)
VALUES(?, ?, json(?), ?, ?)
ON CONFLICT(collection, id) DO UPDATE SET
	`+update+`,
	updated_at_ms = excluded.updated_at_ms`,
		collection, id, string(raw), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *SQLiteStore) get(ctx context.Context, collection, id string, out any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT doc_json FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return true, nil
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, ev models.MessageEvent) error {
	return s.put(ctx, CollMessages, ev.ID, ev, false)
}

func (s *SQLiteStore) SavePrimaryDecision(ctx context.Context, messageID string, input any, d models.PrimaryDecision) error {
	return s.put(ctx, CollDecisions, messageID, map[string]any{
		"message_id": messageID,
		"input":      input,
		"decision":   d,
	}, true)
}

func (s *SQLiteStore) SaveBotAction(ctx context.Context, a models.BotAction) error {
	return s.put(ctx, CollBotActions, a.ID, a, true)
}

func (s *SQLiteStore) SaveMemberProfile(ctx context.Context, p models.MemberProfile) error {
	return s.put(ctx, CollMembers, p.MemberID, p, true)
}

func (s *SQLiteStore) SaveTopicPost(ctx context.Context, t models.TopicRecord) error {
	return s.put(ctx, CollTopicPosts, t.ID, t, false)
}

func (s *SQLiteStore) SaveOutreachLog(ctx context.Context, l models.OutreachLog) error {
	return s.put(ctx, CollOutreachLog, l.ID, l, false)
}

func (s *SQLiteStore) PatchMessageAction(ctx context.Context, messageID, actionType string, at time.Time) error {
	return s.put(ctx, CollMessages, messageID, map[string]any{
		"bot_action":    actionType,
		"bot_action_at": at,
	}, true)
}

func (s *SQLiteStore) LoadConfig(ctx context.Context) (models.BotSettings, bool, error) {
	var cfg models.BotSettings
	ok, err := s.get(ctx, CollConfig, configDocID, &cfg)
	return cfg, ok, err
}

func (s *SQLiteStore) SaveConfig(ctx context.Context, cfg models.BotSettings) error {
	return s.put(ctx, CollConfig, configDocID, cfg, true)
}

func (s *SQLiteStore) ListRecentTopics(ctx context.Context, limit int) ([]models.TopicRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT doc_json FROM documents
WHERE collection = ?
ORDER BY created_at_ms DESC, rowid DESC
LIMIT ?`, CollTopicPosts, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent topics: %w", err)
	}
	defer rows.Close()

	var out []models.TopicRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		var t models.TopicRecord
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("decode topic: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recent topics: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) CountTopicsForDate(ctx context.Context, dateKey string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM documents
WHERE collection = ? AND json_extract(doc_json, '$.date_key') = ?`, CollTopicPosts, dateKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count topics for %s: %w", dateKey, err)
	}
	return n, nil
}

func (s *SQLiteStore) HasTopicForChannelDate(ctx context.Context, channelID, dateKey string) (bool, error) {
	return s.exists(ctx, `
SELECT EXISTS(SELECT 1 FROM documents
WHERE collection = ? AND json_extract(doc_json, '$.channel_id') = ? AND json_extract(doc_json, '$.date_key') = ?)`,
		CollTopicPosts, channelID, dateKey)
}

func (s *SQLiteStore) HasTopicForChannelHour(ctx context.Context, channelID, hourKey string) (bool, error) {
	return s.exists(ctx, `
SELECT EXISTS(SELECT 1 FROM documents
WHERE collection = ? AND json_extract(doc_json, '$.channel_id') = ? AND json_extract(doc_json, '$.hour_key') = ?)`,
		CollTopicPosts, channelID, hourKey)
}

func (s *SQLiteStore) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("exists query: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListInactiveMembers(ctx context.Context, thresholdDays int, now time.Time) ([]models.MemberProfile, error) {
	cutoff := now.Add(-time.Duration(thresholdDays) * 24 * time.Hour).UnixMilli()
	members, err := s.queryMembers(ctx, `
SELECT doc_json FROM documents
WHERE collection = ? AND `+lastActiveExpr+` > 0 AND `+lastActiveExpr+` < ?
ORDER BY `+lastActiveExpr+` ASC`, CollMembers, cutoff)
	if err == nil {
		return members, nil
	}

	logger.WarnCF("store", "Inactive member query failed, scanning members", map[string]any{"error": err.Error()})
	all, scanErr := s.queryMembers(ctx, `SELECT doc_json FROM documents WHERE collection = ?`, CollMembers)
	if scanErr != nil {
		return nil, errors.Join(err, scanErr)
	}
	return filterInactive(all, cutoff), nil
}

func filterInactive(members []models.MemberProfile, cutoffMS int64) []models.MemberProfile {
	var out []models.MemberProfile
	for _, m := range members {
		if ms := m.Context.LastActiveAtMS; ms > 0 && ms < cutoffMS {
			out = append(out, m)
		}
	}
	return out
}

func (s *SQLiteStore) queryMembers(ctx context.Context, query string, args ...any) ([]models.MemberProfile, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var out []models.MemberProfile
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		var p models.MemberProfile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode member: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) UpdateMemberOutreach(ctx context.Context, memberID string, at time.Time) error {
	stamp := at.UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
UPDATE documents SET
	doc_json = json_patch(doc_json, json_object('outreach', json_object(
		'last_outreach_at', ?,
		'outreach_count', COALESCE(json_extract(doc_json, '$.outreach.outreach_count'), 0) + 1
	))),
	updated_at_ms = ?
WHERE collection = ? AND id = ?`, stamp, nowMS(), CollMembers, memberID)
	if err != nil {
		return fmt.Errorf("update member outreach: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	atUTC := at.UTC()
	return s.put(ctx, CollMembers, memberID, models.MemberProfile{
		MemberID: memberID,
		Outreach: &models.OutreachState{LastOutreachAt: &atUTC, OutreachCount: 1},
	}, true)
}

func (s *SQLiteStore) UpdateMemberPreferences(ctx context.Context, memberID string, prefs models.InterventionPreferences) error {
	muted := prefs.MutedChannelIDs
	if muted == nil {
		muted = []string{}
	}
	// Spelled out so an empty mute list replaces the stored one.
	return s.put(ctx, CollMembers, memberID, map[string]any{
		"member_id": memberID,
		"preferences": map[string]any{
			"opt_out":           prefs.OptOut,
			"muted_channel_ids": muted,
		},
	}, true)
}

func (s *SQLiteStore) LoadMemberPreferences(ctx context.Context, memberID string) (models.InterventionPreferences, bool, error) {
	var p models.MemberProfile
	found, err := s.get(ctx, CollMembers, memberID, &p)
	if err != nil || !found || p.Preferences == nil {
		return models.InterventionPreferences{}, false, err
	}
	return *p.Preferences, true, nil
}
