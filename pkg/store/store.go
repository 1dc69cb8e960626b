// Package store persists bot records as JSON documents grouped into
// collections.
package store

import (
	"context"
	"time"

	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

// Collection names.
const (
	CollMessages    = "messages"
	CollDecisions   = "decision_logs"
	CollBotActions  = "bot_actions"
	CollMembers     = "members"
	CollTopicPosts  = "topic_posts"
	CollOutreachLog = "outreach_logs"
	CollConfig      = "config"

	configDocID = "bot"
)

// Store is the persistence surface used by the pipeline and the scheduler.
// Every method is safe to call on a disabled store.
type Store interface {
	Enabled() bool
	Close() error

	SaveMessage(ctx context.Context, ev models.MessageEvent) error
	SavePrimaryDecision(ctx context.Context, messageID string, input any, d models.PrimaryDecision) error
	SaveBotAction(ctx context.Context, a models.BotAction) error
	// SaveMemberProfile merges into the stored document; fields absent from
	// p, such as a nil Outreach, keep their stored value.
	SaveMemberProfile(ctx context.Context, p models.MemberProfile) error
	SaveTopicPost(ctx context.Context, t models.TopicRecord) error
	SaveOutreachLog(ctx context.Context, l models.OutreachLog) error
	PatchMessageAction(ctx context.Context, messageID, actionType string, at time.Time) error

	LoadConfig(ctx context.Context) (models.BotSettings, bool, error)
	SaveConfig(ctx context.Context, s models.BotSettings) error

	// ListRecentTopics returns up to limit topics, oldest first.
	ListRecentTopics(ctx context.Context, limit int) ([]models.TopicRecord, error)
	CountTopicsForDate(ctx context.Context, dateKey string) (int, error)
	HasTopicForChannelDate(ctx context.Context, channelID, dateKey string) (bool, error)
	HasTopicForChannelHour(ctx context.Context, channelID, hourKey string) (bool, error)

	// ListInactiveMembers returns members last active before now minus
	// thresholdDays. Members with no recorded activity are excluded.
	ListInactiveMembers(ctx context.Context, thresholdDays int, now time.Time) ([]models.MemberProfile, error)
	UpdateMemberOutreach(ctx context.Context, memberID string, at time.Time) error
	UpdateMemberPreferences(ctx context.Context, memberID string, prefs models.InterventionPreferences) error
	// LoadMemberPreferences reports false when the member never set any.
	LoadMemberPreferences(ctx context.Context, memberID string) (models.InterventionPreferences, bool, error)
}

// Disabled is the no-op store used when no database path is configured.
type Disabled struct{}

var _ Store = Disabled{}

func (Disabled) Enabled() bool { return false }
func (Disabled) Close() error  { return nil }

func (Disabled) SaveMessage(context.Context, models.MessageEvent) error { return nil }
func (Disabled) SavePrimaryDecision(context.Context, string, any, models.PrimaryDecision) error {
	return nil
}
func (Disabled) SaveBotAction(context.Context, models.BotAction) error         { return nil }
func (Disabled) SaveMemberProfile(context.Context, models.MemberProfile) error { return nil }
func (Disabled) SaveTopicPost(context.Context, models.TopicRecord) error       { return nil }
func (Disabled) SaveOutreachLog(context.Context, models.OutreachLog) error     { return nil }
func (Disabled) PatchMessageAction(context.Context, string, string, time.Time) error {
	return nil
}

func (Disabled) LoadConfig(context.Context) (models.BotSettings, bool, error) {
	return models.BotSettings{}, false, nil
}
func (Disabled) SaveConfig(context.Context, models.BotSettings) error { return nil }

func (Disabled) ListRecentTopics(context.Context, int) ([]models.TopicRecord, error) {
	return nil, nil
}
func (Disabled) CountTopicsForDate(context.Context, string) (int, error) { return 0, nil }
func (Disabled) HasTopicForChannelDate(context.Context, string, string) (bool, error) {
	return false, nil
}
func (Disabled) HasTopicForChannelHour(context.Context, string, string) (bool, error) {
	return false, nil
}

func (Disabled) ListInactiveMembers(context.Context, int, time.Time) ([]models.MemberProfile, error) {
	return nil, nil
}
func (Disabled) UpdateMemberOutreach(context.Context, string, time.Time) error { return nil }
func (Disabled) UpdateMemberPreferences(context.Context, string, models.InterventionPreferences) error {
	return nil
}
func (Disabled) LoadMemberPreferences(context.Context, string) (models.InterventionPreferences, bool, error) {
	return models.InterventionPreferences{}, false, nil
}

// Open returns a SQLite store for path, or Disabled when path is empty.
func Open(path string) (Store, error) {
	if path == "" {
		return Disabled{}, nil
	}
	return NewSQLiteStore(path)
}
