package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state", "bot.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func memberProfile(id string, lastActive time.Time) models.MemberProfile {
	return models.MemberProfile{
		MemberID:    id,
		DisplayName: "user-" + id,
		Stats:       models.ProfileStats{TotalPosts: 3},
		Interests:   models.ProfileInterest{Topics: []string{"API"}},
		Context: models.ProfileContext{
			LastActiveAt:   lastActive,
			LastActiveAtMS: lastActive.UnixMilli(),
		},
	}
}

func TestOpen_EmptyPathIsDisabled(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	assert.False(t, s.Enabled())
	require.NoError(t, s.SaveMessage(context.Background(), models.MessageEvent{ID: "1"}))
	_, ok, err := s.LoadConfig(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_ReopenKeepsConfig(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bot.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveConfig(ctx, models.BotSettings{BotEnabled: false}))
	require.NoError(t, s.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()
	cfg, ok, err := s2.LoadConfig(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, cfg.BotEnabled)
}

func TestSQLiteStore_ProfileRebuildKeepsOutreach(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveMemberProfile(ctx, memberProfile("u1", now.Add(-20*24*time.Hour))))
	require.NoError(t, s.UpdateMemberOutreach(ctx, "u1", now))
	require.NoError(t, s.UpdateMemberOutreach(ctx, "u1", now.Add(time.Hour)))

	rebuilt := memberProfile("u1", now.Add(-19*24*time.Hour))
	rebuilt.Stats.TotalPosts = 4
	require.NoError(t, s.SaveMemberProfile(ctx, rebuilt))

	var got models.MemberProfile
	ok, err := s.get(ctx, CollMembers, "u1", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, got.Stats.TotalPosts)
	require.NotNil(t, got.Outreach)
	assert.Equal(t, 2, got.Outreach.OutreachCount)
	require.NotNil(t, got.Outreach.LastOutreachAt)
	assert.True(t, got.Outreach.LastOutreachAt.Equal(now.Add(time.Hour)))
}

func TestSQLiteStore_UpdateOutreachForUnknownMember(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateMemberOutreach(ctx, "ghost", at))

	var got models.MemberProfile
	ok, err := s.get(ctx, CollMembers, "ghost", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, got.Outreach)
	assert.Equal(t, 1, got.Outreach.OutreachCount)
}

func TestSQLiteStore_ListInactiveMembers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveMemberProfile(ctx, memberProfile("old", now.Add(-30*24*time.Hour))))
	require.NoError(t, s.SaveMemberProfile(ctx, memberProfile("older", now.Add(-60*24*time.Hour))))
	require.NoError(t, s.SaveMemberProfile(ctx, memberProfile("fresh", now.Add(-2*24*time.Hour))))
	require.NoError(t, s.SaveMemberProfile(ctx, models.MemberProfile{MemberID: "never"}))

	got, err := s.ListInactiveMembers(ctx, 14, now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "older", got[0].MemberID)
	assert.Equal(t, "old", got[1].MemberID)
	assert.Equal(t, []string{"API"}, got[0].Interests.Topics)
}

func TestFilterInactive(t *testing.T) {
	members := []models.MemberProfile{
		{MemberID: "a", Context: models.ProfileContext{LastActiveAtMS: 100}},
		{MemberID: "b", Context: models.ProfileContext{LastActiveAtMS: 300}},
		{MemberID: "c"},
	}
	got := filterInactive(members, 200)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].MemberID)
}

func TestSQLiteStore_Topics(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	posted := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	for i, ch := range []string{"c1", "c2", "c1"} {
		hour := posted.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.SaveTopicPost(ctx, models.TopicRecord{
			ID:        "t" + string(rune('1'+i)),
			ChannelID: ch,
			Content:   "topic " + string(rune('A'+i)),
			DateKey:   hour.Format("2006-01-02"),
			HourKey:   hour.Format("2006-01-02-15"),
			PostedAt:  hour,
		}))
	}

	n, err := s.CountTopicsForDate(ctx, "2026-05-04")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	has, err := s.HasTopicForChannelHour(ctx, "c1", "2026-05-04-09")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = s.HasTopicForChannelHour(ctx, "c2", "2026-05-04-09")
	require.NoError(t, err)
	assert.False(t, has)
	has, err = s.HasTopicForChannelDate(ctx, "c2", "2026-05-04")
	require.NoError(t, err)
	assert.True(t, has)

	recent, err := s.ListRecentTopics(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "topic B", recent[0].Content)
	assert.Equal(t, "topic C", recent[1].Content)
}

func TestSQLiteStore_MessagePatchAndDecision(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	at := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveMessage(ctx, models.MessageEvent{ID: "m1", ChannelID: "c1", Content: "hello", Timestamp: at}))
	require.NoError(t, s.PatchMessageAction(ctx, "m1", "intervention", at))
	require.NoError(t, s.SavePrimaryDecision(ctx, "m1", map[string]any{"message_content": "hello"}, models.PrimaryDecision{Reason: "r", Priority: 1}))

	var msg map[string]any
	ok, err := s.get(ctx, CollMessages, "m1", &msg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", msg["content"])
	assert.Equal(t, "intervention", msg["bot_action"])

	var dec map[string]any
	ok, err = s.get(ctx, CollDecisions, "m1", &dec)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r", dec["decision"].(map[string]any)["reason"])
}

func TestSQLiteStore_Preferences(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveMemberProfile(ctx, memberProfile("u1", time.Now())))
	require.NoError(t, s.UpdateMemberPreferences(ctx, "u1", models.InterventionPreferences{MutedChannelIDs: []string{"c1"}}))
	require.NoError(t, s.UpdateMemberPreferences(ctx, "u1", models.InterventionPreferences{OptOut: true}))

	_, found, err := s.LoadMemberPreferences(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, found)

	prefs, found, err := s.LoadMemberPreferences(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, prefs.OptOut)

	// A profile rebuild must not drop the stored preferences.
	require.NoError(t, s.SaveMemberProfile(ctx, memberProfile("u1", time.Now())))
	prefs, found, err = s.LoadMemberPreferences(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, prefs.OptOut)

	var got models.MemberProfile
	_, err = s.get(ctx, CollMembers, "u1", &got)
	require.NoError(t, err)
	require.NotNil(t, got.Preferences)
	assert.True(t, got.Preferences.OptOut)
	assert.Empty(t, got.Preferences.MutedChannelIDs)
	assert.Equal(t, "user-u1", got.DisplayName)
}
