package moderator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/dotcommunity/pkg/bus"
	"github.com/dotsetgreg/dotcommunity/pkg/config"
	"github.com/dotsetgreg/dotcommunity/pkg/models"
	"github.com/dotsetgreg/dotcommunity/pkg/state"
	"github.com/dotsetgreg/dotcommunity/pkg/store"
)

var jst = time.FixedZone("JST", 9*3600)

const (
	goodDraft = `{"intervention_type":"reply","content":"「テンプレ」素敵な工夫ですね","confidence":0.8}`
	goodScore = `{"score":0.85,"needs_regeneration":false}`
)

// scriptedJudge answers GenerateJSON calls in order.
type scriptedJudge struct {
	mu      sync.Mutex
	enabled bool
	replies []string
	calls   int
}

func (j *scriptedJudge) Enabled() bool { return j.enabled }
func (j *scriptedJudge) Name() string  { return "test:model" }
func (j *scriptedJudge) GenerateJSON(context.Context, string, any) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	i := j.calls
	j.calls++
	if i >= len(j.replies) {
		return "", errors.New("script exhausted")
	}
	return j.replies[i], nil
}
func (j *scriptedJudge) GenerateText(context.Context, string, string) (string, error) {
	return "", errors.New("no text")
}

type fakeTransport struct {
	mu      sync.Mutex
	replies []string
	sends   []string
	sendErr error
}

func (f *fakeTransport) Reply(_ context.Context, _, _, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, content)
	return "reply-1", nil
}

func (f *fakeTransport) React(context.Context, string, string, string) error { return nil }

func (f *fakeTransport) Send(_ context.Context, _, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sends = append(f.sends, content)
	return "sent-1", nil
}

type memStore struct {
	store.Disabled
	mu        sync.Mutex
	messages  []models.MessageEvent
	decisions map[string]models.PrimaryDecision
	actions   []models.BotAction
	profiles  map[string]models.MemberProfile
	patched   map[string]string
	prefs     map[string]models.InterventionPreferences
	prefLoads int
	settings  *models.BotSettings
}

func newMemStore() *memStore {
	return &memStore{
		decisions: map[string]models.PrimaryDecision{},
		profiles:  map[string]models.MemberProfile{},
		patched:   map[string]string{},
		prefs:     map[string]models.InterventionPreferences{},
	}
}

func (m *memStore) Enabled() bool { return true }

func (m *memStore) SaveMessage(_ context.Context, ev models.MessageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, ev)
	return nil
}

func (m *memStore) SavePrimaryDecision(_ context.Context, id string, _ any, d models.PrimaryDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[id] = d
	return nil
}

func (m *memStore) SaveBotAction(_ context.Context, a models.BotAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, a)
	return nil
}

func (m *memStore) SaveMemberProfile(_ context.Context, p models.MemberProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.MemberID] = p
	return nil
}

func (m *memStore) PatchMessageAction(_ context.Context, id, actionType string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patched[id] = actionType
	return nil
}

func (m *memStore) LoadConfig(context.Context) (models.BotSettings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return models.BotSettings{}, false, nil
	}
	return *m.settings, true, nil
}

func (m *memStore) SaveConfig(_ context.Context, s models.BotSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

func (m *memStore) UpdateMemberPreferences(_ context.Context, id string, p models.InterventionPreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[id] = p
	return nil
}

func (m *memStore) LoadMemberPreferences(_ context.Context, id string) (models.InterventionPreferences, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefLoads++
	p, ok := m.prefs[id]
	return p, ok, nil
}

func (m *memStore) actionsOfType(kind string) []models.BotAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.BotAction
	for _, a := range m.actions {
		if a.Type == kind {
			out = append(out, a)
		}
	}
	return out
}

type fixture struct {
	mod       *Moderator
	rt        *state.Runtime
	store     *memStore
	transport *fakeTransport
	secondary *scriptedJudge
	bus       *bus.MessageBus
	now       time.Time
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Discord.WelcomeChannelID = "welcome"
	if mutate != nil {
		mutate(cfg)
	}
	f := &fixture{
		rt:        state.New(jst, true),
		store:     newMemStore(),
		transport: &fakeTransport{},
		secondary: &scriptedJudge{enabled: true},
		bus:       bus.NewMessageBus(),
		now:       time.Date(2026, 5, 4, 10, 0, 0, 0, jst),
	}
	f.mod = New(Deps{
		Config:    cfg,
		Runtime:   f.rt,
		Store:     f.store,
		Bus:       f.bus,
		Primary:   &scriptedJudge{},
		Secondary: f.secondary,
		Transport: f.transport,
		Now:       func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) mention(id string) models.MessageEvent {
	return models.MessageEvent{
		ID:          id,
		ChannelID:   "c1",
		ChannelName: "質問-notion",
		AuthorID:    "u1",
		AuthorName:  "Yuki",
		Content:     "テンプレを作りました @bot",
		Timestamp:   f.now,
		MentionsBot: true,
	}
}

func TestHandleMessage_Intervenes(t *testing.T) {
	f := newFixture(t, nil)
	f.secondary.replies = []string{goodDraft, goodScore}

	f.mod.HandleMessage(context.Background(), f.mention("m1"))

	require.Len(t, f.transport.replies, 1)
	assert.Contains(t, f.transport.replies[0], "素敵な工夫")
	assert.Equal(t, 1, f.rt.InterventionsToday(f.now))

	assert.True(t, f.store.decisions["m1"].NeedsIntervention)
	assert.Contains(t, f.store.profiles, "u1")
	assert.Equal(t, string(models.InterventionReply), f.store.patched["m1"])

	actions := f.store.actionsOfType(models.ActionIntervention)
	require.Len(t, actions, 1)
	assert.Equal(t, string(models.OutcomeSent), actions[0].Status)
	assert.Equal(t, "reply-1", actions[0].Ref)

	snap := f.rt.Snapshot(f.now)
	assert.EqualValues(t, 1, snap.MessagesSeen)
	assert.EqualValues(t, 1, snap.PrimaryFlagged)
	assert.EqualValues(t, 1, snap.ProfilesUpdated)
}

func TestHandleMessage_PrimaryNegativeStops(t *testing.T) {
	f := newFixture(t, nil)
	ev := f.mention("m1")
	ev.MentionsBot = false
	ev.Content = "今日はいい天気"

	f.mod.HandleMessage(context.Background(), ev)

	assert.False(t, f.store.decisions["m1"].NeedsIntervention)
	assert.Zero(t, f.secondary.calls)
	assert.Empty(t, f.store.actions)
	assert.Len(t, f.store.messages, 1)
}

func TestHandleMessage_LimiterSkips(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*fixture)
		reason string
	}{
		{"paused", func(f *fixture) { f.rt.SetEnabled(false) }, "paused"},
		{"quiet hours", func(f *fixture) { f.now = time.Date(2026, 5, 4, 23, 30, 0, 0, jst) }, "quiet_hours"},
		{"opted out", func(f *fixture) {
			require.NoError(t, f.mod.SetPreferences(context.Background(), "u1", models.InterventionPreferences{OptOut: true}))
		}, string(ReasonOptedOut)},
		{"muted channel", func(f *fixture) {
			require.NoError(t, f.mod.SetPreferences(context.Background(), "u1", models.InterventionPreferences{MutedChannelIDs: []string{"c1"}}))
		}, string(ReasonOptedOut)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			tt.setup(f)

			f.mod.HandleMessage(context.Background(), f.mention("m1"))

			assert.Zero(t, f.secondary.calls)
			assert.Empty(t, f.transport.replies)
			skipped := f.store.actionsOfType(models.ActionSkipped)
			require.Len(t, skipped, 1)
			assert.Equal(t, tt.reason, skipped[0].Reason)
			assert.EqualValues(t, 1, f.rt.Snapshot(f.now).Skipped)
		})
	}
}

func TestHandleMessage_StoredPreferencesApply(t *testing.T) {
	f := newFixture(t, nil)
	// Persisted by an earlier process; the cache starts empty.
	f.store.prefs["u1"] = models.InterventionPreferences{OptOut: true}

	f.mod.HandleMessage(context.Background(), f.mention("m1"))
	f.mod.HandleMessage(context.Background(), f.mention("m2"))

	assert.Empty(t, f.transport.replies)
	skipped := f.store.actionsOfType(models.ActionSkipped)
	require.Len(t, skipped, 2)
	assert.Equal(t, string(ReasonOptedOut), skipped[0].Reason)
	assert.Equal(t, 1, f.store.prefLoads, "second lookup should hit the cache")
}

func TestSetNudges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	require.NoError(t, f.mod.SetNudges(ctx, "u1", "c1", models.NudgesMute))
	assert.Equal(t, []string{"c1"}, f.store.prefs["u1"].MutedChannelIDs)

	f.mod.HandleMessage(ctx, f.mention("m1"))
	require.Len(t, f.store.actionsOfType(models.ActionSkipped), 1)

	require.NoError(t, f.mod.SetNudges(ctx, "u1", "c1", models.NudgesOn))
	assert.Equal(t, models.InterventionPreferences{}, f.store.prefs["u1"])

	f.secondary.replies = []string{goodDraft, goodScore}
	f.mod.HandleMessage(ctx, f.mention("m2"))
	assert.Len(t, f.transport.replies, 1)

	err := f.mod.SetNudges(ctx, "u1", "c1", "sometimes")
	assert.ErrorIs(t, err, models.ErrUnknownNudgeMode)
}

func TestHandleMessage_NewMemberQuestion(t *testing.T) {
	f := newFixture(t, nil)
	ev := models.MessageEvent{
		ID:             "m1",
		ChannelID:      "c9",
		ChannelName:    "general",
		AuthorID:       "u2",
		AuthorName:     "Newcomer",
		AuthorJoinedAt: f.now.Add(-time.Hour),
		Content:        "Is this how I use the database feature?",
		Timestamp:      f.now,
	}

	f.mod.HandleMessage(context.Background(), ev)

	d := f.store.decisions["m1"]
	assert.True(t, d.NeedsIntervention)
	assert.Equal(t, 4, d.Priority)
	assert.Equal(t, "new member post", d.Reason)
}

func TestHandleMessage_QuietHoursObserveOnly(t *testing.T) {
	f := newFixture(t, nil)
	f.now = time.Date(2026, 5, 5, 2, 0, 0, 0, jst)
	ev := f.mention("m1")
	ev.MentionsBot = false
	ev.Content = "データベースのリレーションが分かりません？"
	ev.Timestamp = f.now

	f.mod.HandleMessage(context.Background(), ev)

	d := f.store.decisions["m1"]
	assert.False(t, d.NeedsIntervention)
	assert.Contains(t, d.Reason, "quiet hours")
	assert.Zero(t, f.secondary.calls)
	assert.Empty(t, f.store.actions)
	assert.Len(t, f.store.messages, 1)
}

func TestHandleMessage_DailyLimit(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Bot.DailyInterventionLimit = 1 })
	f.secondary.replies = []string{goodDraft, goodScore, goodDraft, goodScore}

	f.mod.HandleMessage(context.Background(), f.mention("m1"))
	f.mod.HandleMessage(context.Background(), f.mention("m2"))

	assert.Len(t, f.transport.replies, 1)
	skipped := f.store.actionsOfType(models.ActionSkipped)
	require.Len(t, skipped, 1)
	assert.Equal(t, "daily_limit", skipped[0].Reason)
	assert.Equal(t, "m2", skipped[0].MessageID)
}

func TestHandleMessage_SilentDoesNotCount(t *testing.T) {
	f := newFixture(t, nil)
	f.secondary.replies = []string{`{"intervention_type":"silent","silence_confidence":0.9}`}

	f.mod.HandleMessage(context.Background(), f.mention("m1"))

	assert.Empty(t, f.transport.replies)
	assert.Zero(t, f.rt.InterventionsToday(f.now))
	actions := f.store.actionsOfType(models.ActionIntervention)
	require.Len(t, actions, 1)
	assert.Equal(t, string(models.OutcomeSkipped), actions[0].Status)
}

func TestSecondaryInput_ExcludesCurrentMessage(t *testing.T) {
	f := newFixture(t, nil)
	first := f.mention("m0")
	first.MentionsBot = false
	first.Content = "こんにちは"
	f.mod.HandleMessage(context.Background(), first)

	ev := f.mention("m1")
	obs := f.rt.ObserveMessage(ev, 5)
	in := f.mod.secondaryInput(ev, models.ChannelQuestion, obs, models.MemberProfile{MemberID: "u1"}, models.PrimaryDecision{Reason: "bot mentioned"}, f.now)

	require.Len(t, in.History, 1)
	assert.Equal(t, "こんにちは", in.History[0].Content)
	assert.Equal(t, "bot mentioned", in.PrimaryReason)
	assert.Equal(t, "morning", string(in.TimeOfDay))
}

func TestHandleJoin(t *testing.T) {
	f := newFixture(t, nil)
	f.mod.HandleJoin(context.Background(), models.MemberJoinEvent{MemberID: "u9", DisplayName: "Hana"})

	require.Len(t, f.transport.sends, 1)
	assert.True(t, strings.HasPrefix(f.transport.sends[0], "おはようございます、Hanaさん"), f.transport.sends[0])
	welcomes := f.store.actionsOfType(models.ActionWelcome)
	require.Len(t, welcomes, 1)
	assert.Equal(t, models.StatusPosted, welcomes[0].Status)
	assert.Equal(t, "sent-1", welcomes[0].MessageID)
}

func TestHandleJoin_Gates(t *testing.T) {
	join := models.MemberJoinEvent{MemberID: "u9"}

	quiet := newFixture(t, nil)
	quiet.now = time.Date(2026, 5, 4, 2, 0, 0, 0, jst)
	quiet.mod.HandleJoin(context.Background(), join)
	assert.Empty(t, quiet.transport.sends)

	paused := newFixture(t, nil)
	paused.rt.SetEnabled(false)
	paused.mod.HandleJoin(context.Background(), join)
	assert.Empty(t, paused.transport.sends)

	unset := newFixture(t, func(c *config.Config) { c.Discord.WelcomeChannelID = "" })
	unset.mod.HandleJoin(context.Background(), join)
	assert.Empty(t, unset.transport.sends)
	assert.Empty(t, unset.store.actions)
}

func TestHandleJoin_SendFailureRecorded(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.sendErr = errors.New("missing access")
	f.mod.HandleJoin(context.Background(), models.MemberJoinEvent{MemberID: "u9"})

	welcomes := f.store.actionsOfType(models.ActionWelcome)
	require.Len(t, welcomes, 1)
	assert.Equal(t, models.StatusFailed, welcomes[0].Status)
	assert.Contains(t, welcomes[0].Reason, "missing access")
}

func TestSetEnabledAndRestore(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.mod.SetEnabled(context.Background(), false))
	assert.False(t, f.rt.Enabled())
	require.NotNil(t, f.store.settings)
	assert.False(t, f.store.settings.BotEnabled)

	again := newFixture(t, nil)
	again.store.settings = &models.BotSettings{BotEnabled: false}
	require.True(t, again.rt.Enabled())
	again.mod.Restore(context.Background())
	assert.False(t, again.rt.Enabled())
}

func TestStatusReport(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Outreach.DryRun = true })
	f.mod.Version = "v1.2.3"
	f.now = f.now.Add(90 * time.Second)

	st := f.mod.Status()
	assert.True(t, st.StorageEnabled)
	assert.False(t, st.PrimaryEnabled)
	assert.True(t, st.SecondaryEnabled)
	assert.EqualValues(t, 90, st.UptimeSeconds)
	assert.Equal(t, "v1.2.3", st.Version)

	report := f.mod.StatusReport()
	for _, want := range []string{
		"Bot enabled: true",
		"Storage: enabled",
		"Primary judge (test:model): fallback",
		"Secondary judge (test:model): enabled",
		"Next topic run: n/a",
		"Inactive DM dry-run: true",
		"Uptime: 90s",
	} {
		assert.Contains(t, report, want)
	}
}

func TestRun_DispatchesUntilClosed(t *testing.T) {
	f := newFixture(t, nil)
	f.secondary.replies = []string{goodDraft, goodScore}

	require.True(t, f.bus.Publish(bus.MessageEvent("e1", f.mention("m1"))))
	require.True(t, f.bus.Publish(bus.JoinEvent("e2", models.MemberJoinEvent{MemberID: "u9", DisplayName: "Hana"})))
	f.bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.mod.Run(ctx))

	assert.Len(t, f.transport.replies, 1)
	assert.Len(t, f.transport.sends, 1)
	assert.False(t, f.mod.Running())
}
