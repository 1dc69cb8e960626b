// Package moderator runs the per-message pipeline: observe, profile, triage,
// gate, respond and record. It also owns the status and pause surface.
package moderator

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dotsetgreg/dotcommunity/pkg/bus"
	"github.com/dotsetgreg/dotcommunity/pkg/config"
	"github.com/dotsetgreg/dotcommunity/pkg/content"
	"github.com/dotsetgreg/dotcommunity/pkg/executor"
	"github.com/dotsetgreg/dotcommunity/pkg/judge"
	"github.com/dotsetgreg/dotcommunity/pkg/logger"
	"github.com/dotsetgreg/dotcommunity/pkg/models"
	"github.com/dotsetgreg/dotcommunity/pkg/policy"
	"github.com/dotsetgreg/dotcommunity/pkg/profile"
	"github.com/dotsetgreg/dotcommunity/pkg/state"
	"github.com/dotsetgreg/dotcommunity/pkg/store"
)

// ReasonOptedOut is recorded when a member asked not to be nudged.
const ReasonOptedOut policy.ReasonCode = "member_opt_out"

// Transport is everything the moderator sends through the chat adapter.
type Transport interface {
	executor.Transport
	Send(ctx context.Context, channelID, content string) (string, error)
}

// Judge is the provider surface shared by both judges and the composers.
type Judge interface {
	judge.Generator
	GenerateText(ctx context.Context, system, user string) (string, error)
}

type Deps struct {
	Config    *config.Config
	Runtime   *state.Runtime
	Store     store.Store
	Bus       *bus.MessageBus
	Primary   Judge
	Secondary Judge
	Transport Transport
	Now       func() time.Time
}

type Moderator struct {
	cfg       *config.Config
	rt        *state.Runtime
	store     store.Store
	bus       *bus.MessageBus
	transport Transport
	now       func() time.Time

	classifier judge.ChannelClassifier
	profiles   *profile.Aggregator
	primary    *judge.Primary
	secondary  *judge.Secondary
	limiter    *policy.Limiter
	executor   *executor.Executor
	welcome    *content.WelcomeComposer
	quiet      policy.QuietHours

	primaryGen   Judge
	secondaryGen Judge
	scheduler    RunningProbe
	startedAt    time.Time
	running      atomic.Bool

	// Version is reported by Status.
	Version string

	preferences *lru.Cache[string, models.InterventionPreferences]
}

// preferenceCacheSize bounds the members whose nudge preferences are kept
// in memory. Evicted members are read from the store again.
const preferenceCacheSize = 4096

func New(d Deps) *Moderator {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	st := d.Store
	if st == nil {
		st = store.Disabled{}
	}

	m := &Moderator{
		cfg:          d.Config,
		rt:           d.Runtime,
		store:        st,
		bus:          d.Bus,
		transport:    d.Transport,
		now:          now,
		classifier:   judge.NewKeywordClassifier(),
		profiles:     profile.NewAggregator(),
		primary:      judge.NewPrimary(d.Primary),
		secondary:    judge.NewSecondary(d.Secondary),
		limiter:      policy.NewLimiter(d.Runtime, d.Config.Bot.DailyInterventionLimit, now),
		executor:     executor.New(d.Transport),
		welcome:      content.NewWelcomeComposer(d.Secondary, d.Runtime.Location()),
		primaryGen:   d.Primary,
		secondaryGen: d.Secondary,
		startedAt:    now(),
		quiet: policy.QuietHours{
			Start:    d.Config.Bot.QuietHoursStart,
			End:      d.Config.Bot.QuietHoursEnd,
			Location: d.Runtime.Location(),
		},
	}
	m.preferences, _ = lru.New[string, models.InterventionPreferences](preferenceCacheSize)
	m.primary.OnFallback = func() { providerFallbacks.WithLabelValues("primary").Inc() }
	m.secondary.OnGate = func(outcome string) {
		qualityGateOutcomes.WithLabelValues(outcome).Inc()
		if outcome == judge.GateFallback {
			providerFallbacks.WithLabelValues("secondary").Inc()
		}
	}
	return m
}

// Restore applies the persisted pause flag, when one exists.
func (m *Moderator) Restore(ctx context.Context) {
	settings, ok, err := m.store.LoadConfig(ctx)
	if err != nil {
		logger.ErrorCF("moderator", "Load persisted config failed", map[string]any{"error": err.Error()})
		return
	}
	if !ok {
		return
	}
	m.rt.SetEnabled(settings.BotEnabled)
	logger.InfoCF("moderator", "Restored bot state", map[string]any{"enabled": settings.BotEnabled})
}

// Run consumes the bus until ctx is cancelled or the bus closes. Events are
// handled one at a time in arrival order.
func (m *Moderator) Run(ctx context.Context) error {
	m.running.Store(true)
	defer m.running.Store(false)

	for {
		ev, ok := m.bus.Consume(ctx)
		if !ok {
			return nil
		}
		switch ev.Kind {
		case bus.KindMessage:
			if ev.Message != nil {
				m.HandleMessage(ctx, *ev.Message)
			}
		case bus.KindMemberJoin:
			if ev.Join != nil {
				m.HandleJoin(ctx, *ev.Join)
			}
		default:
			logger.WarnCF("moderator", "Unknown event kind", map[string]any{"kind": ev.Kind, "event_id": ev.ID})
		}
	}
}

func (m *Moderator) Running() bool {
	return m.running.Load()
}

// HandleMessage runs the full pipeline for one message. It never fails;
// every problem is logged and the message is recorded as far as possible.
func (m *Moderator) HandleMessage(ctx context.Context, ev models.MessageEvent) {
	start := time.Now()
	defer func() { pipelineDuration.Observe(time.Since(start).Seconds()) }()
	messagesProcessed.Inc()

	now := m.now()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}
	obs := m.rt.ObserveMessage(ev, profile.MaxRecentPosts)
	if err := m.store.SaveMessage(ctx, ev); err != nil {
		m.storeError("save message", ev.ID, err)
	}

	prof := m.profiles.Build(profile.Input{
		MemberID:    ev.AuthorID,
		DisplayName: ev.AuthorName,
		Roles:       ev.AuthorRoles,
		JoinedAt:    ev.AuthorJoinedAt,
		Stats:       obs.Stats,
		RecentPosts: obs.RecentPosts,
		Now:         now,
	})
	if err := m.store.SaveMemberProfile(ctx, prof); err != nil {
		m.storeError("save member profile", ev.ID, err)
	}
	m.rt.IncProfilesUpdated()

	channelType := m.classifier.Classify(ev.ChannelName)
	inQuiet := m.quiet.Contains(now)
	features := judge.BuildFeatures(ev, channelType, now, obs.RecentActivity, inQuiet)
	primary := m.primary.Judge(ctx, features)
	if err := m.store.SavePrimaryDecision(ctx, ev.ID, features, primary); err != nil {
		m.storeError("save primary decision", ev.ID, err)
	}
	primaryDecisions.WithLabelValues(fmt.Sprint(primary.NeedsIntervention)).Inc()

	logger.InfoCF("moderator", "Primary decision", map[string]any{
		"message_id":         ev.ID,
		"channel_id":         ev.ChannelID,
		"needs_intervention": primary.NeedsIntervention,
		"priority":           primary.Priority,
		"reason":             primary.Reason,
		"provider":           primary.Provider,
	})
	if !primary.NeedsIntervention {
		return
	}
	m.rt.IncPrimaryFlagged()

	if allowed, reason := m.canIntervene(ctx, ev, inQuiet); !allowed {
		m.skip(ctx, ev, reason, now)
		return
	}

	input := m.secondaryInput(ev, channelType, obs, prof, primary, now)
	decision := m.secondary.Judge(ctx, input)
	outcome := m.executor.Execute(ctx, ev, decision)
	interventionOutcomes.WithLabelValues(string(outcome.Type), string(outcome.Status)).Inc()

	summary := state.ActionSummary{
		Type:      string(outcome.Type),
		ChannelID: ev.ChannelID,
		Content:   decision.Content,
		At:        now,
	}
	if outcome.Counts() {
		count := m.rt.RecordIntervention(now, summary)
		logger.InfoCF("moderator", "Intervention executed", map[string]any{
			"message_id": ev.ID,
			"type":       outcome.Type,
			"status":     outcome.Status,
			"today":      count,
		})
	}

	action := models.BotAction{
		ID:        ev.ID + "-" + shortID(),
		Type:      models.ActionIntervention,
		Status:    string(outcome.Status),
		ChannelID: ev.ChannelID,
		MessageID: ev.ID,
		MemberID:  ev.AuthorID,
		Ref:       outcome.Ref,
		Reason:    decision.Reasoning,
		Detail: map[string]any{
			"intervention_type":  decision.InterventionType,
			"content":            decision.Content,
			"confidence":         decision.Confidence,
			"silence_confidence": decision.SilenceConfidence,
			"quality_score":      decision.QualityScore,
			"provider":           decision.Provider,
			"attempt":            decision.Attempt,
			"error":              outcome.Error,
		},
		At: now,
	}
	if err := m.store.SaveBotAction(ctx, action); err != nil {
		m.storeError("save bot action", ev.ID, err)
	}
	if err := m.store.PatchMessageAction(ctx, ev.ID, string(outcome.Type), now); err != nil {
		m.storeError("patch message", ev.ID, err)
	}
}

func (m *Moderator) canIntervene(ctx context.Context, ev models.MessageEvent, inQuiet bool) (bool, policy.ReasonCode) {
	allowed, reason := m.limiter.CanIntervene(inQuiet)
	if !allowed {
		return false, reason
	}
	if m.memberPreferences(ctx, ev.AuthorID).Blocks(ev.ChannelID) {
		return false, ReasonOptedOut
	}
	return true, policy.ReasonOK
}

func (m *Moderator) skip(ctx context.Context, ev models.MessageEvent, reason policy.ReasonCode, now time.Time) {
	m.rt.IncSkipped()
	interventionsSkipped.WithLabelValues(string(reason)).Inc()
	logger.InfoCF("moderator", "Intervention skipped", map[string]any{
		"message_id": ev.ID,
		"reason":     reason,
	})
	if err := m.store.SaveBotAction(ctx, models.BotAction{
		ID:        ev.ID + "-" + shortID(),
		Type:      models.ActionSkipped,
		Status:    string(reason),
		ChannelID: ev.ChannelID,
		MessageID: ev.ID,
		MemberID:  ev.AuthorID,
		Reason:    string(reason),
		At:        now,
	}); err != nil {
		m.storeError("save skipped action", ev.ID, err)
	}
}

func (m *Moderator) secondaryInput(ev models.MessageEvent, channelType models.ChannelType, obs state.Observation, prof models.MemberProfile, primary models.PrimaryDecision, now time.Time) judge.SecondaryInput {
	loc := m.rt.Location()

	// The last history entry is the message being judged.
	history := obs.History
	if n := len(history); n > 0 {
		history = history[:n-1]
	}
	lines := make([]judge.HistoryLine, 0, len(history))
	for _, h := range history {
		lines = append(lines, judge.HistoryLine{
			Author:  h.AuthorName,
			Content: h.Content,
			At:      h.Timestamp.In(loc).Format(time.RFC3339),
		})
	}

	recent := m.rt.RecentActions()
	actions := make([]judge.RecentAction, 0, len(recent))
	for _, a := range recent {
		actions = append(actions, judge.RecentAction{
			Type:      a.Type,
			ChannelID: a.ChannelID,
			Content:   a.Content,
			At:        a.At.In(loc).Format(time.RFC3339),
		})
	}

	return judge.SecondaryInput{
		MessageID:      ev.ID,
		MessageContent: ev.Content,
		ChannelName:    ev.ChannelName,
		ChannelType:    channelType,
		History:        lines,
		Author: judge.AuthorContext{
			MemberID:      prof.MemberID,
			DisplayName:   prof.DisplayName,
			Roles:         prof.Roles,
			TotalPosts:    prof.Stats.TotalPosts,
			AvgPostLength: prof.Stats.AvgPostLength,
			Interests:     prof.Interests.Topics,
			SkillLevel:    string(prof.Interests.SkillLevel),
			Style:         string(prof.Interests.Style),
			RecentSummary: prof.Context.RecentSummary,
			IsNew:         judge.IsNewMember(ev.AuthorJoinedAt, now),
		},
		TimeOfDay:     judge.TimeOfDayAt(now.In(loc)),
		PrimaryReason: primary.Reason,
		RecentActions: actions,
	}
}

// HandleJoin posts the welcome message for a new member.
func (m *Moderator) HandleJoin(ctx context.Context, ev models.MemberJoinEvent) {
	channelID := strings.TrimSpace(m.cfg.Discord.WelcomeChannelID)
	if channelID == "" || m.transport == nil {
		return
	}
	now := m.now()
	if !m.rt.Enabled() || m.quiet.Contains(now) {
		logger.DebugCF("moderator", "Welcome skipped", map[string]any{"member_id": ev.MemberID})
		return
	}

	name := ev.DisplayName
	if name == "" {
		name = "user-" + ev.MemberID
	}
	text := m.welcome.Compose(ctx, name, now)

	action := models.BotAction{
		ID:        "welcome-" + ev.MemberID + "-" + shortID(),
		Type:      models.ActionWelcome,
		Status:    models.StatusPosted,
		ChannelID: channelID,
		MemberID:  ev.MemberID,
		Detail:    map[string]any{"content": text},
		At:        now,
	}
	id, err := m.transport.Send(ctx, channelID, text)
	if err != nil {
		logger.ErrorCF("moderator", "Welcome message failed", map[string]any{"member_id": ev.MemberID, "error": err.Error()})
		action.Status = models.StatusFailed
		action.Reason = err.Error()
	} else {
		action.MessageID = id
		action.Ref = id
		m.rt.RecordAction(now, state.ActionSummary{Type: models.ActionWelcome, ChannelID: channelID, Content: text, At: now})
	}
	welcomesPosted.WithLabelValues(action.Status).Inc()
	if err := m.store.SaveBotAction(ctx, action); err != nil {
		m.storeError("save welcome action", ev.MemberID, err)
	}
}

// SetPreferences persists a member's nudge preferences and applies them to
// later messages.
func (m *Moderator) SetPreferences(ctx context.Context, memberID string, prefs models.InterventionPreferences) error {
	m.preferences.Add(memberID, prefs)
	if err := m.store.UpdateMemberPreferences(ctx, memberID, prefs); err != nil {
		return fmt.Errorf("persist preferences: %w", err)
	}
	return nil
}

// SetNudges applies a member's /bot-nudges choice made in channelID.
func (m *Moderator) SetNudges(ctx context.Context, memberID, channelID string, mode models.NudgeMode) error {
	next, err := m.memberPreferences(ctx, memberID).Apply(mode, channelID)
	if err != nil {
		return err
	}
	logger.InfoCF("moderator", "Member nudge preferences changed", map[string]any{
		"member_id": memberID,
		"mode":      string(mode),
	})
	return m.SetPreferences(ctx, memberID, next)
}

// memberPreferences reads through the cache to the store. Members with no
// stored preferences are cached as defaults.
func (m *Moderator) memberPreferences(ctx context.Context, memberID string) models.InterventionPreferences {
	if p, ok := m.preferences.Get(memberID); ok {
		return p
	}
	p, _, err := m.store.LoadMemberPreferences(ctx, memberID)
	if err != nil {
		logger.WarnCF("moderator", "Could not load member preferences", map[string]any{
			"member_id": memberID,
			"error":     err.Error(),
		})
		return models.InterventionPreferences{}
	}
	m.preferences.Add(memberID, p)
	return p
}

// ObserveSchedulerRun records one scheduler tick.
func (m *Moderator) ObserveSchedulerRun(job string, took time.Duration) {
	schedulerRuns.WithLabelValues(job).Inc()
	schedulerDuration.WithLabelValues(job).Observe(took.Seconds())
}

func (m *Moderator) storeError(op, ref string, err error) {
	logger.ErrorCF("moderator", "Store write failed", map[string]any{
		"op":    op,
		"ref":   ref,
		"error": err.Error(),
	})
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
