package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dotsetgreg/dotcommunity/pkg/channels"
	"github.com/dotsetgreg/dotcommunity/pkg/config"
	"github.com/dotsetgreg/dotcommunity/pkg/content"
	"github.com/dotsetgreg/dotcommunity/pkg/logger"
	"github.com/dotsetgreg/dotcommunity/pkg/models"
	"github.com/dotsetgreg/dotcommunity/pkg/profile"
	"github.com/dotsetgreg/dotcommunity/pkg/state"
	"github.com/dotsetgreg/dotcommunity/pkg/store"
)

const (
	OutreachCooldown       = 30 * 24 * time.Hour
	recentTopicsForSummary = 5
	defaultOutreachSummary = "Notion活用"
)

// DirectMessenger reaches members privately.
type DirectMessenger interface {
	MemberExists(ctx context.Context, memberID string) bool
	SendDM(ctx context.Context, memberID, content string) error
}

// OutreachEngine sends the weekly check-in DM to inactive members.
type OutreachEngine struct {
	cfg      *config.Config
	rt       *state.Runtime
	store    store.Store
	composer *content.OutreachComposer
	dm       DirectMessenger
}

func NewOutreachEngine(cfg *config.Config, rt *state.Runtime, st store.Store, composer *content.OutreachComposer, dm DirectMessenger) *OutreachEngine {
	if st == nil {
		st = store.Disabled{}
	}
	if composer == nil {
		composer = content.NewOutreachComposer(nil)
	}
	return &OutreachEngine{cfg: cfg, rt: rt, store: st, composer: composer, dm: dm}
}

// Tick runs the outreach check at now. It does work at most once per local
// day, and only during the configured weekday and hour.
func (e *OutreachEngine) Tick(ctx context.Context, now time.Time) {
	loc := e.rt.Location()
	e.rt.SetNextInactiveAt(NextOutreachRun(e.cfg.Outreach, now, loc))

	if !e.rt.Enabled() {
		return
	}
	local := now.In(loc)
	if local.Weekday() != e.cfg.Outreach.CheckWeekday.Weekday() || local.Hour() != e.cfg.Outreach.CheckHour {
		return
	}
	runKey := local.Format(state.DateLayout)
	if e.rt.InactiveRunKey() == runKey {
		return
	}

	members, err := e.store.ListInactiveMembers(ctx, e.cfg.Outreach.ThresholdDays, now)
	if err != nil {
		logger.ErrorCF("scheduler", "List inactive members failed", map[string]any{"error": err.Error()})
		return
	}
	if len(members) == 0 {
		e.rt.SetInactiveRunKey(runKey)
		return
	}
	if e.dm == nil {
		logger.WarnC("scheduler", "No direct messenger; inactive outreach skipped")
		return
	}

	summary := e.recentSummary(ctx)
	sent := 0
	for _, m := range members {
		if m.MemberID == "" || !e.dm.MemberExists(ctx, m.MemberID) {
			continue
		}
		if outreachedRecently(m, now) {
			continue
		}
		if e.reach(ctx, m, runKey, summary, now) == models.OutreachSent {
			sent++
		}
	}
	e.rt.SetInactiveRunKey(runKey)
	logger.InfoCF("scheduler", "Inactive outreach finished", map[string]any{
		"candidates": len(members),
		"sent":       sent,
		"dry_run":    e.cfg.Outreach.DryRun,
	})
}

func (e *OutreachEngine) reach(ctx context.Context, m models.MemberProfile, runKey, summary string, now time.Time) models.OutreachStatus {
	name := m.DisplayName
	if name == "" {
		name = "user-" + m.MemberID
	}
	text := e.composer.Compose(ctx, name, m.Interests.Topics, summary)

	status := models.OutreachDryRun
	actionType := models.ActionOutreachDryRun
	var sendErr string
	if !e.cfg.Outreach.DryRun {
		err := e.dm.SendDM(ctx, m.MemberID, text)
		switch {
		case err == nil:
			status = models.OutreachSent
			actionType = models.ActionOutreachDM
			if err := e.store.UpdateMemberOutreach(ctx, m.MemberID, now); err != nil {
				logger.ErrorCF("scheduler", "Update outreach bookkeeping failed", map[string]any{"member_id": m.MemberID, "error": err.Error()})
			}
		case errors.Is(err, channels.ErrCannotDM):
			status = models.OutreachCannotDM
			actionType = models.ActionOutreachFailed
			sendErr = "cannot_dm"
		default:
			status = models.OutreachFailed
			actionType = models.ActionOutreachFailed
			sendErr = "send_failed"
			logger.WarnCF("scheduler", "Outreach DM failed", map[string]any{"member_id": m.MemberID, "error": err.Error()})
		}
	}

	logID := runKey + "-" + m.MemberID
	if err := e.store.SaveOutreachLog(ctx, models.OutreachLog{
		ID:       logID,
		MemberID: m.MemberID,
		Status:   status,
		Content:  text,
		RunKey:   runKey,
		Error:    sendErr,
		At:       now,
	}); err != nil {
		logger.ErrorCF("scheduler", "Save outreach log failed", map[string]any{"log_id": logID, "error": err.Error()})
	}
	if err := e.store.SaveBotAction(ctx, models.BotAction{
		ID:        logID + "-" + shortID(),
		Type:      actionType,
		Status:    string(status),
		ChannelID: "dm",
		MemberID:  m.MemberID,
		Ref:       m.MemberID,
		Reason:    "inactive_outreach",
		Detail:    map[string]any{"content": text, "dry_run": e.cfg.Outreach.DryRun},
		At:        now,
	}); err != nil {
		logger.ErrorCF("scheduler", "Save bot action failed", map[string]any{"log_id": logID, "error": err.Error()})
	}
	e.rt.RecordAction(now, state.ActionSummary{Type: actionType, ChannelID: "dm", Content: text, At: now})
	return status
}

func (e *OutreachEngine) recentSummary(ctx context.Context) string {
	records, err := e.store.ListRecentTopics(ctx, recentTopicsForSummary)
	if err != nil {
		logger.ErrorCF("scheduler", "List recent topics failed", map[string]any{"error": err.Error()})
	}
	parts := make([]string, 0, len(records))
	for _, r := range records {
		if r.Content != "" {
			parts = append(parts, r.Content)
		}
	}
	summary := profile.TruncateRunes(strings.Join(parts, " / "), summaryRunes)
	if summary == "" {
		return defaultOutreachSummary
	}
	return summary
}

func outreachedRecently(m models.MemberProfile, now time.Time) bool {
	if m.Outreach == nil || m.Outreach.LastOutreachAt == nil {
		return false
	}
	return now.Sub(*m.Outreach.LastOutreachAt) < OutreachCooldown
}
