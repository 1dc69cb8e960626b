package moderator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dotsetgreg/dotcommunity/pkg/logger"
	"github.com/dotsetgreg/dotcommunity/pkg/models"
	"github.com/dotsetgreg/dotcommunity/pkg/state"
)

// RunningProbe reports whether a background component is live.
type RunningProbe interface {
	Running() bool
}

// Status is the runtime view served by /bot-status and the health server.
type Status struct {
	state.Snapshot
	Version          string    `json:"version,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	UptimeSeconds    int64     `json:"uptime_seconds"`
	StorageEnabled   bool      `json:"storage_enabled"`
	PrimaryJudge     string    `json:"primary_judge"`
	PrimaryEnabled   bool      `json:"primary_judge_enabled"`
	SecondaryJudge   string    `json:"secondary_judge"`
	SecondaryEnabled bool      `json:"secondary_judge_enabled"`
	SchedulerRunning bool      `json:"scheduler_running"`
	PipelineRunning  bool      `json:"pipeline_running"`
	OutreachDryRun   bool      `json:"outreach_dry_run"`
	BusDropped       uint64    `json:"bus_dropped"`
	BusPending       int       `json:"bus_pending"`
}

// SetScheduler lets Status report whether the scheduler is live.
func (m *Moderator) SetScheduler(p RunningProbe) {
	m.scheduler = p
}

func (m *Moderator) Status() Status {
	now := m.now()
	st := Status{
		Snapshot:        m.rt.Snapshot(now),
		Version:         m.Version,
		StartedAt:       m.startedAt,
		UptimeSeconds:   int64(now.Sub(m.startedAt).Seconds()),
		StorageEnabled:  m.store.Enabled(),
		PipelineRunning: m.Running(),
		OutreachDryRun:  m.cfg.Outreach.DryRun,
	}
	if m.primaryGen != nil {
		st.PrimaryJudge = m.primaryGen.Name()
		st.PrimaryEnabled = m.primaryGen.Enabled()
	}
	if m.secondaryGen != nil {
		st.SecondaryJudge = m.secondaryGen.Name()
		st.SecondaryEnabled = m.secondaryGen.Enabled()
	}
	if m.scheduler != nil {
		st.SchedulerRunning = m.scheduler.Running()
	}
	if m.bus != nil {
		st.BusDropped = m.bus.Dropped()
		st.BusPending = m.bus.Pending()
	}
	return st
}

// StatusReport renders Status as the plain text reply of /bot-status.
func (m *Moderator) StatusReport() string {
	st := m.Status()
	loc := m.rt.Location()

	var b strings.Builder
	b.WriteString("Bot status\n")
	fmt.Fprintf(&b, "- Bot enabled: %t\n", st.Enabled)
	fmt.Fprintf(&b, "- Storage: %s\n", enabledWord(st.StorageEnabled, "disabled"))
	fmt.Fprintf(&b, "- Primary judge (%s): %s\n", orNA(st.PrimaryJudge), enabledWord(st.PrimaryEnabled, "fallback"))
	fmt.Fprintf(&b, "- Secondary judge (%s): %s\n", orNA(st.SecondaryJudge), enabledWord(st.SecondaryEnabled, "fallback"))
	fmt.Fprintf(&b, "- Scheduler running: %t\n", st.SchedulerRunning)
	fmt.Fprintf(&b, "- Next topic run: %s\n", formatTime(st.NextTopicAt, loc))
	fmt.Fprintf(&b, "- Next inactive run: %s\n", formatTime(st.NextInactiveAt, loc))
	fmt.Fprintf(&b, "- Inactive DM dry-run: %t\n", st.OutreachDryRun)
	fmt.Fprintf(&b, "- Messages seen: %d\n", st.MessagesSeen)
	fmt.Fprintf(&b, "- Primary flagged: %d\n", st.PrimaryFlagged)
	fmt.Fprintf(&b, "- Member profiles updated: %d\n", st.ProfilesUpdated)
	fmt.Fprintf(&b, "- Interventions today: %d\n", st.InterventionsToday)
	fmt.Fprintf(&b, "- Topics today: %d\n", st.TopicsToday)
	fmt.Fprintf(&b, "- Skipped: %d\n", st.Skipped)
	fmt.Fprintf(&b, "- Last message at: %s\n", formatTime(st.LastMessageAt, loc))
	fmt.Fprintf(&b, "- Last action at: %s\n", formatTime(st.LastActionAt, loc))
	fmt.Fprintf(&b, "- Uptime: %ds", st.UptimeSeconds)
	return b.String()
}

// SetEnabled flips the pause flag and persists it. The runtime flag changes
// even when the write fails.
func (m *Moderator) SetEnabled(ctx context.Context, enabled bool) error {
	m.rt.SetEnabled(enabled)
	logger.InfoCF("moderator", "Bot enabled changed", map[string]any{"enabled": enabled})
	if err := m.store.SaveConfig(ctx, models.BotSettings{BotEnabled: enabled}); err != nil {
		logger.ErrorCF("moderator", "Persist bot state failed", map[string]any{"error": err.Error()})
		return fmt.Errorf("persist bot state: %w", err)
	}
	return nil
}

func enabledWord(on bool, off string) string {
	if on {
		return "enabled"
	}
	return off
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.In(loc).Format(time.RFC3339)
}
