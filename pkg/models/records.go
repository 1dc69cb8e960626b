package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Bot action types recorded in the store.
const (
	ActionIntervention     = "intervention"
	ActionSkipped          = "skipped"
	ActionAtmosphereCheck  = "atmosphere_check"
	ActionTopicPost        = "topic_post"
	ActionOutreachDryRun   = "outreach_dry_run"
	ActionOutreachDM       = "outreach_dm"
	ActionOutreachFailed   = "outreach_failed"
	ActionWelcome          = "welcome"
	StatusPosted           = "posted"
	StatusFailed           = "failed"
	StatusObservedNoAction = "observed_no_action"
)

// BotAction is the generic audit record for anything the bot did or chose
// not to do.
type BotAction struct {
	ID        string         `json:"action_id"`
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	ChannelID string         `json:"channel_id,omitempty"`
	MessageID string         `json:"message_id,omitempty"`
	MemberID  string         `json:"member_id,omitempty"`
	Ref       string         `json:"action_ref,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	At        time.Time      `json:"timestamp"`
}

// TopicRecord is the persisted trace of one scheduled topic post.
type TopicRecord struct {
	ID         string         `json:"topic_id"`
	ChannelID  string         `json:"channel_id"`
	Content    string         `json:"content"`
	TopicType  string         `json:"topic_type"`
	DateKey    string         `json:"date_key"`
	HourKey    string         `json:"hour_key"`
	PostedAt   time.Time      `json:"timestamp"`
	Engagement map[string]int `json:"engagement"`
}

type OutreachStatus string

const (
	OutreachDryRun    OutreachStatus = "dry_run"
	OutreachSent      OutreachStatus = "sent"
	OutreachCannotDM  OutreachStatus = "cannot_dm"
	OutreachFailed    OutreachStatus = "failed"
	OutreachNotMember OutreachStatus = "not_member"
)

// OutreachLog is the persisted trace of one outreach attempt.
type OutreachLog struct {
	ID       string         `json:"log_id"`
	MemberID string         `json:"member_id"`
	Status   OutreachStatus `json:"status"`
	Content  string         `json:"content"`
	RunKey   string         `json:"run_key"`
	Error    string         `json:"error,omitempty"`
	At       time.Time      `json:"timestamp"`
}

// BotSettings is the small config blob persisted by the pause toggle.
type BotSettings struct {
	BotEnabled bool `json:"bot_enabled"`
}

// InterventionPreferences lets a member opt out of nudges.
type InterventionPreferences struct {
	OptOut          bool     `json:"opt_out"`
	MutedChannelIDs []string `json:"muted_channel_ids,omitempty"`
}

// NudgeMode is a member's choice from the /bot-nudges command.
type NudgeMode string

const (
	NudgesOn     NudgeMode = "on"
	NudgesOff    NudgeMode = "off"
	NudgesMute   NudgeMode = "mute-here"
	NudgesUnmute NudgeMode = "unmute-here"
)

var ErrUnknownNudgeMode = errors.New("unknown nudge mode")

// Blocks reports whether a nudge in channelID is unwanted.
func (p InterventionPreferences) Blocks(channelID string) bool {
	return p.OptOut || slices.Contains(p.MutedChannelIDs, channelID)
}

// Apply returns the preferences after mode is chosen in channelID. "on"
// clears the opt-out and every mute.
func (p InterventionPreferences) Apply(mode NudgeMode, channelID string) (InterventionPreferences, error) {
	muted := slices.Clone(p.MutedChannelIDs)
	switch mode {
	case NudgesOn:
		return InterventionPreferences{}, nil
	case NudgesOff:
		return InterventionPreferences{OptOut: true, MutedChannelIDs: muted}, nil
	case NudgesMute:
		if !slices.Contains(muted, channelID) {
			muted = append(muted, channelID)
		}
		return InterventionPreferences{OptOut: p.OptOut, MutedChannelIDs: muted}, nil
	case NudgesUnmute:
		muted = slices.DeleteFunc(muted, func(id string) bool { return id == channelID })
		if len(muted) == 0 {
			muted = nil
		}
		return InterventionPreferences{OptOut: p.OptOut, MutedChannelIDs: muted}, nil
	default:
		return p, fmt.Errorf("%w: %q", ErrUnknownNudgeMode, mode)
	}
}
