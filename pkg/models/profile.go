package models

import "time"

type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
)

type CommunicationStyle string

const (
	StyleLurker        CommunicationStyle = "lurker"
	StyleQuestionHeavy CommunicationStyle = "question_heavy"
	StyleReactionOnly  CommunicationStyle = "reaction_only"
	StyleShareHeavy    CommunicationStyle = "share_heavy"
)

// MemberStats accumulates per-member activity. It only grows.
type MemberStats struct {
	TotalPosts    int            `json:"total_posts"`
	ChannelCounts map[string]int `json:"channel_counts"`
	HourCounts    [24]int        `json:"hour_counts"`
	TotalLength   int            `json:"total_length"`
	FirstSeenAt   time.Time      `json:"first_seen_at"`
	LastActiveAt  time.Time      `json:"last_active_at"`
}

func (s MemberStats) AveragePostLength() float64 {
	if s.TotalPosts == 0 {
		return 0
	}
	return float64(s.TotalLength) / float64(s.TotalPosts)
}

// MemberProfile is the derived, persisted view of a member.
type MemberProfile struct {
	MemberID      string                   `json:"member_id"`
	DisplayName   string                   `json:"display_name"`
	Roles         []string                 `json:"roles,omitempty"`
	Stats         ProfileStats             `json:"stats"`
	Interests     ProfileInterest          `json:"interests"`
	Context       ProfileContext           `json:"context"`
	Relationships ProfileRelation          `json:"relationships"`
	// Outreach is only written by outreach bookkeeping so that profile
	// rebuilds merge without resetting it.
	Outreach      *OutreachState           `json:"outreach,omitempty"`
	Preferences   *InterventionPreferences `json:"preferences,omitempty"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

type ProfileStats struct {
	TotalPosts     int     `json:"total_posts"`
	AvgPostLength  float64 `json:"avg_post_length"`
	PostFrequency  float64 `json:"post_frequency"`
	MostActiveHour int     `json:"most_active_hour"`
}

type ProfileInterest struct {
	Topics     []string           `json:"topics"`
	SkillLevel SkillLevel         `json:"skill_level"`
	Style      CommunicationStyle `json:"style"`
}

type ProfileContext struct {
	RecentSummary  string    `json:"recent_summary"`
	LastActiveAt   time.Time `json:"last_active_at"`
	LastActiveAtMS int64     `json:"last_active_at_ms"`
}

type ProfileRelation struct {
	ActiveChannels []string `json:"active_channels"`
}

type OutreachState struct {
	LastOutreachAt *time.Time `json:"last_outreach_at,omitempty"`
	OutreachCount  int        `json:"outreach_count"`
}
