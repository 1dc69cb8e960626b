package judge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

// Models answer with loosely typed JSON: "3" for 3, "true" for true, a bare
// string where a list was asked for. The flex types below absorb that.

type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case bool:
		*f = flexBool(val)
	case float64:
		*f = val != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "1", "y":
			*f = true
		default:
			*f = false
		}
	default:
		*f = false
	}
	return nil
}

// flexInt keeps Valid=false when the value could not be read as an integer.
type flexInt struct {
	Value int
	Valid bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexInt{}
	switch val := v.(type) {
	case float64:
		f.set(val)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err == nil {
			f.set(n)
		}
	}
	return nil
}

// set saturates to the int32 range so huge model answers keep their sign.
func (f *flexInt) set(val float64) {
	if math.IsNaN(val) {
		return
	}
	val = math.Max(math.MinInt32, math.Min(math.MaxInt32, val))
	f.Value, f.Valid = int(val), true
}

type flexFloat struct {
	Value float64
	Valid bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat{}
	switch val := v.(type) {
	case float64:
		f.Value, f.Valid = val, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
			f.Value, f.Valid = n, true
		}
	}
	return nil
}

type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case nil:
		*f = ""
	case string:
		*f = flexString(val)
	case float64:
		*f = flexString(strconv.FormatFloat(val, 'f', -1, 64))
	default:
		*f = flexString(fmt.Sprint(val))
	}
	return nil
}

// flexStrings accepts a list of strings or numbers. Anything else decodes to
// an empty list. Blank entries are dropped.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	*f = nil
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		return nil
	}
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case float64:
			s = fmt.Sprintf("%.0f", val)
		case nil:
			continue
		default:
			s = fmt.Sprint(val)
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*f = out
	return nil
}

// Features is the primary judge request, also persisted next to the decision.
type Features struct {
	MessageContent        string             `json:"message_content"`
	ChannelType           models.ChannelType `json:"channel_type"`
	HoursSincePost        float64            `json:"hours_since_post"`
	HasReply              bool               `json:"has_reply"`
	HasReaction           bool               `json:"has_reaction"`
	IsBotMentioned        bool               `json:"is_bot_mentioned"`
	AuthorIsNew           bool               `json:"author_is_new"`
	RecentChannelActivity int                `json:"recent_channel_activity"`
	InQuietHours          bool               `json:"in_quiet_hours"`
}

type primaryResponse struct {
	NeedsIntervention flexBool   `json:"needs_intervention"`
	Reason            flexString `json:"reason"`
	Priority          flexInt    `json:"priority"`
}

// AuthorContext is the slice of the member profile the secondary judge sees.
type AuthorContext struct {
	MemberID      string   `json:"member_id"`
	DisplayName   string   `json:"display_name"`
	Roles         []string `json:"roles,omitempty"`
	TotalPosts    int      `json:"total_posts"`
	AvgPostLength float64  `json:"avg_post_length"`
	Interests     []string `json:"interests,omitempty"`
	SkillLevel    string   `json:"skill_level,omitempty"`
	Style         string   `json:"style,omitempty"`
	RecentSummary string   `json:"recent_summary,omitempty"`
	IsNew         bool     `json:"is_new"`
}

type HistoryLine struct {
	Author  string `json:"author"`
	Content string `json:"content"`
	At      string `json:"at"`
}

type RecentAction struct {
	Type      string `json:"type"`
	ChannelID string `json:"channel_id,omitempty"`
	Content   string `json:"content,omitempty"`
	At        string `json:"at"`
}

// SecondaryInput is the secondary judge request.
type SecondaryInput struct {
	MessageID      string             `json:"message_id"`
	MessageContent string             `json:"message_content"`
	ChannelName    string             `json:"channel_name,omitempty"`
	ChannelType    models.ChannelType `json:"channel_type"`
	History        []HistoryLine      `json:"channel_history"`
	Author         AuthorContext      `json:"author"`
	TimeOfDay      TimeOfDay          `json:"time_of_day"`
	PrimaryReason  string             `json:"primary_reason,omitempty"`
	RecentActions  []RecentAction     `json:"recent_bot_actions"`
}

type secondaryResponse struct {
	InterventionType  flexString  `json:"intervention_type"`
	Tone              flexString  `json:"tone"`
	Content           flexString  `json:"content"`
	MentionUsers      flexStrings `json:"mention_users"`
	ReactionEmoji     flexString  `json:"reaction_emoji"`
	Confidence        flexFloat   `json:"confidence"`
	SilenceConfidence flexFloat   `json:"silence_confidence"`
	Reasoning         flexString  `json:"reasoning"`
}

type qualityRequest struct {
	MessageContent   string                  `json:"message_content"`
	ChannelType      models.ChannelType      `json:"channel_type"`
	InterventionType models.InterventionType `json:"intervention_type"`
	Draft            string                  `json:"draft"`
}

type qualityResponse struct {
	Score             flexFloat  `json:"score"`
	NeedsRegeneration flexBool   `json:"needs_regeneration"`
	Reason            flexString `json:"reason"`
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func clampPriority(p flexInt) int {
	if !p.Valid {
		return 1
	}
	return max(1, min(5, p.Value))
}
