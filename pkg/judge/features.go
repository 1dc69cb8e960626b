package judge

import (
	"time"

	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

// NewMemberWindow is how long after joining a member counts as new.
const NewMemberWindow = 7 * 24 * time.Hour

type TimeOfDay string

const (
	Morning TimeOfDay = "morning"
	Daytime TimeOfDay = "daytime"
	Evening TimeOfDay = "evening"
	Night   TimeOfDay = "night"
)

// TimeOfDayAt buckets a local time: 5-11 morning, 11-17 daytime, 17-22
// evening, otherwise night.
func TimeOfDayAt(t time.Time) TimeOfDay {
	switch h := t.Hour(); {
	case h >= 5 && h < 11:
		return Morning
	case h >= 11 && h < 17:
		return Daytime
	case h >= 17 && h < 22:
		return Evening
	default:
		return Night
	}
}

// IsNewMember reports whether joinedAt falls within NewMemberWindow of now.
// An unknown join time is not new.
func IsNewMember(joinedAt, now time.Time) bool {
	if joinedAt.IsZero() {
		return false
	}
	return now.Sub(joinedAt) <= NewMemberWindow
}

// BuildFeatures assembles the primary request for a live message.
func BuildFeatures(ev models.MessageEvent, channelType models.ChannelType, now time.Time, recentActivity int, inQuiet bool) Features {
	hours := 0.0
	if !ev.Timestamp.IsZero() && now.After(ev.Timestamp) {
		hours = now.Sub(ev.Timestamp).Hours()
	}
	return Features{
		MessageContent:        ev.Content,
		ChannelType:           channelType,
		HoursSincePost:        hours,
		HasReply:              false, // nothing can have answered a live message yet
		HasReaction:           ev.HasReactions(),
		IsBotMentioned:        ev.MentionsBot,
		AuthorIsNew:           IsNewMember(ev.AuthorJoinedAt, now),
		RecentChannelActivity: recentActivity,
		InQuietHours:          inQuiet,
	}
}
