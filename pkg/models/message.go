// Package models holds the data shared between the pipeline, the scheduler
// and the document store.
package models

import "time"

// ChannelType is the coarse purpose of a channel, inferred from its name.
type ChannelType string

const (
	ChannelQuestion ChannelType = "question"
	ChannelShare    ChannelType = "share"
	ChannelIntro    ChannelType = "intro"
	ChannelAnnounce ChannelType = "announce"
	ChannelChat     ChannelType = "chat"
)

// MessageEvent is an immutable snapshot of one incoming chat message.
type MessageEvent struct {
	ID             string         `json:"message_id"`
	GuildID        string         `json:"guild_id,omitempty"`
	ChannelID      string         `json:"channel_id"`
	ChannelName    string         `json:"channel_name"`
	AuthorID       string         `json:"author_id"`
	AuthorName     string         `json:"author_name"`
	AuthorIsBot    bool           `json:"author_is_bot,omitempty"`
	AuthorJoinedAt time.Time      `json:"author_joined_at,omitempty"`
	AuthorRoles    []string       `json:"author_roles,omitempty"`
	Content        string         `json:"content"`
	Timestamp      time.Time      `json:"created_at"`
	ReplyToID      string         `json:"reply_to,omitempty"`
	Reactions      map[string]int `json:"reactions,omitempty"`
	MentionsBot    bool           `json:"mentions_bot,omitempty"`
}

func (m MessageEvent) HasReactions() bool {
	for _, n := range m.Reactions {
		if n > 0 {
			return true
		}
	}
	return false
}

// MemberJoinEvent is published when a member joins the guild.
type MemberJoinEvent struct {
	GuildID     string    `json:"guild_id"`
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

// HistoryEntry is one line of a channel's conversational context.
type HistoryEntry struct {
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}
