package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/dotsetgreg/dotcommunity/pkg/bus"
	"github.com/dotsetgreg/dotcommunity/pkg/config"
	"github.com/dotsetgreg/dotcommunity/pkg/logger"
	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

const (
	sendTimeout = 10 * time.Second
	// Discord caps a message at 2000 characters.
	messageRuneLimit = 1900

	intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent
)

type DiscordChannel struct {
	*BaseChannel
	session    *discordgo.Session
	config     config.DiscordConfig
	controller Controller
}

func NewDiscordChannel(cfg config.DiscordConfig, mb *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = intents

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", mb, cfg.GuildID),
		session:     session,
		config:      cfg,
	}, nil
}

// SetController wires the admin slash commands. Without a controller the
// commands are not registered.
func (c *DiscordChannel) SetController(ctrl Controller) {
	c.controller = ctrl
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.AddHandler(c.handleMessage)
	c.session.AddHandler(c.handleMemberAdd)
	c.session.AddHandler(c.handleInteraction)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	c.setRunning(true)

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})

	if c.controller != nil {
		if err := c.registerCommands(ctx, botUser.ID); err != nil {
			logger.WarnCF("discord", "Slash command registration failed", map[string]any{"error": err.Error()})
		}
	}
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	return nil
}

// Send posts content to a channel and returns the id of the first message.
// Long content is split across several messages.
func (c *DiscordChannel) Send(ctx context.Context, channelID, content string) (string, error) {
	if !c.IsRunning() {
		return "", ErrNotRunning
	}
	if channelID == "" {
		return "", fmt.Errorf("channel ID is empty")
	}

	var firstID string
	for _, chunk := range splitMessage(content, messageRuneLimit) {
		id, err := c.sendComplex(ctx, channelID, &discordgo.MessageSend{Content: chunk})
		if err != nil {
			return firstID, err
		}
		if firstID == "" {
			firstID = id
		}
	}
	return firstID, nil
}

// Reply posts content as a reply to replyToID.
func (c *DiscordChannel) Reply(ctx context.Context, channelID, replyToID, content string) (string, error) {
	if !c.IsRunning() {
		return "", ErrNotRunning
	}
	failIfMissing := false
	return c.sendComplex(ctx, channelID, &discordgo.MessageSend{
		Content: content,
		Reference: &discordgo.MessageReference{
			MessageID:       replyToID,
			ChannelID:       channelID,
			FailIfNotExists: &failIfMissing,
		},
	})
}

func (c *DiscordChannel) React(ctx context.Context, channelID, messageID, emoji string) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := c.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(sendCtx)); err != nil {
		return fmt.Errorf("failed to add reaction: %w", err)
	}
	return nil
}

// SendDM opens a private channel with the member and sends content.
func (c *DiscordChannel) SendDM(ctx context.Context, memberID, content string) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	dm, err := c.session.UserChannelCreate(memberID, discordgo.WithContext(sendCtx))
	if err != nil {
		return classifyDMError(err)
	}
	if _, err := c.session.ChannelMessageSend(dm.ID, content, discordgo.WithContext(sendCtx)); err != nil {
		return classifyDMError(err)
	}
	return nil
}

// MemberExists reports whether memberID is still in the guild. Lookup errors
// count as absent.
func (c *DiscordChannel) MemberExists(ctx context.Context, memberID string) bool {
	guildID := c.resolveGuild()
	if guildID == "" {
		return false
	}
	if m, err := c.session.State.Member(guildID, memberID); err == nil && m != nil {
		return true
	}
	lookupCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	m, err := c.session.GuildMember(guildID, memberID, discordgo.WithContext(lookupCtx))
	return err == nil && m != nil
}

func (c *DiscordChannel) resolveGuild() string {
	if c.config.GuildID != "" {
		return c.config.GuildID
	}
	if c.session.State != nil && len(c.session.State.Guilds) > 0 {
		return c.session.State.Guilds[0].ID
	}
	return ""
}

func (c *DiscordChannel) sendComplex(ctx context.Context, channelID string, data *discordgo.MessageSend) (string, error) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	msg, err := c.session.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(sendCtx))
	if err != nil {
		return "", fmt.Errorf("failed to send discord message: %w", err)
	}
	return msg.ID, nil
}

func classifyDMError(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeCannotSendMessagesToThisUser {
			return fmt.Errorf("%w: %v", ErrCannotDM, err)
		}
		if restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %v", ErrCannotDM, err)
		}
	}
	return fmt.Errorf("failed to send direct message: %w", err)
}

// splitMessage cuts content into chunks of at most limit runes, preferring
// the last newline in each chunk.
func splitMessage(content string, limit int) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	var chunks []string
	for utf8.RuneCountInString(content) > limit {
		runes := []rune(content)
		cut := limit
		if idx := lastNewline(runes[:limit]); idx > limit/2 {
			cut = idx
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[:cut])))
		content = strings.TrimSpace(string(runes[cut:]))
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}

func lastNewline(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil {
		return
	}
	botID := ""
	if s.State != nil && s.State.User != nil {
		botID = s.State.User.ID
	}
	ev, ok := toMessageEvent(m.Message, botID, c.channelName(m.ChannelID))
	if !ok {
		return
	}
	logger.DebugCF("discord", "Received message", map[string]any{
		"message_id": ev.ID,
		"channel_id": ev.ChannelID,
		"author_id":  ev.AuthorID,
	})
	c.HandleMessage(ev)
}

func (c *DiscordChannel) handleMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m == nil || m.Member == nil || m.User == nil || m.User.Bot {
		return
	}
	c.HandleJoin(models.MemberJoinEvent{
		GuildID:     m.GuildID,
		MemberID:    m.User.ID,
		DisplayName: memberDisplayName(m.Member, m.User),
		JoinedAt:    m.JoinedAt,
	})
}

func (c *DiscordChannel) channelName(channelID string) string {
	if ch, err := c.session.State.Channel(channelID); err == nil && ch != nil {
		return ch.Name
	}
	if ch, err := c.session.Channel(channelID); err == nil && ch != nil {
		return ch.Name
	}
	return ""
}

// toMessageEvent converts a gateway message. Messages without an author and
// messages written by bots, including this one, are rejected.
func toMessageEvent(m *discordgo.Message, botID, channelName string) (models.MessageEvent, bool) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == botID {
		return models.MessageEvent{}, false
	}
	ev := models.MessageEvent{
		ID:          m.ID,
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		ChannelName: channelName,
		AuthorID:    m.Author.ID,
		AuthorName:  memberDisplayName(m.Member, m.Author),
		Content:     m.Content,
		Timestamp:   m.Timestamp,
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if m.Member != nil {
		ev.AuthorJoinedAt = m.Member.JoinedAt
		ev.AuthorRoles = append([]string(nil), m.Member.Roles...)
	}
	if m.MessageReference != nil {
		ev.ReplyToID = m.MessageReference.MessageID
	}
	for _, r := range m.Reactions {
		if r == nil || r.Emoji == nil || r.Count <= 0 {
			continue
		}
		if ev.Reactions == nil {
			ev.Reactions = map[string]int{}
		}
		ev.Reactions[r.Emoji.Name] += r.Count
	}
	for _, u := range m.Mentions {
		if u != nil && botID != "" && u.ID == botID {
			ev.MentionsBot = true
			break
		}
	}
	return ev, true
}

func memberDisplayName(member *discordgo.Member, user *discordgo.User) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if user != nil {
		return user.DisplayName()
	}
	return ""
}
