// Package channels adapts the chat platform to the bot: it turns gateway
// events into bus events and exposes the send-side operations the executor,
// the scheduler and the welcome flow need.
package channels

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dotsetgreg/dotcommunity/pkg/bus"
	"github.com/dotsetgreg/dotcommunity/pkg/logger"
	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

var (
	// ErrCannotDM means the member does not accept direct messages from the bot.
	ErrCannotDM   = errors.New("member cannot receive direct messages")
	ErrNotRunning = errors.New("channel not running")
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// Controller is the surface the slash commands drive.
type Controller interface {
	StatusReport() string
	SetEnabled(ctx context.Context, enabled bool) error
	SetNudges(ctx context.Context, memberID, channelID string, mode models.NudgeMode) error
}

type BaseChannel struct {
	name    string
	bus     *bus.MessageBus
	guildID string
	running atomic.Bool
}

func NewBaseChannel(name string, mb *bus.MessageBus, guildID string) *BaseChannel {
	return &BaseChannel{name: name, bus: mb, guildID: guildID}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}

// InGuild reports whether an event from guildID belongs to this bot. Direct
// messages never do. An unset guild accepts every guild.
func (c *BaseChannel) InGuild(guildID string) bool {
	if guildID == "" {
		return false
	}
	return c.guildID == "" || c.guildID == guildID
}

func (c *BaseChannel) HandleMessage(ev models.MessageEvent) {
	if !c.InGuild(ev.GuildID) || ev.AuthorIsBot {
		return
	}
	if !c.bus.Publish(bus.MessageEvent(uuid.NewString(), ev)) {
		logger.WarnCF(c.name, "Inbound message dropped", map[string]any{
			"message_id": ev.ID,
			"dropped":    c.bus.Dropped(),
		})
	}
}

func (c *BaseChannel) HandleJoin(ev models.MemberJoinEvent) {
	if !c.InGuild(ev.GuildID) {
		return
	}
	if !c.bus.Publish(bus.JoinEvent(uuid.NewString(), ev)) {
		logger.WarnCF(c.name, "Member join dropped", map[string]any{"member_id": ev.MemberID})
	}
}
