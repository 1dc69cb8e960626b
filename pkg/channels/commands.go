package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/dotsetgreg/dotcommunity/pkg/logger"
	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

const (
	CommandStatus = "bot-status"
	CommandPause  = "bot-pause"
	CommandResume = "bot-resume"
	CommandNudges = "bot-nudges"

	nudgeModeOption = "mode"

	adminPermissions = discordgo.PermissionAdministrator | discordgo.PermissionManageGuild
)

func adminCommands() []*discordgo.ApplicationCommand {
	perms := int64(adminPermissions)
	return []*discordgo.ApplicationCommand{
		{Name: CommandStatus, Description: "Show the community bot's runtime status", DefaultMemberPermissions: &perms},
		{Name: CommandPause, Description: "Pause interventions and scheduled posts", DefaultMemberPermissions: &perms},
		{Name: CommandResume, Description: "Resume interventions and scheduled posts", DefaultMemberPermissions: &perms},
	}
}

// memberCommands are open to everyone in the guild.
func memberCommands() []*discordgo.ApplicationCommand {
	choice := func(name string, mode models.NudgeMode) *discordgo.ApplicationCommandOptionChoice {
		return &discordgo.ApplicationCommandOptionChoice{Name: name, Value: string(mode)}
	}
	return []*discordgo.ApplicationCommand{{
		Name:        CommandNudges,
		Description: "Choose whether the bot may reply to your posts",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        nudgeModeOption,
			Description: "on, off, or mute/unmute this channel",
			Required:    true,
			Choices: []*discordgo.ApplicationCommandOptionChoice{
				choice("on", models.NudgesOn),
				choice("off", models.NudgesOff),
				choice("mute this channel", models.NudgesMute),
				choice("unmute this channel", models.NudgesUnmute),
			},
		}},
	}}
}

func (c *DiscordChannel) registerCommands(ctx context.Context, appID string) error {
	cmds := append(adminCommands(), memberCommands()...)
	created, err := c.session.ApplicationCommandBulkOverwrite(appID, c.config.GuildID, cmds, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("register slash commands: %w", err)
	}
	logger.InfoCF("discord", "Slash commands registered", map[string]any{"count": len(created)})
	return nil
}

// hasAdmin reports whether a permission set may run the admin commands.
func hasAdmin(perms int64) bool {
	return perms&discordgo.PermissionAdministrator != 0 || perms&discordgo.PermissionManageGuild != 0
}

// commandRequest is the part of an interaction the commands read.
type commandRequest struct {
	Name      string
	Perms     int64
	MemberID  string
	ChannelID string
	Options   map[string]string
}

// runCommand executes a slash command and returns the reply text.
func runCommand(ctx context.Context, ctrl Controller, req commandRequest) string {
	if req.Name == CommandNudges {
		return runNudges(ctx, ctrl, req)
	}
	if !hasAdmin(req.Perms) {
		return "管理者のみ実行できます。"
	}
	switch req.Name {
	case CommandStatus:
		return ctrl.StatusReport()
	case CommandPause:
		if err := ctrl.SetEnabled(ctx, false); err != nil {
			return "一時停止の保存に失敗しました: " + err.Error()
		}
		return "Botを一時停止しました。"
	case CommandResume:
		if err := ctrl.SetEnabled(ctx, true); err != nil {
			return "再開の保存に失敗しました: " + err.Error()
		}
		return "Botを再開しました。"
	default:
		return "不明なコマンドです。"
	}
}

func runNudges(ctx context.Context, ctrl Controller, req commandRequest) string {
	if req.MemberID == "" {
		return "メンバー情報を取得できませんでした。"
	}
	mode := models.NudgeMode(req.Options[nudgeModeOption])
	if err := ctrl.SetNudges(ctx, req.MemberID, req.ChannelID, mode); err != nil {
		if errors.Is(err, models.ErrUnknownNudgeMode) {
			return "不明な設定です。"
		}
		return "設定の保存に失敗しました: " + err.Error()
	}
	switch mode {
	case models.NudgesOn:
		return "Botからの返信を受け取る設定にしました。"
	case models.NudgesOff:
		return "Botからの返信を止めました。"
	case models.NudgesMute:
		return "このチャンネルではBotから返信しません。"
	default:
		return "このチャンネルでのミュートを解除しました。"
	}
}

func (c *DiscordChannel) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if c.controller == nil || i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if !c.InGuild(i.GuildID) || i.Member == nil {
		return
	}
	data := i.ApplicationCommandData()
	name := data.Name
	userID := ""
	if i.Member.User != nil {
		userID = i.Member.User.ID
	}
	opts := make(map[string]string, len(data.Options))
	for _, o := range data.Options {
		if o.Type == discordgo.ApplicationCommandOptionString {
			opts[o.Name] = o.StringValue()
		}
	}
	reply := runCommand(context.Background(), c.controller, commandRequest{
		Name:      name,
		Perms:     i.Member.Permissions,
		MemberID:  userID,
		ChannelID: i.ChannelID,
		Options:   opts,
	})
	logger.InfoCF("discord", "Slash command handled", map[string]any{"command": name, "user_id": userID})
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: reply,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		logger.ErrorCF("discord", "Failed to respond to command", map[string]any{"command": name, "error": err.Error()})
	}
}
