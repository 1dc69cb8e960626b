package channels

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/dotcommunity/pkg/bus"
	"github.com/dotsetgreg/dotcommunity/pkg/config"
	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

func TestToMessageEvent(t *testing.T) {
	joined := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	posted := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	m := &discordgo.Message{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "c1",
		Content:   "質問です",
		Timestamp: posted,
		Author:    &discordgo.User{ID: "u1", Username: "yuki", GlobalName: "Yuki"},
		Member:    &discordgo.Member{Nick: "ゆき", JoinedAt: joined, Roles: []string{"r1"}},
		Mentions:  []*discordgo.User{{ID: "other"}, {ID: "bot"}},
		Reactions: []*discordgo.MessageReactions{
			{Count: 2, Emoji: &discordgo.Emoji{Name: "👍"}},
			{Count: 0, Emoji: &discordgo.Emoji{Name: "🎉"}},
		},
		MessageReference: &discordgo.MessageReference{MessageID: "m0"},
	}

	ev, ok := toMessageEvent(m, "bot", "質問-notion")
	require.True(t, ok)
	assert.Equal(t, "ゆき", ev.AuthorName)
	assert.Equal(t, "質問-notion", ev.ChannelName)
	assert.Equal(t, joined, ev.AuthorJoinedAt)
	assert.Equal(t, []string{"r1"}, ev.AuthorRoles)
	assert.Equal(t, "m0", ev.ReplyToID)
	assert.Equal(t, map[string]int{"👍": 2}, ev.Reactions)
	assert.True(t, ev.MentionsBot)
	assert.Equal(t, posted, ev.Timestamp)
}

func TestToMessageEvent_RejectsBots(t *testing.T) {
	_, ok := toMessageEvent(&discordgo.Message{Author: &discordgo.User{ID: "bot"}}, "bot", "")
	assert.False(t, ok, "own message")
	_, ok = toMessageEvent(&discordgo.Message{Author: &discordgo.User{ID: "x", Bot: true}}, "bot", "")
	assert.False(t, ok, "other bot")
	_, ok = toMessageEvent(&discordgo.Message{}, "bot", "")
	assert.False(t, ok, "no author")
}

func TestMemberDisplayName(t *testing.T) {
	assert.Equal(t, "nick", memberDisplayName(&discordgo.Member{Nick: "nick"}, &discordgo.User{Username: "u"}))
	assert.Equal(t, "Global", memberDisplayName(&discordgo.Member{}, &discordgo.User{Username: "u", GlobalName: "Global"}))
	assert.Equal(t, "u", memberDisplayName(nil, &discordgo.User{Username: "u"}))
	assert.Equal(t, "", memberDisplayName(nil, nil))
}

func TestClassifyDMError(t *testing.T) {
	cannot := &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusBadRequest, Status: "400 Bad Request"},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeCannotSendMessagesToThisUser},
	}
	assert.ErrorIs(t, classifyDMError(cannot), ErrCannotDM)

	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden, Status: "403 Forbidden"}}
	assert.ErrorIs(t, classifyDMError(forbidden), ErrCannotDM)

	other := classifyDMError(errors.New("connection reset"))
	assert.NotErrorIs(t, other, ErrCannotDM)
	assert.Contains(t, other.Error(), "connection reset")
}

func TestSplitMessage(t *testing.T) {
	assert.Nil(t, splitMessage("   ", 10))
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	long := strings.Repeat("あ", 8) + "\n" + strings.Repeat("い", 8)
	assert.Equal(t, []string{strings.Repeat("あ", 8), strings.Repeat("い", 8)}, splitMessage(long, 10))

	hard := strings.Repeat("x", 25)
	chunks := splitMessage(hard, 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, 10, len(chunks[0]))
	assert.Equal(t, 5, len(chunks[2]))
}

type fakeController struct {
	enabled *bool
	err     error
	nudges  []string
}

func (f *fakeController) SetNudges(_ context.Context, memberID, channelID string, mode models.NudgeMode) error {
	if f.err != nil {
		return f.err
	}
	if _, err := (models.InterventionPreferences{}).Apply(mode, channelID); err != nil {
		return err
	}
	f.nudges = append(f.nudges, memberID+"/"+channelID+"/"+string(mode))
	return nil
}

func (f *fakeController) StatusReport() string { return "status ok" }
func (f *fakeController) SetEnabled(_ context.Context, enabled bool) error {
	if f.err != nil {
		return f.err
	}
	f.enabled = &enabled
	return nil
}

func TestRunCommand(t *testing.T) {
	ctx := context.Background()

	ctrl := &fakeController{}
	assert.Contains(t, runCommand(ctx, ctrl, commandRequest{Name: CommandPause, Perms: discordgo.PermissionSendMessages}), "管理者")
	assert.Nil(t, ctrl.enabled)

	assert.Equal(t, "status ok", runCommand(ctx, ctrl, commandRequest{Name: CommandStatus, Perms: discordgo.PermissionManageGuild}))

	assert.Equal(t, "Botを一時停止しました。", runCommand(ctx, ctrl, commandRequest{Name: CommandPause, Perms: discordgo.PermissionAdministrator}))
	require.NotNil(t, ctrl.enabled)
	assert.False(t, *ctrl.enabled)

	runCommand(ctx, ctrl, commandRequest{Name: CommandResume, Perms: discordgo.PermissionAdministrator})
	assert.True(t, *ctrl.enabled)

	failing := &fakeController{err: errors.New("disk full")}
	assert.Contains(t, runCommand(ctx, failing, commandRequest{Name: CommandResume, Perms: discordgo.PermissionAdministrator}), "disk full")
	assert.Equal(t, "不明なコマンドです。", runCommand(ctx, ctrl, commandRequest{Name: "nope", Perms: discordgo.PermissionAdministrator}))
}

func TestAdminCommands_RequirePermissions(t *testing.T) {
	for _, cmd := range adminCommands() {
		require.NotNil(t, cmd.DefaultMemberPermissions, cmd.Name)
		assert.True(t, hasAdmin(*cmd.DefaultMemberPermissions))
	}
	for _, cmd := range memberCommands() {
		assert.Nil(t, cmd.DefaultMemberPermissions, cmd.Name)
	}
}

func TestRunCommand_Nudges(t *testing.T) {
	ctx := context.Background()
	ctrl := &fakeController{}
	req := func(mode string) commandRequest {
		return commandRequest{
			Name:      CommandNudges,
			Perms:     discordgo.PermissionSendMessages,
			MemberID:  "u1",
			ChannelID: "c1",
			Options:   map[string]string{nudgeModeOption: mode},
		}
	}

	assert.Equal(t, "Botからの返信を止めました。", runCommand(ctx, ctrl, req("off")))
	assert.Equal(t, "このチャンネルではBotから返信しません。", runCommand(ctx, ctrl, req("mute-here")))
	assert.Equal(t, "不明な設定です。", runCommand(ctx, ctrl, req("sometimes")))
	assert.Equal(t, []string{"u1/c1/off", "u1/c1/mute-here"}, ctrl.nudges)

	anonymous := req("on")
	anonymous.MemberID = ""
	assert.Contains(t, runCommand(ctx, ctrl, anonymous), "メンバー情報")

	failing := &fakeController{err: errors.New("disk full")}
	assert.Contains(t, runCommand(ctx, failing, req("on")), "disk full")
}

func TestBaseChannel_GuildFilter(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()
	c := NewBaseChannel("discord", mb, "g1")

	c.HandleMessage(models.MessageEvent{ID: "dm"})
	c.HandleMessage(models.MessageEvent{ID: "other", GuildID: "g2"})
	c.HandleMessage(models.MessageEvent{ID: "bot", GuildID: "g1", AuthorIsBot: true})
	c.HandleMessage(models.MessageEvent{ID: "ok", GuildID: "g1"})
	c.HandleJoin(models.MemberJoinEvent{GuildID: "g1", MemberID: "u1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, ok := mb.Consume(ctx)
	require.True(t, ok)
	assert.Equal(t, "ok", ev.Message.ID)
	ev, ok = mb.Consume(ctx)
	require.True(t, ok)
	assert.Equal(t, bus.KindMemberJoin, ev.Kind)
	assert.Equal(t, 0, mb.Pending())

	assert.True(t, NewBaseChannel("d", mb, "").InGuild("any"))
}

func TestDiscordChannel_NotRunning(t *testing.T) {
	c, err := NewDiscordChannel(config.DiscordConfig{Token: "token"}, bus.NewMessageBus())
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "c1", "hi")
	assert.ErrorIs(t, err, ErrNotRunning)
	_, err = c.Reply(context.Background(), "c1", "m1", "hi")
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.ErrorIs(t, c.React(context.Background(), "c1", "m1", "👍"), ErrNotRunning)
	assert.ErrorIs(t, c.SendDM(context.Background(), "u1", "hi"), ErrNotRunning)
	assert.False(t, c.MemberExists(context.Background(), "u1"))
}
