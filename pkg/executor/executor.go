// Package executor turns a response decision into a chat-side effect.
package executor

import (
	"context"
	"strings"

	"github.com/dotsetgreg/dotcommunity/pkg/logger"
	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

const DefaultReaction = "👍"

// Transport is the subset of the chat adapter the executor needs.
type Transport interface {
	Reply(ctx context.Context, channelID, replyToID, content string) (string, error)
	React(ctx context.Context, channelID, messageID, emoji string) error
}

type Executor struct {
	transport Transport
}

func New(t Transport) *Executor {
	return &Executor{transport: t}
}

// Execute never returns an error; transport failures come back as a failed
// outcome so the caller can record them without counting them.
func (e *Executor) Execute(ctx context.Context, ev models.MessageEvent, d models.ResponseDecision) models.Outcome {
	out := models.Outcome{Type: d.InterventionType}

	switch d.InterventionType {
	case models.InterventionSilent, "":
		out.Type = models.InterventionSilent
		out.Status = models.OutcomeSkipped
		return out

	case models.InterventionReactOnly:
		emoji := strings.TrimSpace(d.ReactionEmoji)
		if emoji == "" {
			emoji = DefaultReaction
		}
		if err := e.transport.React(ctx, ev.ChannelID, ev.ID, emoji); err != nil {
			return failed(out, ev, err)
		}
		out.Status = models.OutcomeReacted
		out.Ref = emoji
		return out
	}

	body := strings.TrimSpace(d.Content)
	if body == "" {
		out.Type = models.InterventionSilent
		out.Status = models.OutcomeSkipped
		return out
	}
	if prefix := mentionPrefix(d.Mentions); prefix != "" {
		body = prefix + " " + body
	}

	ref, err := e.transport.Reply(ctx, ev.ChannelID, ev.ID, body)
	if err != nil {
		return failed(out, ev, err)
	}
	out.Status = models.OutcomeSent
	out.Ref = ref
	return out
}

func mentionPrefix(ids []string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		parts = append(parts, "<@"+id+">")
	}
	return strings.Join(parts, " ")
}

func failed(out models.Outcome, ev models.MessageEvent, err error) models.Outcome {
	logger.ErrorCF("executor", "Action failed", map[string]any{
		"type":       string(out.Type),
		"channel_id": ev.ChannelID,
		"message_id": ev.ID,
		"error":      err.Error(),
	})
	out.Status = models.OutcomeFailed
	out.Error = err.Error()
	return out
}
