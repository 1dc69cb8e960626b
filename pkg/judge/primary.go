package judge

import (
	"context"
	"strings"
	"time"

	"github.com/dotsetgreg/dotcommunity/pkg/activity"
	"github.com/dotsetgreg/dotcommunity/pkg/logger"
	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

const (
	FallbackProvider     = "fallback-rule"
	defaultPrimaryReason = "primary judge: no intervention needed"
)

// Generator is the provider surface the judges call. *providers.JudgeClient
// satisfies it.
type Generator interface {
	Enabled() bool
	Name() string
	GenerateJSON(ctx context.Context, system string, payload any) (string, error)
}

// Primary decides whether a message needs the bot at all.
type Primary struct {
	gen Generator
	now func() time.Time
	// OnFallback is called whenever the rules answer instead of the provider.
	OnFallback func()
}

func NewPrimary(gen Generator) *Primary {
	return &Primary{gen: gen, now: time.Now}
}

// Judge never fails. Provider errors and unusable output fall back to the
// rule table.
func (p *Primary) Judge(ctx context.Context, f Features) models.PrimaryDecision {
	if p.gen != nil && p.gen.Enabled() {
		raw, err := p.gen.GenerateJSON(ctx, primaryPrompt, f)
		if err == nil {
			var resp primaryResponse
			if err = decodeModelJSON(raw, &resp); err == nil {
				reason := strings.TrimSpace(string(resp.Reason))
				if reason == "" {
					reason = defaultPrimaryReason
				}
				return models.PrimaryDecision{
					NeedsIntervention: bool(resp.NeedsIntervention),
					Reason:            reason,
					Priority:          clampPriority(resp.Priority),
					Provider:          p.gen.Name(),
					JudgedAt:          p.now(),
					Raw:               raw,
				}
			}
		}
		logger.WarnCF("judge", "Primary judge failed, using rules", map[string]any{
			"provider": p.gen.Name(),
			"error":    err.Error(),
		})
	}
	if p.OnFallback != nil {
		p.OnFallback()
	}
	d := FallbackDecision(f)
	d.JudgedAt = p.now()
	return d
}

// FallbackDecision applies the rule table. The first matching rule wins and
// the order is significant.
func FallbackDecision(f Features) models.PrimaryDecision {
	decide := func(needs bool, priority int, reason string) models.PrimaryDecision {
		return models.PrimaryDecision{
			NeedsIntervention: needs,
			Reason:            reason,
			Priority:          priority,
			Provider:          FallbackProvider,
		}
	}

	switch {
	case f.IsBotMentioned:
		return decide(true, 5, "bot mentioned")
	case f.InQuietHours:
		return decide(false, 1, "quiet hours: observing")
	case f.RecentChannelActivity >= activity.ActiveConversationThreshold:
		return decide(false, 1, "conversation active: observing")
	case f.HasReply || f.HasReaction:
		return decide(false, 1, "already has a response")
	case f.AuthorIsNew:
		return decide(true, 4, "new member post")
	case looksLikeQuestion(f.MessageContent) && f.HoursSincePost >= 2:
		return decide(true, 4, "question may be unanswered")
	default:
		return decide(false, 1, "rules: keep observing")
	}
}

func looksLikeQuestion(text string) bool {
	return strings.ContainsAny(text, "?？") || strings.HasSuffix(strings.TrimSpace(text), "か")
}
