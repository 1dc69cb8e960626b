package judge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dotsetgreg/dotcommunity/pkg/logger"
	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

const (
	maxAttempts      = 2
	defaultTone      = "warm"
	defaultReasoning = "secondary judge"
	fallbackReason   = "secondary judge unavailable: observing"
)

// Gate outcomes reported through Secondary.OnGate.
const (
	GateAccepted     = "accepted"
	GatePassive      = "passive"
	GateRegenerated  = "regenerated"
	GateForcedSilent = "forced_silent"
	GateFallback     = "fallback"
)

var errMissingScore = errors.New("quality evaluation has no score")

// Secondary drafts the concrete response and runs it through the quality
// gate: at most one regeneration, then accept or fall silent.
type Secondary struct {
	gen    Generator
	now    func() time.Time
	OnGate func(outcome string)
}

func NewSecondary(gen Generator) *Secondary {
	return &Secondary{gen: gen, now: time.Now}
}

// Judge never fails; every error path ends in a silent decision.
func (s *Secondary) Judge(ctx context.Context, in SecondaryInput) models.ResponseDecision {
	if s.gen == nil || !s.gen.Enabled() {
		return s.fallback(nil)
	}

	var best *models.ResponseDecision
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		d, err := s.generate(ctx, in, attempt)
		if err != nil {
			return s.fallback(err)
		}
		if d.InterventionType.Passive() {
			d.QualityScore = max(d.QualityScore, passiveQualityFloor)
			s.report(GatePassive)
			return d
		}

		if phrase, hit := DeniedPhrase(d.Content); hit {
			logger.InfoCF("judge", "Draft hit denylist", map[string]any{
				"phrase":  phrase,
				"attempt": attempt,
			})
			if attempt < maxAttempts {
				continue
			}
			if best != nil {
				s.report(GateRegenerated)
				return *best
			}
			s.report(GateForcedSilent)
			return forceSilent(d, "denylisted phrase after retry: "+phrase)
		}

		score, flagged, err := s.evaluate(ctx, in, d)
		if err != nil {
			return s.fallback(err)
		}
		d.QualityScore = score
		if best == nil || score > best.QualityScore {
			kept := d
			best = &kept
		}
		if attempt == 1 && score >= acceptScore && !flagged {
			s.report(GateAccepted)
			return d
		}
	}
	s.report(GateRegenerated)
	return *best
}

func (s *Secondary) generate(ctx context.Context, in SecondaryInput, attempt int) (models.ResponseDecision, error) {
	raw, err := s.gen.GenerateJSON(ctx, secondarySystemPrompt(in.ChannelType, attempt), in)
	if err != nil {
		return models.ResponseDecision{}, err
	}
	var resp secondaryResponse
	if err := decodeModelJSON(raw, &resp); err != nil {
		return models.ResponseDecision{}, err
	}

	tone := strings.TrimSpace(string(resp.Tone))
	if tone == "" {
		tone = defaultTone
	}
	reasoning := strings.TrimSpace(string(resp.Reasoning))
	if reasoning == "" {
		reasoning = defaultReasoning
	}
	d := models.ResponseDecision{
		InterventionType:  models.NormalizeInterventionType(string(resp.InterventionType)),
		Tone:              tone,
		Content:           string(resp.Content),
		Mentions:          []string(resp.MentionUsers),
		ReactionEmoji:     strings.TrimSpace(string(resp.ReactionEmoji)),
		Confidence:        clamp01(resp.Confidence.Value),
		SilenceConfidence: clamp01(resp.SilenceConfidence.Value),
		Reasoning:         reasoning,
		Provider:          s.gen.Name(),
		JudgedAt:          s.now(),
		Attempt:           attempt,
	}
	return Sanitize(d, in.MessageContent), nil
}

func (s *Secondary) evaluate(ctx context.Context, in SecondaryInput, d models.ResponseDecision) (float64, bool, error) {
	raw, err := s.gen.GenerateJSON(ctx, qualityPrompt, qualityRequest{
		MessageContent:   in.MessageContent,
		ChannelType:      in.ChannelType,
		InterventionType: d.InterventionType,
		Draft:            d.Content,
	})
	if err != nil {
		return 0, false, err
	}
	var resp qualityResponse
	if err := decodeModelJSON(raw, &resp); err != nil {
		return 0, false, err
	}
	if !resp.Score.Valid {
		return 0, false, errMissingScore
	}
	return clamp01(resp.Score.Value), bool(resp.NeedsRegeneration), nil
}

func (s *Secondary) fallback(err error) models.ResponseDecision {
	if err != nil {
		logger.WarnCF("judge", "Secondary judge failed, staying silent", map[string]any{
			"error": err.Error(),
		})
	}
	s.report(GateFallback)
	return models.ResponseDecision{
		InterventionType: models.InterventionSilent,
		Tone:             defaultTone,
		Confidence:       0,
		Reasoning:        fallbackReason,
		Provider:         FallbackProvider,
		JudgedAt:         s.now(),
	}
}

func (s *Secondary) report(outcome string) {
	if s.OnGate != nil {
		s.OnGate(outcome)
	}
}

func forceSilent(d models.ResponseDecision, reason string) models.ResponseDecision {
	d.InterventionType = models.InterventionSilent
	d.Content = ""
	d.Mentions = nil
	d.SilenceConfidence = max(d.SilenceConfidence, forcedSilenceFloor)
	d.Reasoning = reason
	return d
}
