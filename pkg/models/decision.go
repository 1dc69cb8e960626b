package models

import (
	"strings"
	"time"
)

// PrimaryDecision is the triage verdict for one message.
type PrimaryDecision struct {
	NeedsIntervention bool      `json:"needs_intervention"`
	Reason            string    `json:"reason"`
	Priority          int       `json:"priority"`
	Provider          string    `json:"provider"`
	JudgedAt          time.Time `json:"judged_at"`
	Raw               string    `json:"raw,omitempty"`
}

type InterventionType string

const (
	InterventionSilent    InterventionType = "silent"
	InterventionReactOnly InterventionType = "react_only"
	InterventionReply     InterventionType = "reply"
	InterventionClarify   InterventionType = "clarify"
	InterventionEncourage InterventionType = "encourage"
	InterventionWelcome   InterventionType = "welcome"
)

// NormalizeInterventionType maps provider output onto a known type.
// Unknown non-empty values are treated as replies, empty as silent.
func NormalizeInterventionType(s string) InterventionType {
	t := InterventionType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case "":
		return InterventionSilent
	case "react", "reaction":
		return InterventionReactOnly
	case InterventionSilent, InterventionReactOnly, InterventionReply, InterventionClarify, InterventionEncourage, InterventionWelcome:
		return t
	default:
		return InterventionReply
	}
}

// Passive reports whether the type never posts text.
func (t InterventionType) Passive() bool {
	return t == InterventionSilent || t == InterventionReactOnly
}

// ResponseDecision is the concrete action drafted by the secondary judge.
type ResponseDecision struct {
	InterventionType  InterventionType `json:"intervention_type"`
	Tone              string           `json:"tone"`
	Content           string           `json:"content"`
	Mentions          []string         `json:"mention_users,omitempty"`
	ReactionEmoji     string           `json:"reaction_emoji,omitempty"`
	Confidence        float64          `json:"confidence"`
	SilenceConfidence float64          `json:"silence_confidence"`
	QualityScore      float64          `json:"quality_score"`
	Reasoning         string           `json:"reasoning"`
	Provider          string           `json:"provider"`
	JudgedAt          time.Time        `json:"judged_at"`
	Attempt           int              `json:"attempt"`
}

// OutcomeStatus is the terminal state of an executed decision.
type OutcomeStatus string

const (
	OutcomeSent    OutcomeStatus = "sent"
	OutcomeReacted OutcomeStatus = "reacted"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome is what the executor did with a decision. Ref is the sent message
// id or the reaction glyph.
type Outcome struct {
	Type   InterventionType `json:"type"`
	Status OutcomeStatus    `json:"status"`
	Ref    string           `json:"ref,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Counts reports whether the outcome consumed the daily intervention budget.
func (o Outcome) Counts() bool {
	return o.Status == OutcomeSent || o.Status == OutcomeReacted
}
