package judge

import (
	"strings"
	"unicode/utf8"

	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

const (
	MaxReplyRunes   = 180
	maxExcerptRunes = 24
	ellipsis        = "…"
)

// Sanitize enforces the output shape on a drafted decision: bounded length,
// at most one question, and a quoted excerpt of the message being answered.
// A text decision left with no body becomes silent.
func Sanitize(d models.ResponseDecision, original string) models.ResponseDecision {
	d.InterventionType = models.NormalizeInterventionType(string(d.InterventionType))
	if d.InterventionType.Passive() {
		d.Content = ""
		return d
	}

	body := limitQuestions(strings.TrimSpace(d.Content))
	if body == "" {
		d.InterventionType = models.InterventionSilent
		d.Content = ""
		return d
	}

	// The quote must survive truncation.
	if capped := capRunes(body, MaxReplyRunes); hasQuote(capped) {
		d.Content = capped
		return d
	}
	prefix := "「" + excerpt(original) + "」"
	d.Content = prefix + capRunes(body, MaxReplyRunes-utf8.RuneCountInString(prefix))
	return d
}

func capRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + ellipsis
}

// limitQuestions keeps the first question mark of either width and demotes
// the rest to the matching full stop.
func limitQuestions(s string) string {
	seen := false
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch r {
		case '?', '？':
			if !seen {
				seen = true
				sb.WriteRune(r)
			} else if r == '?' {
				sb.WriteByte('.')
			} else {
				sb.WriteRune('。')
			}
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func hasQuote(s string) bool {
	if strings.Contains(s, "「") && strings.Contains(s, "」") {
		return true
	}
	if strings.Contains(s, "“") && strings.Contains(s, "”") {
		return true
	}
	return strings.Count(s, `"`) >= 2
}

func excerpt(original string) string {
	cleaned := strings.NewReplacer("?", "", "？", "", "\n", " ", "\r", "").Replace(original)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return ellipsis
	}
	runes := []rune(cleaned)
	if len(runes) > maxExcerptRunes {
		runes = runes[:maxExcerptRunes]
	}
	return strings.TrimSpace(string(runes))
}
