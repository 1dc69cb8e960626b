// Package content writes the bot's own posts: discussion topics, outreach
// DMs and welcome messages. Each writer asks a provider first and falls back
// to fixed Japanese text when the provider is disabled or fails.
package content

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dotsetgreg/dotcommunity/pkg/logger"
)

//go:embed prompts/topic.txt
var topicPrompt string

//go:embed prompts/outreach.txt
var outreachPrompt string

//go:embed prompts/welcome.txt
var welcomePrompt string

// TextGenerator is the provider surface used for free-text generation.
// *providers.JudgeClient satisfies it.
type TextGenerator interface {
	Enabled() bool
	GenerateText(ctx context.Context, system, user string) (string, error)
}

// generate returns "" when the provider is unavailable or answers nothing,
// which callers treat as "use the fallback".
func generate(ctx context.Context, gen TextGenerator, kind, system string, payload any) string {
	if gen == nil || !gen.Enabled() {
		return ""
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logger.WarnCF("content", "Marshal payload failed", map[string]any{"kind": kind, "error": err.Error()})
		return ""
	}
	out, err := gen.GenerateText(ctx, system, fmt.Sprintf("## 入力データ\n%s", body))
	if err != nil {
		logger.WarnCF("content", "Generation failed, using fallback", map[string]any{"kind": kind, "error": err.Error()})
		return ""
	}
	return strings.TrimSpace(out)
}
