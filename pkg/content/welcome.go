package content

import (
	"context"
	"time"
)

type welcomePayload struct {
	MemberName  string `json:"member_name"`
	CurrentTime string `json:"current_time"`
}

type WelcomeComposer struct {
	gen TextGenerator
	loc *time.Location
}

func NewWelcomeComposer(gen TextGenerator, loc *time.Location) *WelcomeComposer {
	if loc == nil {
		loc = time.UTC
	}
	return &WelcomeComposer{gen: gen, loc: loc}
}

func (c *WelcomeComposer) Compose(ctx context.Context, memberName string, now time.Time) string {
	local := now.In(c.loc)
	text := generate(ctx, c.gen, "welcome", welcomePrompt, welcomePayload{
		MemberName:  memberName,
		CurrentTime: local.Format(time.RFC3339),
	})
	if text != "" {
		return text
	}
	return Greeting(local.Hour()) + "、" + memberName + "さん。ノチコンへようこそ！\n" +
		"Notionの学びを気軽に共有できるコミュニティです。\n" +
		"まずは #自己紹介 で簡単に自己紹介してもらえると嬉しいです。\n" +
		"困ったことがあればいつでも声をかけてください。"
}

// Greeting picks the salutation for a local hour.
func Greeting(hour int) string {
	switch {
	case hour >= 5 && hour < 11:
		return "おはようございます"
	case hour >= 11 && hour < 18:
		return "こんにちは"
	default:
		return "こんばんは"
	}
}
