package content

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultInterest    = "Notion活用"
	maxListedInterests = 3
)

type outreachPayload struct {
	MemberName     string   `json:"member_name"`
	Interests      []string `json:"member_interest_topics"`
	RecentTopicSum string   `json:"recent_community_topics_summary"`
}

type OutreachComposer struct {
	gen TextGenerator
}

func NewOutreachComposer(gen TextGenerator) *OutreachComposer {
	return &OutreachComposer{gen: gen}
}

func (c *OutreachComposer) Compose(ctx context.Context, memberName string, interests []string, recentSummary string) string {
	text := generate(ctx, c.gen, "outreach", outreachPrompt, outreachPayload{
		MemberName:     memberName,
		Interests:      interests,
		RecentTopicSum: recentSummary,
	})
	if text != "" {
		return text
	}
	return FallbackOutreach(memberName, interests, recentSummary)
}

func FallbackOutreach(memberName string, interests []string, recentSummary string) string {
	topics := defaultInterest
	if len(interests) > 0 {
		listed := interests
		if len(listed) > maxListedInterests {
			listed = listed[:maxListedInterests]
		}
		topics = strings.Join(listed, "、")
	}
	return fmt.Sprintf(
		"%sさん、お久しぶりです。\n最近のノチコンでは %s の話題が出ていました。\n%s が好きな方にも役立つ内容だったので、時間があるときにぜひ覗いてみてください。",
		memberName, recentSummary, topics,
	)
}
