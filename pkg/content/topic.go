package content

import (
	"context"
	"strings"
	"sync"

	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

const (
	TopicQuestion   = "question"
	TopicPoll       = "poll"
	TopicTip        = "tip"
	TopicChallenge  = "challenge"
	TopicExperience = "experience"

	maxPromptTopics = 10
	dedupeWindow    = 5
	dedupeSuffix    = "\n（前回と少し視点を変えて、みなさんの工夫もぜひ聞かせてください）"
)

// TopicTyper labels generated topic text.
type TopicTyper interface {
	TopicType(text string) string
}

// KeywordTopicTyper infers the type from marker words.
type KeywordTopicTyper struct{}

func (KeywordTopicTyper) TopicType(text string) string {
	lowered := strings.ToLower(text)
	switch {
	case strings.Contains(text, "どっち") || strings.Contains(lowered, "vs") || strings.Contains(text, "派"):
		return TopicPoll
	case strings.Contains(text, "チャレンジ"):
		return TopicChallenge
	case strings.Contains(text, "小ワザ") || strings.Contains(lowered, "tips") || strings.Contains(text, "便利"):
		return TopicTip
	default:
		return TopicQuestion
	}
}

type fallbackTopic struct {
	kind string
	text string
}

var fallbackTopics = []fallbackTopic{
	{TopicQuestion, "今週、Notionで一番うまくいった使い方は何でしたか？"},
	{TopicPoll, "Notionのタスク管理は、データベース派ですか？ページ派ですか？"},
	{TopicTip, "小ワザ共有: 最近気づいたNotionの便利機能があれば1つ教えてください。"},
	{TopicChallenge, "今週のミニチャレンジ: 不要ページを3つ整理してみませんか？"},
	{TopicExperience, "Notionと他ツール連携で『これは助かった』体験があれば聞きたいです。"},
}

type topicPayload struct {
	RecentTopics   []string           `json:"recent_bot_topics"`
	ChannelType    models.ChannelType `json:"channel_type"`
	ChannelSummary string             `json:"recent_channel_summary"`
}

// TopicGenerator writes discussion prompts. Fallback topics rotate in a
// fixed order across calls.
type TopicGenerator struct {
	gen   TextGenerator
	typer TopicTyper

	mu   sync.Mutex
	next int
}

func NewTopicGenerator(gen TextGenerator) *TopicGenerator {
	return &TopicGenerator{gen: gen, typer: KeywordTopicTyper{}}
}

// Generate returns the topic text and its type. recentTopics is oldest first.
func (g *TopicGenerator) Generate(ctx context.Context, recentTopics []string, channelType models.ChannelType, summary string) (string, string) {
	recent := recentTopics
	if len(recent) > maxPromptTopics {
		recent = recent[len(recent)-maxPromptTopics:]
	}
	text := generate(ctx, g.gen, "topic", topicPrompt, topicPayload{
		RecentTopics:   recent,
		ChannelType:    channelType,
		ChannelSummary: summary,
	})
	if text != "" {
		return Dedupe(text, recentTopics), g.typer.TopicType(text)
	}

	fb := g.nextFallback()
	return Dedupe(fb.text, recentTopics), fb.kind
}

func (g *TopicGenerator) nextFallback() fallbackTopic {
	g.mu.Lock()
	defer g.mu.Unlock()
	fb := fallbackTopics[g.next%len(fallbackTopics)]
	g.next++
	return fb
}

// Dedupe marks text that repeats one of the last few topics verbatim.
func Dedupe(text string, recentTopics []string) string {
	normalized := strings.TrimSpace(text)
	window := recentTopics
	if len(window) > dedupeWindow {
		window = window[len(window)-dedupeWindow:]
	}
	for _, old := range window {
		if normalized == strings.TrimSpace(old) {
			return normalized + dedupeSuffix
		}
	}
	return normalized
}
