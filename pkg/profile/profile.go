// Package profile derives a durable member profile from rolling activity.
package profile

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

const (
	MaxRecentPosts = 10
	maxTopics      = 8
	summaryPosts   = 3
	summaryRunes   = 300
)

// InterestExtractor maps free text onto interest tags.
type InterestExtractor interface {
	Extract(text string) []string
}

type topicKeywords struct {
	label    string
	keywords []string
}

// KeywordInterests matches lowercase substrings against a fixed table. Tags
// come out in table order.
type KeywordInterests struct {
	table []topicKeywords
}

func DefaultInterests() KeywordInterests {
	return KeywordInterests{table: []topicKeywords{
		{"データベース", []string{"database", "db", "データベース"}},
		{"API", []string{"api", "integration", "連携"}},
		{"タスク管理", []string{"task", "todo", "タスク"}},
		{"自動化", []string{"automation", "automate", "自動化"}},
		{"テンプレート", []string{"template", "テンプレ", "テンプレート"}},
		{"PKM", []string{"pkm", "second brain", "知識管理"}},
		{"Notion関数", []string{"formula", "関数", "数式"}},
	}}
}

func (k KeywordInterests) Extract(text string) []string {
	lowered := strings.ToLower(text)
	var out []string
	for _, row := range k.table {
		for _, kw := range row.keywords {
			if strings.Contains(lowered, kw) {
				out = append(out, row.label)
				break
			}
		}
		if len(out) == maxTopics {
			break
		}
	}
	return out
}

// Input is everything Build reads. RecentPosts are the member's newest posts
// in the current channel, oldest first.
type Input struct {
	MemberID    string
	DisplayName string
	Roles       []string
	JoinedAt    time.Time
	Stats       models.MemberStats
	RecentPosts []string
	Now         time.Time
}

type Aggregator struct {
	Interests InterestExtractor
}

func NewAggregator() *Aggregator {
	return &Aggregator{Interests: DefaultInterests()}
}

// Build is a pure function of its input.
func (a *Aggregator) Build(in Input) models.MemberProfile {
	posts := in.RecentPosts
	if len(posts) > MaxRecentPosts {
		posts = posts[len(posts)-MaxRecentPosts:]
	}
	combined := strings.Join(posts, " ")

	lastActive := in.Stats.LastActiveAt
	if lastActive.IsZero() {
		lastActive = in.Now
	}

	return models.MemberProfile{
		MemberID:    in.MemberID,
		DisplayName: in.DisplayName,
		Roles:       in.Roles,
		Stats: models.ProfileStats{
			TotalPosts:     in.Stats.TotalPosts,
			AvgPostLength:  round(in.Stats.AveragePostLength(), 2),
			PostFrequency:  round(postFrequency(in), 3),
			MostActiveHour: mostActiveHour(in.Stats.HourCounts),
		},
		Interests: models.ProfileInterest{
			Topics:     a.Interests.Extract(combined),
			SkillLevel: EstimateSkill(in.Stats.TotalPosts, combined),
			Style:      EstimateStyle(posts),
		},
		Context: models.ProfileContext{
			RecentSummary:  Summarize(posts),
			LastActiveAt:   lastActive,
			LastActiveAtMS: lastActive.UnixMilli(),
		},
		Relationships: models.ProfileRelation{
			ActiveChannels: rankChannels(in.Stats.ChannelCounts),
		},
		UpdatedAt: in.Now,
	}
}

func EstimateSkill(totalPosts int, text string) models.SkillLevel {
	lowered := strings.ToLower(text)
	switch {
	case totalPosts >= 40 && (strings.Contains(lowered, "api") || strings.Contains(lowered, "formula")):
		return models.SkillAdvanced
	case totalPosts >= 10:
		return models.SkillIntermediate
	default:
		return models.SkillBeginner
	}
}

func EstimateStyle(posts []string) models.CommunicationStyle {
	if len(posts) == 0 {
		return models.StyleLurker
	}
	joined := strings.Join(posts, "\n")
	questions := strings.Count(joined, "?") + strings.Count(joined, "？")
	if questions >= max(1, len(posts)/2) {
		return models.StyleQuestionHeavy
	}
	if len(posts) >= 3 {
		short := true
		for _, p := range posts {
			if utf8.RuneCountInString(p) >= 8 {
				short = false
				break
			}
		}
		if short {
			return models.StyleReactionOnly
		}
	}
	return models.StyleShareHeavy
}

// Summarize joins the last three posts on one line, capped at 300 runes.
func Summarize(posts []string) string {
	if len(posts) == 0 {
		return ""
	}
	if len(posts) > summaryPosts {
		posts = posts[len(posts)-summaryPosts:]
	}
	parts := make([]string, 0, len(posts))
	for _, p := range posts {
		parts = append(parts, strings.ReplaceAll(strings.TrimSpace(p), "\n", " "))
	}
	return TruncateRunes(strings.Join(parts, " / "), summaryRunes)
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func postFrequency(in Input) float64 {
	since := in.JoinedAt
	if since.IsZero() {
		since = in.Stats.FirstSeenAt
	}
	if since.IsZero() {
		return 0
	}
	hours := in.Now.Sub(since).Hours()
	if hours <= 0 {
		return 0
	}
	return float64(in.Stats.TotalPosts) / (hours / 24)
}

func mostActiveHour(hours [24]int) int {
	best := 0
	for h, n := range hours {
		if n > hours[best] {
			best = h
		}
	}
	return best
}

func rankChannels(counts map[string]int) []string {
	out := make([]string, 0, len(counts))
	for id := range counts {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
