package profile

import (
	"strings"
	"testing"
	"time"

	"github.com/dotsetgreg/dotcommunity/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestKeywordInterests_TableOrderAndCase(t *testing.T) {
	got := DefaultInterests().Extract("Trying a Formula with the API and a new TEMPLATE for my database")
	assert.Equal(t, []string{"データベース", "API", "テンプレート", "Notion関数"}, got)
}

func TestKeywordInterests_Japanese(t *testing.T) {
	got := DefaultInterests().Extract("タスク管理を自動化したい")
	assert.Equal(t, []string{"タスク管理", "自動化"}, got)
}

func TestEstimateSkill(t *testing.T) {
	assert.Equal(t, models.SkillAdvanced, EstimateSkill(40, "using the API daily"))
	assert.Equal(t, models.SkillIntermediate, EstimateSkill(40, "just templates"))
	assert.Equal(t, models.SkillIntermediate, EstimateSkill(10, ""))
	assert.Equal(t, models.SkillBeginner, EstimateSkill(9, "formula api"))
}

func TestEstimateStyle(t *testing.T) {
	cases := []struct {
		name  string
		posts []string
		want  models.CommunicationStyle
	}{
		{"no posts", nil, models.StyleLurker},
		{"questions", []string{"how does this work?", "thanks", "any idea？"}, models.StyleQuestionHeavy},
		{"single question", []string{"what?"}, models.StyleQuestionHeavy},
		{"short reactions", []string{"nice", "👍", "lol"}, models.StyleReactionOnly},
		{"sharing", []string{"I built a new dashboard for my team", "here is the template link"}, models.StyleShareHeavy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EstimateStyle(tc.posts))
		})
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize([]string{"first", " second\nline ", "third", "fourth"})
	assert.Equal(t, "second line / third / fourth", got)

	long := strings.Repeat("あ", 400)
	assert.Equal(t, 300, len([]rune(Summarize([]string{long}))))
	assert.Equal(t, "", Summarize(nil))
}

func TestAggregator_Build(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	stats := models.MemberStats{
		TotalPosts:    12,
		ChannelCounts: map[string]int{"c1": 3, "c2": 9},
		TotalLength:   120,
		FirstSeenAt:   now.Add(-48 * time.Hour),
		LastActiveAt:  now.Add(-time.Minute),
	}
	stats.HourCounts[14] = 7
	stats.HourCounts[9] = 5

	p := NewAggregator().Build(Input{
		MemberID:    "u1",
		DisplayName: "alice",
		Roles:       []string{"member"},
		JoinedAt:    now.Add(-96 * time.Hour),
		Stats:       stats,
		RecentPosts: []string{"my db setup", "automation idea"},
		Now:         now,
	})

	assert.Equal(t, "u1", p.MemberID)
	assert.Equal(t, 10.0, p.Stats.AvgPostLength)
	assert.Equal(t, 3.0, p.Stats.PostFrequency)
	assert.Equal(t, 14, p.Stats.MostActiveHour)
	assert.Equal(t, []string{"データベース", "自動化"}, p.Interests.Topics)
	assert.Equal(t, models.SkillIntermediate, p.Interests.SkillLevel)
	assert.Equal(t, []string{"c2", "c1"}, p.Relationships.ActiveChannels)
	assert.Equal(t, stats.LastActiveAt.UnixMilli(), p.Context.LastActiveAtMS)
	assert.Nil(t, p.Outreach, "profile rebuilds must not carry outreach bookkeeping")
}
