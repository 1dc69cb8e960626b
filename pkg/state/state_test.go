package state

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dotsetgreg/dotcommunity/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokyo = time.FixedZone("JST", 9*3600)

func TestRuntime_ResetsCountersAtLocalMidnightOnce(t *testing.T) {
	rt := New(tokyo, true)
	evening := time.Date(2026, 3, 2, 23, 30, 0, 0, tokyo)

	for i := 0; i < 5; i++ {
		rt.RecordIntervention(evening, ActionSummary{Type: "reply"})
	}
	rt.RecordTopicPost(evening, "c1", "2026-03-02-23", ActionSummary{Type: "topic_post"})
	require.Equal(t, 5, rt.InterventionsToday(evening))
	require.Equal(t, 1, rt.TopicsToday(evening))

	afterMidnight := time.Date(2026, 3, 3, 0, 1, 0, 0, tokyo)
	assert.Equal(t, 0, rt.InterventionsToday(afterMidnight))
	assert.Equal(t, 0, rt.TopicsToday(afterMidnight))

	rt.RecordIntervention(afterMidnight, ActionSummary{Type: "reply"})
	later := afterMidnight.Add(10 * time.Hour)
	assert.Equal(t, 1, rt.InterventionsToday(later), "second call on the same day must not reset again")

	snap := rt.Snapshot(later)
	assert.Equal(t, 1, snap.DayResets)
	assert.Equal(t, "2026-03-03", snap.DayKey)
}

func TestRuntime_DayKeyUsesLocalZone(t *testing.T) {
	rt := New(tokyo, true)
	// 15:30 UTC on March 2 is 00:30 on March 3 in Tokyo.
	assert.Equal(t, "2026-03-03", rt.DayKey(time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)))
}

func TestRuntime_RecentActionsBounded(t *testing.T) {
	rt := New(time.UTC, true)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	for i := 0; i < RecentActionsCap+7; i++ {
		rt.RecordAction(now, ActionSummary{Type: fmt.Sprintf("a%d", i)})
	}
	actions := rt.RecentActions()
	require.Len(t, actions, RecentActionsCap)
	assert.Equal(t, "a7", actions[0].Type)
	assert.Equal(t, fmt.Sprintf("a%d", RecentActionsCap+6), actions[len(actions)-1].Type)
}

func TestRuntime_ObserveMessage(t *testing.T) {
	rt := New(tokyo, true)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, tokyo)

	var obs Observation
	for i := 0; i < 4; i++ {
		obs = rt.ObserveMessage(models.MessageEvent{
			ID:          fmt.Sprintf("m%d", i),
			ChannelID:   "c1",
			ChannelName: "質問-general",
			AuthorID:    "u1",
			AuthorName:  "alice",
			Content:     fmt.Sprintf("post %d", i),
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}, 10)
	}

	assert.Equal(t, 4, obs.RecentActivity)
	assert.Equal(t, 4, obs.Stats.TotalPosts)
	assert.Equal(t, 4, obs.Stats.HourCounts[10])
	assert.Equal(t, []string{"post 0", "post 1", "post 2", "post 3"}, obs.RecentPosts)
	assert.Len(t, obs.History, 4)
	assert.Equal(t, "質問-general", rt.ChannelName("c1"))

	// Stats returned to callers are copies.
	obs.Stats.ChannelCounts["c1"] = 100
	stats, ok := rt.MemberStats("u1")
	require.True(t, ok)
	assert.Equal(t, 4, stats.ChannelCounts["c1"])

	assert.Equal(t, 4, rt.ChannelActivity("c1", base.Add(30*time.Minute)))
	assert.Equal(t, 0, rt.ChannelActivity("c1", base.Add(3*time.Hour)))

	snap := rt.Snapshot(base)
	assert.Equal(t, uint64(4), snap.MessagesSeen)
	assert.Equal(t, 1, snap.TrackedMembers)
}

func TestRuntime_ConcurrentAccess(t *testing.T) {
	rt := New(time.UTC, true)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rt.ObserveMessage(models.MessageEvent{ChannelID: "c", AuthorID: fmt.Sprintf("u%d", i), Timestamp: now}, 5)
				rt.RecordIntervention(now, ActionSummary{Type: "reply"})
				_ = rt.Snapshot(now)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 400, rt.InterventionsToday(now))
	assert.Equal(t, uint64(400), rt.Snapshot(now).MessagesSeen)
}

func TestRuntime_WarnNoChannelsOnce(t *testing.T) {
	rt := New(time.UTC, true)
	assert.True(t, rt.WarnNoChannelsOnce())
	assert.False(t, rt.WarnNoChannelsOnce())
}
