// Package activity tracks per-channel message rates, per-channel conversation
// history and per-member statistics. None of the types here are safe for
// concurrent use; state.Runtime serializes access to them.
package activity

import (
	"time"
	"unicode/utf8"

	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

const (
	WindowSpan      = 60 * time.Minute
	HistoryCapacity = 20

	// ActiveConversationThreshold suppresses interventions.
	ActiveConversationThreshold = 3
	// BusyChannelThreshold suppresses scheduled topic posts.
	BusyChannelThreshold = 8
)

// Window is a sliding window of message timestamps for one channel.
type Window struct {
	stamps []time.Time
}

// Record appends ts, prunes everything older than WindowSpan and returns the
// number of messages left in the window.
func (w *Window) Record(ts time.Time) int {
	w.stamps = append(w.stamps, ts)
	w.prune(ts)
	return len(w.stamps)
}

// Count prunes relative to now and returns the window size.
func (w *Window) Count(now time.Time) int {
	w.prune(now)
	return len(w.stamps)
}

func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-WindowSpan)
	drop := 0
	for drop < len(w.stamps) && w.stamps[drop].Before(cutoff) {
		drop++
	}
	if drop > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[drop:]...)
	}
}

// History is a ring of the most recent HistoryCapacity entries.
type History struct {
	entries []models.HistoryEntry
}

func (h *History) Append(e models.HistoryEntry) {
	h.entries = append(h.entries, e)
	if over := len(h.entries) - HistoryCapacity; over > 0 {
		h.entries = append(h.entries[:0], h.entries[over:]...)
	}
}

func (h *History) Len() int { return len(h.entries) }

// Entries returns a copy, oldest first.
func (h *History) Entries() []models.HistoryEntry {
	out := make([]models.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Last returns up to n of the newest entries, oldest first.
func (h *History) Last(n int) []models.HistoryEntry {
	if n <= 0 || len(h.entries) == 0 {
		return nil
	}
	start := len(h.entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]models.HistoryEntry, len(h.entries)-start)
	copy(out, h.entries[start:])
	return out
}

// CountSince counts entries at or after since.
func (h *History) CountSince(since time.Time) int {
	n := 0
	for _, e := range h.entries {
		if !e.Timestamp.Before(since) {
			n++
		}
	}
	return n
}

// RecentBy returns up to n of authorID's newest post contents, oldest first.
func (h *History) RecentBy(authorID string, n int) []string {
	var out []string
	for i := len(h.entries) - 1; i >= 0 && len(out) < n; i-- {
		if h.entries[i].AuthorID == authorID {
			out = append(out, h.entries[i].Content)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// UpdateStats folds one post into stats. hour is the local hour of ts.
func UpdateStats(stats *models.MemberStats, channelID, content string, ts time.Time, hour int) {
	if stats.ChannelCounts == nil {
		stats.ChannelCounts = map[string]int{}
	}
	if stats.TotalPosts == 0 {
		stats.FirstSeenAt = ts
	}
	stats.TotalPosts++
	stats.ChannelCounts[channelID]++
	if hour >= 0 && hour < len(stats.HourCounts) {
		stats.HourCounts[hour]++
	}
	stats.TotalLength += utf8.RuneCountInString(content)
	if ts.After(stats.LastActiveAt) {
		stats.LastActiveAt = ts
	}
}
