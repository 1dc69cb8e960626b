// Package state owns the process-wide runtime state shared by the message
// pipeline and the scheduler. Every accessor takes the lock briefly and never
// performs I/O.
package state

import (
	"sync"
	"time"

	"github.com/dotsetgreg/dotcommunity/pkg/activity"
	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

const (
	DateLayout       = "2006-01-02"
	HourLayout       = "2006-01-02-15"
	RecentActionsCap = 20
)

// ActionSummary is one entry of the recent-bot-actions log.
type ActionSummary struct {
	Type      string    `json:"type"`
	ChannelID string    `json:"channel_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	At        time.Time `json:"at"`
}

// Observation is what the pipeline needs right after a message was recorded.
type Observation struct {
	RecentActivity int
	Stats          models.MemberStats
	RecentPosts    []string
	History        []models.HistoryEntry
}

type Runtime struct {
	mu  sync.Mutex
	loc *time.Location

	dayKey             string
	dayResets          int
	enabled            bool
	interventionsToday int
	topicsToday        int

	messagesSeen    uint64
	primaryFlagged  uint64
	profilesUpdated uint64
	skipped         uint64
	lastMessageAt   time.Time
	lastActionAt    time.Time

	windows       map[string]*activity.Window
	histories     map[string]*activity.History
	members       map[string]*models.MemberStats
	channelNames  map[string]string
	recentActions []ActionSummary

	lastTopicTick      time.Time
	nextTopicAt        time.Time
	nextInactiveAt     time.Time
	topicRunKeys       map[string]string
	lastInactiveRunKey string
	warnedNoChannels   bool
}

func New(loc *time.Location, enabled bool) *Runtime {
	if loc == nil {
		loc = time.UTC
	}
	return &Runtime{
		loc:          loc,
		enabled:      enabled,
		windows:      map[string]*activity.Window{},
		histories:    map[string]*activity.History{},
		members:      map[string]*models.MemberStats{},
		channelNames: map[string]string{},
		topicRunKeys: map[string]string{},
	}
}

func (r *Runtime) Location() *time.Location { return r.loc }

// rollLocked resets the daily counters when now falls on a new local day.
func (r *Runtime) rollLocked(now time.Time) {
	key := now.In(r.loc).Format(DateLayout)
	if key == r.dayKey {
		return
	}
	if r.dayKey != "" {
		r.interventionsToday = 0
		r.topicsToday = 0
		r.dayResets++
	}
	r.dayKey = key
}

func (r *Runtime) DayKey(now time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollLocked(now)
	return r.dayKey
}

func (r *Runtime) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *Runtime) SetEnabled(enabled bool) {
	r.mu.Lock()
	r.enabled = enabled
	r.mu.Unlock()
}

func (r *Runtime) InterventionsToday(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollLocked(now)
	return r.interventionsToday
}

// RecordIntervention counts one executed intervention against today's budget
// and returns the new count.
func (r *Runtime) RecordIntervention(now time.Time, action ActionSummary) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollLocked(now)
	r.interventionsToday++
	r.lastActionAt = now
	r.appendActionLocked(action)
	return r.interventionsToday
}

// RecordAction logs an action that does not consume the intervention budget.
func (r *Runtime) RecordAction(now time.Time, action ActionSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastActionAt = now
	r.appendActionLocked(action)
}

func (r *Runtime) appendActionLocked(a ActionSummary) {
	r.recentActions = append(r.recentActions, a)
	if over := len(r.recentActions) - RecentActionsCap; over > 0 {
		r.recentActions = append(r.recentActions[:0], r.recentActions[over:]...)
	}
}

func (r *Runtime) RecentActions() []ActionSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ActionSummary, len(r.recentActions))
	copy(out, r.recentActions)
	return out
}

func (r *Runtime) TopicsToday(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollLocked(now)
	return r.topicsToday
}

// RecordTopicPost bumps today's topic counter and caches the channel's hour key.
func (r *Runtime) RecordTopicPost(now time.Time, channelID, hourKey string, action ActionSummary) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollLocked(now)
	r.topicsToday++
	r.topicRunKeys[channelID] = hourKey
	r.lastActionAt = now
	r.appendActionLocked(action)
	return r.topicsToday
}

// ObserveMessage records ev in the channel window, the channel history and
// the author's stats, all under one lock.
func (r *Runtime) ObserveMessage(ev models.MessageEvent, recentPostLimit int) Observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollLocked(ev.Timestamp)

	r.messagesSeen++
	r.lastMessageAt = ev.Timestamp
	if ev.ChannelName != "" {
		r.channelNames[ev.ChannelID] = ev.ChannelName
	}

	w := r.windows[ev.ChannelID]
	if w == nil {
		w = &activity.Window{}
		r.windows[ev.ChannelID] = w
	}
	recent := w.Record(ev.Timestamp)

	h := r.histories[ev.ChannelID]
	if h == nil {
		h = &activity.History{}
		r.histories[ev.ChannelID] = h
	}
	h.Append(models.HistoryEntry{
		AuthorID:   ev.AuthorID,
		AuthorName: ev.AuthorName,
		Content:    ev.Content,
		Timestamp:  ev.Timestamp,
	})

	stats := r.members[ev.AuthorID]
	if stats == nil {
		stats = &models.MemberStats{}
		r.members[ev.AuthorID] = stats
	}
	activity.UpdateStats(stats, ev.ChannelID, ev.Content, ev.Timestamp, ev.Timestamp.In(r.loc).Hour())

	return Observation{
		RecentActivity: recent,
		Stats:          copyStats(*stats),
		RecentPosts:    h.RecentBy(ev.AuthorID, recentPostLimit),
		History:        h.Entries(),
	}
}

func copyStats(s models.MemberStats) models.MemberStats {
	counts := make(map[string]int, len(s.ChannelCounts))
	for k, v := range s.ChannelCounts {
		counts[k] = v
	}
	s.ChannelCounts = counts
	return s
}

func (r *Runtime) MemberStats(memberID string) (models.MemberStats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.members[memberID]
	if !ok {
		return models.MemberStats{}, false
	}
	return copyStats(*s), true
}

// ChannelActivity counts history entries in the trailing window. It reads the
// history log so that it does not prune the live rate window.
func (r *Runtime) ChannelActivity(channelID string, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.histories[channelID]
	if h == nil {
		return 0
	}
	return h.CountSince(now.Add(-activity.WindowSpan))
}

func (r *Runtime) History(channelID string) []models.HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.histories[channelID]
	if h == nil {
		return nil
	}
	return h.Entries()
}

func (r *Runtime) ChannelName(channelID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channelNames[channelID]
}

func (r *Runtime) IncPrimaryFlagged() {
	r.mu.Lock()
	r.primaryFlagged++
	r.mu.Unlock()
}

func (r *Runtime) IncProfilesUpdated() {
	r.mu.Lock()
	r.profilesUpdated++
	r.mu.Unlock()
}

func (r *Runtime) IncSkipped() {
	r.mu.Lock()
	r.skipped++
	r.mu.Unlock()
}

func (r *Runtime) SetLastTopicTick(t time.Time) {
	r.mu.Lock()
	r.lastTopicTick = t
	r.mu.Unlock()
}

func (r *Runtime) SetNextTopicAt(t time.Time) {
	r.mu.Lock()
	r.nextTopicAt = t
	r.mu.Unlock()
}

func (r *Runtime) SetNextInactiveAt(t time.Time) {
	r.mu.Lock()
	r.nextInactiveAt = t
	r.mu.Unlock()
}

func (r *Runtime) TopicRunKey(channelID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.topicRunKeys[channelID]
}

func (r *Runtime) SetTopicRunKey(channelID, key string) {
	r.mu.Lock()
	r.topicRunKeys[channelID] = key
	r.mu.Unlock()
}

func (r *Runtime) InactiveRunKey() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastInactiveRunKey
}

func (r *Runtime) SetInactiveRunKey(key string) {
	r.mu.Lock()
	r.lastInactiveRunKey = key
	r.mu.Unlock()
}

// WarnNoChannelsOnce returns true only the first time it is called.
func (r *Runtime) WarnNoChannelsOnce() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.warnedNoChannels {
		return false
	}
	r.warnedNoChannels = true
	return true
}

// Snapshot is a point-in-time copy of every counter for the status surface.
type Snapshot struct {
	DayKey             string            `json:"day_key"`
	DayResets          int               `json:"day_resets"`
	Enabled            bool              `json:"enabled"`
	InterventionsToday int               `json:"interventions_today"`
	TopicsToday        int               `json:"topics_today"`
	MessagesSeen       uint64            `json:"messages_seen"`
	PrimaryFlagged     uint64            `json:"primary_needs_intervention"`
	ProfilesUpdated    uint64            `json:"profiles_updated"`
	Skipped            uint64            `json:"skipped"`
	LastMessageAt      time.Time         `json:"last_message_at"`
	LastActionAt       time.Time         `json:"last_action_at"`
	TrackedChannels    int               `json:"tracked_channels"`
	TrackedMembers     int               `json:"tracked_members"`
	RecentActions      []ActionSummary   `json:"recent_actions"`
	LastTopicTick      time.Time         `json:"last_topic_tick"`
	NextTopicAt        time.Time         `json:"next_topic_at"`
	NextInactiveAt     time.Time         `json:"next_inactive_at"`
	TopicRunKeys       map[string]string `json:"topic_run_keys"`
	LastInactiveRunKey string            `json:"last_inactive_run_key"`
}

func (r *Runtime) Snapshot(now time.Time) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollLocked(now)

	keys := make(map[string]string, len(r.topicRunKeys))
	for k, v := range r.topicRunKeys {
		keys[k] = v
	}
	actions := make([]ActionSummary, len(r.recentActions))
	copy(actions, r.recentActions)

	return Snapshot{
		DayKey:             r.dayKey,
		DayResets:          r.dayResets,
		Enabled:            r.enabled,
		InterventionsToday: r.interventionsToday,
		TopicsToday:        r.topicsToday,
		MessagesSeen:       r.messagesSeen,
		PrimaryFlagged:     r.primaryFlagged,
		ProfilesUpdated:    r.profilesUpdated,
		Skipped:            r.skipped,
		LastMessageAt:      r.lastMessageAt,
		LastActionAt:       r.lastActionAt,
		TrackedChannels:    len(r.histories),
		TrackedMembers:     len(r.members),
		RecentActions:      actions,
		LastTopicTick:      r.lastTopicTick,
		NextTopicAt:        r.nextTopicAt,
		NextInactiveAt:     r.nextInactiveAt,
		TopicRunKeys:       keys,
		LastInactiveRunKey: r.lastInactiveRunKey,
	}
}
