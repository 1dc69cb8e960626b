package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dotsetgreg/dotcommunity/pkg/activity"
	"github.com/dotsetgreg/dotcommunity/pkg/config"
	"github.com/dotsetgreg/dotcommunity/pkg/content"
	"github.com/dotsetgreg/dotcommunity/pkg/judge"
	"github.com/dotsetgreg/dotcommunity/pkg/logger"
	"github.com/dotsetgreg/dotcommunity/pkg/models"
	"github.com/dotsetgreg/dotcommunity/pkg/policy"
	"github.com/dotsetgreg/dotcommunity/pkg/profile"
	"github.com/dotsetgreg/dotcommunity/pkg/state"
	"github.com/dotsetgreg/dotcommunity/pkg/store"
)

const (
	recentTopicsForPrompt = 10
	summaryLines          = 10
	summaryRunes          = 500
)

// Poster posts a plain message to a channel and returns its id.
type Poster interface {
	Send(ctx context.Context, channelID, content string) (string, error)
}

// TopicEngine posts scheduled discussion topics.
type TopicEngine struct {
	cfg        *config.Config
	rt         *state.Runtime
	store      store.Store
	gen        *content.TopicGenerator
	poster     Poster
	classifier judge.ChannelClassifier
	quiet      policy.QuietHours
}

func NewTopicEngine(cfg *config.Config, rt *state.Runtime, st store.Store, gen *content.TopicGenerator, poster Poster) *TopicEngine {
	if st == nil {
		st = store.Disabled{}
	}
	if gen == nil {
		gen = content.NewTopicGenerator(nil)
	}
	return &TopicEngine{
		cfg:        cfg,
		rt:         rt,
		store:      st,
		gen:        gen,
		poster:     poster,
		classifier: judge.NewKeywordClassifier(),
		quiet: policy.QuietHours{
			Start:    cfg.Bot.QuietHoursStart,
			End:      cfg.Bot.QuietHoursEnd,
			Location: rt.Location(),
		},
	}
}

// Tick runs one topic cadence check at now.
func (e *TopicEngine) Tick(ctx context.Context, now time.Time) {
	loc := e.rt.Location()
	e.rt.SetLastTopicTick(now)
	e.rt.SetNextTopicAt(NextTopicRun(e.cfg.Topics, now, loc))

	if !e.rt.Enabled() {
		return
	}
	channels := e.cfg.Topics.TopicChannels()
	if len(channels) == 0 {
		if e.rt.WarnNoChannelsOnce() {
			logger.WarnC("scheduler", "No topic channel configured; scheduled topics are off")
		}
		return
	}
	if e.quiet.Contains(now) || !IsSlot(e.cfg.Topics, now, loc) {
		return
	}

	local := now.In(loc)
	dateKey := local.Format(state.DateLayout)
	hourKey := local.Format(state.HourLayout)

	stored, err := e.store.CountTopicsForDate(ctx, dateKey)
	if err != nil {
		logger.ErrorCF("scheduler", "Count topics failed", map[string]any{"date_key": dateKey, "error": err.Error()})
	}
	dailyCount := max(stored, e.rt.TopicsToday(now))

	recent := e.recentTopics(ctx)
	for _, ch := range channels {
		if dailyCount >= e.cfg.Bot.DailyTopicLimit {
			logger.InfoCF("scheduler", "Daily topic limit reached", map[string]any{"count": dailyCount})
			break
		}
		if e.rt.TopicRunKey(ch) == hourKey {
			continue
		}
		exists, err := e.store.HasTopicForChannelHour(ctx, ch, hourKey)
		if err != nil {
			logger.ErrorCF("scheduler", "Topic lookup failed", map[string]any{"channel_id": ch, "error": err.Error()})
		}
		if exists {
			e.rt.SetTopicRunKey(ch, hourKey)
			continue
		}

		if busy := e.rt.ChannelActivity(ch, now); busy >= activity.BusyChannelThreshold {
			e.observeBusy(ctx, ch, hourKey, busy, now)
			continue
		}

		if err := e.post(ctx, ch, dateKey, hourKey, recent, now); err != nil {
			logger.ErrorCF("scheduler", "Scheduled topic post failed", map[string]any{"channel_id": ch, "error": err.Error()})
			e.saveAction(ctx, models.BotAction{
				ID:        "topic-failed-" + shortID(),
				Type:      models.ActionTopicPost,
				Status:    models.StatusFailed,
				ChannelID: ch,
				Reason:    "topic_post_failed",
				At:        now,
			})
			continue
		}
		dailyCount++
	}
}

func (e *TopicEngine) recentTopics(ctx context.Context) []string {
	records, err := e.store.ListRecentTopics(ctx, recentTopicsForPrompt)
	if err != nil {
		logger.ErrorCF("scheduler", "List recent topics failed", map[string]any{"error": err.Error()})
		return nil
	}
	out := make([]string, 0, len(records))
	for _, r := range records {
		if r.Content != "" {
			out = append(out, r.Content)
		}
	}
	return out
}

func (e *TopicEngine) observeBusy(ctx context.Context, channelID, hourKey string, activityCount int, now time.Time) {
	e.rt.SetTopicRunKey(channelID, hourKey)
	e.rt.RecordAction(now, state.ActionSummary{Type: models.ActionAtmosphereCheck, ChannelID: channelID, At: now})
	e.saveAction(ctx, models.BotAction{
		ID:        fmt.Sprintf("atmosphere-%s-%s", hourKey, shortID()),
		Type:      models.ActionAtmosphereCheck,
		Status:    models.StatusObservedNoAction,
		ChannelID: channelID,
		Ref:       hourKey,
		Reason:    "conversation active",
		Detail:    map[string]any{"recent_activity": activityCount},
		At:        now,
	})
	logger.InfoCF("scheduler", "Channel busy; topic skipped", map[string]any{
		"channel_id": channelID,
		"activity":   activityCount,
	})
}

func (e *TopicEngine) post(ctx context.Context, channelID, dateKey, hourKey string, recent []string, now time.Time) error {
	if e.poster == nil {
		return fmt.Errorf("no poster configured")
	}
	channelType := models.ChannelChat
	if name := e.rt.ChannelName(channelID); name != "" {
		channelType = e.classifier.Classify(name)
	}
	text, kind := e.gen.Generate(ctx, recent, channelType, e.channelSummary(channelID))

	postID, err := e.poster.Send(ctx, channelID, text)
	if err != nil {
		return fmt.Errorf("send topic: %w", err)
	}

	if err := e.store.SaveTopicPost(ctx, models.TopicRecord{
		ID:         postID,
		ChannelID:  channelID,
		Content:    text,
		TopicType:  kind,
		DateKey:    dateKey,
		HourKey:    hourKey,
		PostedAt:   now,
		Engagement: map[string]int{"replies": 0, "reactions": 0},
	}); err != nil {
		logger.ErrorCF("scheduler", "Save topic failed", map[string]any{"topic_id": postID, "error": err.Error()})
	}
	e.saveAction(ctx, models.BotAction{
		ID:        postID + "-" + shortID(),
		Type:      models.ActionTopicPost,
		Status:    models.StatusPosted,
		ChannelID: channelID,
		MessageID: postID,
		Ref:       postID,
		Reason:    "scheduled_topic_post",
		Detail:    map[string]any{"content": text, "topic_type": kind},
		At:        now,
	})
	e.rt.RecordTopicPost(now, channelID, hourKey, state.ActionSummary{
		Type:      models.ActionTopicPost,
		ChannelID: channelID,
		Content:   text,
		At:        now,
	})
	logger.InfoCF("scheduler", "Scheduled topic posted", map[string]any{"channel_id": channelID, "topic_type": kind})
	return nil
}

// channelSummary joins the channel's latest history lines.
func (e *TopicEngine) channelSummary(channelID string) string {
	history := e.rt.History(channelID)
	if len(history) > summaryLines {
		history = history[len(history)-summaryLines:]
	}
	parts := make([]string, 0, len(history))
	for _, h := range history {
		if c := strings.TrimSpace(h.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return profile.TruncateRunes(strings.Join(parts, " / "), summaryRunes)
}

func (e *TopicEngine) saveAction(ctx context.Context, a models.BotAction) {
	if err := e.store.SaveBotAction(ctx, a); err != nil {
		logger.ErrorCF("scheduler", "Save bot action failed", map[string]any{"action_id": a.ID, "error": err.Error()})
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
