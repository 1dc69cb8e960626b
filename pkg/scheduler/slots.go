package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/dotsetgreg/dotcommunity/pkg/config"
)

// SlotExpr renders the topic cadence as a five-field cron expression. It
// returns "" when no weekday is configured, which means no slot ever matches.
func SlotExpr(t config.TopicConfig) string {
	if len(t.Weekdays) == 0 {
		return ""
	}
	start := t.WindowStartHour()
	end := t.CheckEndHour
	if end < start {
		end = start
	}
	interval := t.CheckIntervalHours
	if interval < 1 {
		interval = 1
	}

	days := make([]int, 0, len(t.Weekdays))
	seen := map[int]bool{}
	for _, d := range t.Weekdays {
		if !seen[int(d)] {
			seen[int(d)] = true
			days = append(days, int(d))
		}
	}
	sort.Ints(days)
	dayParts := make([]string, len(days))
	for i, d := range days {
		dayParts[i] = strconv.Itoa(d)
	}

	return fmt.Sprintf("%d %d-%d/%d * * %s", t.Minute, start, end, interval, strings.Join(dayParts, ","))
}

// IsSlot reports whether now, in loc, is a topic slot.
func IsSlot(t config.TopicConfig, now time.Time, loc *time.Location) bool {
	expr := SlotExpr(t)
	if expr == "" {
		return false
	}
	g := gronx.New()
	due, err := g.IsDue(expr, now.In(loc).Truncate(time.Minute))
	return err == nil && due
}

// NextTopicRun returns the first slot strictly after now, or the zero time
// when the cadence has no slot.
func NextTopicRun(t config.TopicConfig, now time.Time, loc *time.Location) time.Time {
	expr := SlotExpr(t)
	if expr == "" {
		return time.Time{}
	}
	next, err := gronx.NextTickAfter(expr, now.In(loc), false)
	if err != nil {
		return time.Time{}
	}
	return next
}

// NextOutreachRun returns the next top of the configured hour on the
// configured weekday strictly after now.
func NextOutreachRun(o config.OutreachConfig, now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	for offset := 0; offset <= 7; offset++ {
		day := local.AddDate(0, 0, offset)
		if day.Weekday() != o.CheckWeekday.Weekday() {
			continue
		}
		candidate := time.Date(day.Year(), day.Month(), day.Day(), o.CheckHour, 0, 0, 0, loc)
		if candidate.After(local) {
			return candidate
		}
	}
	return time.Time{}
}
