// Package policy decides whether an action may execute at all, independent of
// what the judges concluded.
package policy

import "time"

// QuietHours is a local-time hour window. Start == End means always quiet.
type QuietHours struct {
	Start    int
	End      int
	Location *time.Location
}

func (q QuietHours) Contains(t time.Time) bool {
	if q.Location != nil {
		t = t.In(q.Location)
	}
	return q.ContainsHour(t.Hour())
}

func (q QuietHours) ContainsHour(hour int) bool {
	switch {
	case q.Start == q.End:
		return true
	case q.Start < q.End:
		return q.Start <= hour && hour < q.End
	default:
		return hour >= q.Start || hour < q.End
	}
}

type ReasonCode string

const (
	ReasonOK         ReasonCode = "ok"
	ReasonQuietHours ReasonCode = "quiet_hours"
	ReasonPaused     ReasonCode = "paused"
	ReasonDailyLimit ReasonCode = "daily_limit"
)

// Budget exposes the runtime counters the limiter reads.
type Budget interface {
	Enabled() bool
	InterventionsToday(now time.Time) int
}

type Limiter struct {
	budget     Budget
	dailyLimit int
	now        func() time.Time
}

func NewLimiter(budget Budget, dailyLimit int, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{budget: budget, dailyLimit: dailyLimit, now: now}
}

// CanIntervene gates the secondary judge and the executor.
func (l *Limiter) CanIntervene(inQuietHours bool) (bool, ReasonCode) {
	if inQuietHours {
		return false, ReasonQuietHours
	}
	if !l.budget.Enabled() {
		return false, ReasonPaused
	}
	if l.budget.InterventionsToday(l.now()) >= l.dailyLimit {
		return false, ReasonDailyLimit
	}
	return true, ReasonOK
}
