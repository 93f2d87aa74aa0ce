package rewards

import (
	"fmt"
	"time"
)

// Clock supplies the current instant. Every day- and week-boundary decision
// in the engine goes through a Clock so tests can pin an exact moment.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystemClock returns a Clock backed by the wall clock in UTC.
func NewSystemClock() Clock { return systemClock{} }

type fixedClock struct {
	instant time.Time
}

func (clock fixedClock) Now() time.Time { return clock.instant }

// NewFixedClock returns a Clock frozen at the given instant.
func NewFixedClock(instant time.Time) Clock { return fixedClock{instant: instant} }

// DayKey buckets an instant into its UTC calendar day. Free-vote quotas
// reset when this key changes, i.e. at UTC midnight.
func DayKey(instant time.Time) string {
	return instant.UTC().Format("2006-01-02")
}

// WeekKey buckets an instant into its ISO-8601 year and week. Bonus-vote
// quotas reset when this key changes, i.e. Monday 00:00 UTC.
func WeekKey(instant time.Time) string {
	year, week := instant.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// IsWeekend reports whether the instant falls on Saturday or Sunday in the
// given reference location.
func IsWeekend(instant time.Time, location *time.Location) bool {
	weekday := instant.In(location).Weekday()
	return weekday == time.Saturday || weekday == time.Sunday
}
