package schedule

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/HemSoft/hs-buddy-sub001/errors"
)

// cronParser accepts standard 5-field expressions:
// minute hour day-of-month month day-of-week
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// FallbackDelay is the safe next-occurrence offset used when a cron
// expression cannot be evaluated. Invalid syntax must not crash the
// scheduling loop; it fires an hour later and the caller logs the error.
const FallbackDelay = time.Hour

// ValidateCron checks a cron expression without evaluating it
func ValidateCron(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return errors.Wrapf(err, "invalid cron expression %q", expr)
	}
	return nil
}

// NextOccurrence computes the next firing of expr after from, evaluated in
// the given IANA timezone (empty means UTC). On an invalid expression or
// timezone it returns from + FallbackDelay together with the error so the
// caller can log it; the returned time is always usable.
func NextOccurrence(expr, timezone string, from time.Time) (time.Time, error) {
	loc, err := loadLocation(timezone)
	if err != nil {
		return from.Add(FallbackDelay), err
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return from.Add(FallbackDelay), errors.Wrapf(err, "invalid cron expression %q", expr)
	}

	next := sched.Next(from.In(loc))
	if next.IsZero() {
		// Expressions like "* * 30 2 *" never fire
		return from.Add(FallbackDelay), errors.Newf("cron expression %q has no future occurrence", expr)
	}
	return next, nil
}

// OccurrencesInRange enumerates firings of expr strictly after from and no
// later than to, ascending, capped at maxCount. The cap prevents unbounded
// enumeration for pathological expressions over long windows.
func OccurrencesInRange(expr, timezone string, from, to time.Time, maxCount int) ([]time.Time, error) {
	loc, err := loadLocation(timezone)
	if err != nil {
		return nil, err
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid cron expression %q", expr)
	}

	var occurrences []time.Time
	t := from.In(loc)
	for len(occurrences) < maxCount {
		t = sched.Next(t)
		if t.IsZero() || t.After(to) {
			break
		}
		occurrences = append(occurrences, t)
	}
	return occurrences, nil
}

func loadLocation(timezone string) (*time.Location, error) {
	if timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid timezone %q", timezone)
	}
	return loc, nil
}
