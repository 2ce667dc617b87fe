package domain

import "time"

// NextDate returns current advanced by one billing cycle. Unknown units and a
// nil cycle fall back to one month. Month arithmetic clamps to the last day
// of the target month, so Jan 31 + 1 month is Feb 28 (or 29).
func NextDate(current time.Time, cycle *BillingCycle) time.Time {
	if cycle == nil {
		return addMonths(current, 1)
	}
	switch cycle.DurationUnit {
	case DurationUnitDays:
		return current.AddDate(0, 0, cycle.Duration)
	case DurationUnitWeeks:
		return current.AddDate(0, 0, 7*cycle.Duration)
	case DurationUnitMonths:
		return addMonths(current, cycle.Duration)
	default:
		return addMonths(current, 1)
	}
}

func addMonths(t time.Time, months int) time.Time {
	if months == 0 {
		return t
	}
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return firstOfTarget.AddDate(0, 0, day-1)
}
