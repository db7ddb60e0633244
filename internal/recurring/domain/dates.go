package domain

import "time"

// AdvancePaymentDate moves a payment date one billing period forward.
// Month and year steps clamp to the last day of the target month, so a
// schedule anchored on Jan 31 bills on Feb 28 (29 in a leap year)
// instead of normalizing into March.
func AdvancePaymentDate(from time.Time, frequency Frequency) time.Time {
	switch frequency {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return addMonthsClamped(from, 1)
	case FrequencyYearly:
		return addMonthsClamped(from, 12)
	}
	return from
}

func addMonthsClamped(from time.Time, months int) time.Time {
	year, month, day := from.Date()
	hour, minute, second := from.Clock()

	total := int(month) - 1 + months
	targetYear := year + total/12
	targetMonth := time.Month(total%12 + 1)

	if last := daysIn(targetYear, targetMonth); day > last {
		day = last
	}
	return time.Date(targetYear, targetMonth, day, hour, minute, second, from.Nanosecond(), from.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
