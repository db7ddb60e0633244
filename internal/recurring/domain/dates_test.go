package domain

import (
	"testing"
	"time"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestAdvancePaymentDate(t *testing.T) {
	tests := []struct {
		name      string
		from      time.Time
		frequency Frequency
		want      time.Time
	}{
		{"daily", date(2026, time.March, 15), FrequencyDaily, date(2026, time.March, 16)},
		{"weekly", date(2026, time.March, 15), FrequencyWeekly, date(2026, time.March, 22)},
		{"monthly mid month", date(2026, time.March, 15), FrequencyMonthly, date(2026, time.April, 15)},
		{"monthly jan 31 clamps to feb 28", date(2026, time.January, 31), FrequencyMonthly, date(2026, time.February, 28)},
		{"monthly jan 31 leap year clamps to feb 29", date(2028, time.January, 31), FrequencyMonthly, date(2028, time.February, 29)},
		{"monthly mar 31 clamps to apr 30", date(2026, time.March, 31), FrequencyMonthly, date(2026, time.April, 30)},
		{"monthly dec rolls year", date(2026, time.December, 31), FrequencyMonthly, date(2027, time.January, 31)},
		{"yearly", date(2026, time.March, 15), FrequencyYearly, date(2027, time.March, 15)},
		{"yearly feb 29 clamps", date(2028, time.February, 29), FrequencyYearly, date(2029, time.February, 28)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := AdvancePaymentDate(tc.from, tc.frequency); !got.Equal(tc.want) {
				t.Fatalf("AdvancePaymentDate(%v, %s) = %v, want %v", tc.from, tc.frequency, got, tc.want)
			}
		})
	}
}

func TestAdvancePaymentDateNeverNormalizesIntoNextMonth(t *testing.T) {
	current := date(2026, time.January, 31)
	for i := 0; i < 24; i++ {
		next := AdvancePaymentDate(current, FrequencyMonthly)

		// Exactly one calendar month forward, never two.
		wantMonths := (int(current.Month()) % 12) + 1
		if int(next.Month()) != wantMonths {
			t.Fatalf("advance from %v landed on %v", current, next)
		}
		if next.Day() > daysIn(next.Year(), next.Month()) {
			t.Fatalf("day overflow: %v", next)
		}
		current = next
	}
}
