package costs

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(i int) *int {
	return &i
}

func boolPtr(b bool) *bool {
	return &b
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func assertMoney(t *testing.T, field string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s: got %s, want %s", field, got.StringFixed(2), want)
	}
}

// firmSchedule has a firm default rate for Grade A and Grade C from 2020
func firmSchedule(t *testing.T) *RateSchedule {
	t.Helper()
	s, err := NewRateSchedule([]RateEntry{
		{ID: "firm-a", Grade: GradeA, HourlyRate: dec("450"), EffectiveFrom: date("2020-01-01")},
		{ID: "firm-c", Grade: GradeC, HourlyRate: dec("250"), EffectiveFrom: date("2020-01-01")},
	})
	if err != nil {
		t.Fatalf("NewRateSchedule: %v", err)
	}
	return s
}
