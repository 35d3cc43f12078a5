package costs

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the UK presentation format used on bills
const DateLayout = "02.01.2006"

// UnitsPerHour is the number of 6-minute units in an hour
const UnitsPerHour = 10

var (
	unitsPerHour   = decimal.NewFromInt(UnitsPerHour)
	hoursTolerance = decimal.RequireFromString("0.05")
	moneyTolerance = decimal.RequireFromString("0.01")
)

// inputDateLayouts are the date spellings accepted on raw records
var inputDateLayouts = []string{
	"2006-01-02",
	DateLayout,
	"02/01/2006",
	time.RFC3339,
}

// RoundMoney rounds to pence using round-half-to-even
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// ParseDate reads a calendar date and returns it as midnight UTC
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range inputDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func within(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

func sumMoney(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
