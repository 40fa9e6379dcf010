// Package pricing holds the money math for the rental lifecycle. Every
// function is pure; amounts are decimals, never floats.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fixed policy constants. The deposit is three daily rates; overdue days are
// billed at 1.5x the daily rate.
var (
	depositMultiplier = decimal.NewFromInt(3)
	overdueMultiplier = decimal.RequireFromString("1.5")
)

// Places is the scale for derived amounts, rounded half-up.
const Places = 2

const day = 24 * time.Hour

func ceilDays(d time.Duration) int64 {
	days := int64(d / day)
	if d%day > 0 {
		days++
	}
	return days
}

// BillableDays returns the number of whole days billed for the interval
// [start, end). Partial days round up; the minimum billable unit is one day.
func BillableDays(start, end time.Time) int64 {
	return max(1, ceilDays(end.Sub(start)))
}

// RentalTotal computes the base rental fee: dailyRate x billable days.
func RentalTotal(dailyRate decimal.Decimal, start, end time.Time) decimal.Decimal {
	return dailyRate.Mul(decimal.NewFromInt(BillableDays(start, end))).Round(Places)
}

// Deposit computes the up-front deposit: three daily rates.
func Deposit(dailyRate decimal.Decimal) decimal.Decimal {
	return dailyRate.Mul(depositMultiplier).Round(Places)
}

// OverduePenalty computes the surcharge for returning after the scheduled
// end. Returning on or before the scheduled end costs nothing; any overdue
// time is billed per started day at 1.5x the daily rate.
func OverduePenalty(dailyRate decimal.Decimal, scheduledEnd, actualEnd time.Time) decimal.Decimal {
	if !actualEnd.After(scheduledEnd) {
		return decimal.Zero
	}
	overdueDays := max(1, ceilDays(actualEnd.Sub(scheduledEnd)))
	return dailyRate.
		Mul(decimal.NewFromInt(overdueDays)).
		Mul(overdueMultiplier).
		Round(Places)
}
