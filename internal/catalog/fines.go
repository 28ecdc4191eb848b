package catalog

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// LoanDays is the lending period of a new loan
	LoanDays = 14
	// RenewalDays is how far a single renewal pushes the due date
	RenewalDays = 7
	// FinePerDay is charged for every started day past the due date
	FinePerDay = 5000
	// MaxActiveLoans is the number of copies a student may hold at once
	MaxActiveLoans = 3
)

const day = 24 * time.Hour

// DaysLate returns the number of started days between due and now, or 0 if now is not past due.
// Days are elapsed 24h periods rounded up, independent of the calendar.
func DaysLate(due, now time.Time) int {
	if !now.After(due) {
		return 0
	}
	late := now.Sub(due)
	return int((late + day - 1) / day)
}

// FineFor returns the fine owed for a copy due at due and returned at now
func FineFor(due, now time.Time) int {
	return DaysLate(due, now) * FinePerDay
}

var moneyPrinter = message.NewPrinter(language.Vietnamese)

// FormatMoney renders an amount the way the library prints receipts, e.g. 50.000đ
func FormatMoney(amount int) string {
	return moneyPrinter.Sprintf("%d", amount) + "đ"
}
