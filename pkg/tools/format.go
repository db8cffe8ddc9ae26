package tools

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Replies are written for a Brazilian audience, so numbers follow pt-BR
// conventions: thousands separated by dots, decimal comma.
var ptBR = message.NewPrinter(language.BrazilianPortuguese)

func formatMoney(v float64) string {
	return ptBR.Sprintf("R$ %.2f", v)
}

// formatPercent renders a signed percentage: positive values carry an
// explicit "+", negative values the usual "-".
func formatPercent(v float64) string {
	if v > 0 {
		return ptBR.Sprintf("+%.2f%%", v)
	}
	return ptBR.Sprintf("%.2f%%", v)
}

// Window arithmetic uses the caller's local day boundary and inclusive ends:
// the end of a day is one second before the next midnight.

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dayEnd(t time.Time) time.Time {
	return dayStart(t).AddDate(0, 0, 1).Add(-time.Second)
}

// trailingDays returns the window covering the last n days through the end
// of today, boundaries inclusive.
func trailingDays(now time.Time, n int) (time.Time, time.Time) {
	return dayStart(now).AddDate(0, 0, -n), dayEnd(now)
}

// precedingWindow returns the n-day window immediately before start:
// contiguous, non-overlapping, ending one second before start.
func precedingWindow(start time.Time, n int) (time.Time, time.Time) {
	end := start.Add(-time.Second)
	return end.AddDate(0, 0, -n), end
}
