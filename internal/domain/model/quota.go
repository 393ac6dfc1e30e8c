package model

import "time"

// Limit types meter distinct endpoint families against separate daily counters.
const (
	LimitConversations = "conversation_count"
	LimitAdvice        = "advice_count"
	LimitSuggestions   = "suggestion_count"
)

// LimitTypes lists every known limit type in reporting order.
var LimitTypes = []string{LimitConversations, LimitAdvice, LimitSuggestions}

// QuotaReservation is the outcome of an atomic reserve attempt.
// Allowed=false is the expected limit-exceeded signal path, not an error;
// Count reflects the counter after the attempt either way.
type QuotaReservation struct {
	Allowed bool
	Count   int
	Limit   int
}

// QuotaStatus is a read-only snapshot of one daily counter.
type QuotaStatus struct {
	LimitType string
	Used      int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// NextResetTime returns the upcoming UTC midnight, when daily counters roll over.
func NextResetTime(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}

// DayKey formats t as the UTC day bucket used to key quota counters.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
