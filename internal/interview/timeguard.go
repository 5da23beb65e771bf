package interview

import (
	"time"

	"github.com/spigell/hh-interviewer/internal/session"
)

// TimeGuard enforces the time and question ceilings of an interview.
type TimeGuard struct {
	MaxDuration  time.Duration
	MaxQuestions int
}

// Check reports whether the interview must conclude. The time limit is checked first,
// so it wins when both ceilings are reached at once.
func (g TimeGuard) Check(startedAt, now time.Time, questionsAsked int) (session.ConclusionReason, bool) {
	if g.Elapsed(startedAt, now) >= g.MaxDuration {
		return session.ReasonTimeLimit, true
	}
	if questionsAsked >= g.MaxQuestions {
		return session.ReasonQuestionLimit, true
	}
	return "", false
}

// Elapsed is the time spent since the interview started. It is zero before the start.
func (g TimeGuard) Elapsed(startedAt, now time.Time) time.Duration {
	if startedAt.IsZero() || now.Before(startedAt) {
		return 0
	}
	return now.Sub(startedAt)
}

// Remaining is the time left in the budget, never negative.
func (g TimeGuard) Remaining(startedAt, now time.Time) time.Duration {
	return max(0, g.MaxDuration-g.Elapsed(startedAt, now))
}
