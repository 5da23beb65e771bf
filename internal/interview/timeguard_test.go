package interview

import (
	"testing"
	"time"

	"github.com/spigell/hh-interviewer/internal/session"
)

func TestTimeGuardCheck(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	guard := TimeGuard{MaxDuration: 1800 * time.Second, MaxQuestions: 15}

	tests := []struct {
		name     string
		elapsed  time.Duration
		asked    int
		reason   session.ConclusionReason
		conclude bool
	}{
		{name: "fresh", elapsed: 0, asked: 1},
		{name: "one second left", elapsed: 1799 * time.Second, asked: 14},
		{name: "time is up", elapsed: 1800 * time.Second, asked: 3, reason: session.ReasonTimeLimit, conclude: true},
		{name: "question limit", elapsed: time.Minute, asked: 15, reason: session.ReasonQuestionLimit, conclude: true},
		{name: "both limits", elapsed: time.Hour, asked: 20, reason: session.ReasonTimeLimit, conclude: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, conclude := guard.Check(start, start.Add(tt.elapsed), tt.asked)
			if conclude != tt.conclude || reason != tt.reason {
				t.Fatalf("expected (%q, %v), got (%q, %v)", tt.reason, tt.conclude, reason, conclude)
			}
		})
	}
}

func TestTimeGuardRemaining(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	guard := TimeGuard{MaxDuration: 30 * time.Minute, MaxQuestions: 15}

	if got := guard.Remaining(start, start.Add(10*time.Minute)); got != 20*time.Minute {
		t.Fatalf("expected 20m remaining, got %s", got)
	}
	if got := guard.Remaining(start, start.Add(time.Hour)); got != 0 {
		t.Fatalf("remaining must not be negative, got %s", got)
	}
	if got := guard.Remaining(time.Time{}, start); got != 30*time.Minute {
		t.Fatalf("expected full budget before start, got %s", got)
	}
	if got := guard.Elapsed(start, start.Add(-time.Second)); got != 0 {
		t.Fatalf("clock skew must not produce negative elapsed, got %s", got)
	}
}
