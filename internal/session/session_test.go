package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func TestRecordQuestionCounting(t *testing.T) {
	s := newSession("id", fixedNow)

	s.RecordQuestion(Turn{Text: "Tell me about yourself", Topic: "introduction"}, true)
	s.RecordQuestion(Turn{Text: "Which databases?", Topic: "Go services"}, true)
	s.RecordQuestion(Turn{Text: "Why Postgres?", Topic: "Go services"}, false)

	require.Equal(t, 2, s.QuestionsAsked())
	require.Equal(t, 1, s.FollowUps("Go services"))
	require.Equal(t, "Go services", s.CurrentTopic())
	require.Equal(t, 3, s.Len())

	for _, turn := range s.Conversation() {
		require.Equal(t, SpeakerInterviewer, turn.Speaker)
	}
}

func TestSetOnceFields(t *testing.T) {
	s := newSession("id", fixedNow)

	require.NoError(t, s.SetDocuments("resume", "jd"))
	require.ErrorIs(t, s.SetDocuments("other", "other"), ErrAlreadySet)

	require.Error(t, s.SetStrategy("   ", nil))
	require.NoError(t, s.SetStrategy("plan", []string{"a"}))
	require.ErrorIs(t, s.SetStrategy("plan 2", nil), ErrAlreadySet)
	require.Equal(t, "plan", s.Strategy())

	require.NoError(t, s.MarkStarted(fixedNow))
	require.ErrorIs(t, s.MarkStarted(fixedNow.Add(time.Minute)), ErrAlreadySet)
	require.Equal(t, fixedNow, s.StartedAt())
}

func TestConcludeRequiresConcludingPhase(t *testing.T) {
	s := newSession("id", fixedNow)

	require.ErrorIs(t, s.Conclude(ReasonExplicit, Turn{Text: "bye"}), ErrInvalidTransition)
	require.Zero(t, s.Len())
	require.False(t, s.Concluded())

	s.phase = PhaseConcluding
	require.NoError(t, s.Conclude(ReasonTimeLimit, Turn{Text: "bye"}))
	require.True(t, s.Concluded())
	require.Equal(t, ReasonTimeLimit, s.ConclusionReason())
	require.Equal(t, PhaseConcluded, s.Phase())

	last, ok := s.LastTurn()
	require.True(t, ok)
	require.Equal(t, SpeakerInterviewer, last.Speaker)

	require.ErrorIs(t, s.Conclude(ReasonExplicit, Turn{Text: "again"}), ErrAlreadySet)
	require.Equal(t, ReasonTimeLimit, s.ConclusionReason())
}

func TestLeaseLifecycle(t *testing.T) {
	s := newSession("id", fixedNow)

	require.Error(t, s.Acquire(""))
	require.NoError(t, s.Acquire("a"))
	require.True(t, s.InFlight())
	require.ErrorIs(t, s.Acquire("b"), ErrInFlight)
	require.ErrorIs(t, s.Release("b"), ErrLeaseMismatch)
	require.True(t, s.Holds("a"))
	require.NoError(t, s.Release("a"))
	require.False(t, s.InFlight())
}

func TestCloneIsIndependent(t *testing.T) {
	s := newSession("id", fixedNow)
	require.NoError(t, s.SetStrategy("plan", []string{"a", "b"}))
	s.RecordQuestion(Turn{Text: "q", Topic: "a"}, false)

	c := s.clone()
	c.Append(Turn{Speaker: SpeakerCandidate, Text: "answer"})
	c.topics[0] = "changed"
	c.followUps["a"] = 5

	require.Equal(t, 1, s.Len())
	require.Equal(t, []string{"a", "b"}, s.Topics())
	require.Equal(t, 1, s.FollowUps("a"))
}

func TestSnapshotCopiesConversation(t *testing.T) {
	s := newSession("id", fixedNow)
	s.Append(Turn{Speaker: SpeakerCandidate, Text: "hello"})

	snap := s.Snapshot()
	snap.Conversation[0].Text = "mutated"

	require.Equal(t, "hello", s.Conversation()[0].Text)

	last, ok := snap.LastTurn()
	require.True(t, ok)
	require.Equal(t, "mutated", last.Text)
}
