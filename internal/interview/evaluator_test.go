package interview

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/session"
)

func TestParseDecision(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		outcome Outcome
		reason  string
		wantErr bool
	}{
		{name: "json", raw: `{"decision": "follow_up", "reason": "needs an example"}`, outcome: OutcomeFollowUp, reason: "needs an example"},
		{name: "fenced", raw: "```json\n{\"decision\": \"next-topic\"}\n```", outcome: OutcomeNextTopic},
		{name: "outcome key", raw: `{"outcome": "Insufficient Material"}`, outcome: OutcomeInsufficientMaterial},
		{name: "follow_up flag", raw: `{"follow_up": "yes", "reason": 42}`, outcome: OutcomeFollowUp, reason: "42"},
		{name: "follow_up false", raw: `{"follow_up": false}`, outcome: OutcomeNextTopic},
		{name: "bare yes", raw: "Yes.", outcome: OutcomeFollowUp},
		{name: "bare no", raw: "no", outcome: OutcomeNextTopic},
		{name: "end", raw: `{"decision": "stop"}`, outcome: OutcomeEnd},
		{name: "unknown word", raw: "maybe", wantErr: true},
		{name: "unknown decision", raw: `{"decision": "later"}`, wantErr: true},
		{name: "broken json", raw: `{"decision": `, wantErr: true},
		{name: "empty", raw: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDecision(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Outcome != tt.outcome {
				t.Fatalf("expected outcome %s, got %s", tt.outcome, got.Outcome)
			}
			if got.Reason != tt.reason {
				t.Fatalf("expected reason %q, got %q", tt.reason, got.Reason)
			}
		})
	}
}

func TestLastExchange(t *testing.T) {
	t.Parallel()

	turns := []session.Turn{
		{Speaker: session.SpeakerInterviewer, Text: "Intro?"},
		{Speaker: session.SpeakerCandidate, Text: "Hi."},
		{Speaker: session.SpeakerInterviewer, Text: "Tell me about Kafka."},
		{Speaker: session.SpeakerCandidate, Text: "We used it for events."},
		{Speaker: session.SpeakerCandidate, Text: "And for CDC."},
	}

	question, answer := lastExchange(turns)
	if question != "Tell me about Kafka." {
		t.Fatalf("unexpected question: %q", question)
	}
	if answer != "We used it for events.\nAnd for CDC." {
		t.Fatalf("unexpected answer: %q", answer)
	}
}

func TestEvaluatorPrompt(t *testing.T) {
	completer := newFakeCompleter()
	evaluator := NewEvaluator(completer, 2, zap.NewNop(), 0)

	snap := session.Snapshot{
		Strategy:     "Focus on Go.",
		CurrentTopic: "Go concurrency patterns",
		FollowUps:    map[string]int{"Go concurrency patterns": 1},
		Conversation: []session.Turn{
			{Speaker: session.SpeakerInterviewer, Text: "How do you use channels?"},
			{Speaker: session.SpeakerCandidate, Text: "For pipelines."},
		},
	}

	decision, err := evaluator.Evaluate(context.Background(), snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Outcome != OutcomeNextTopic || decision.Raw == "" {
		t.Fatalf("unexpected decision: %+v", decision)
	}

	user := completer.lastUser(kindEvaluate)
	for _, want := range []string{"Focus on Go.", "How do you use channels?", "For pipelines.", "follow-ups asked: 1 of max 2"} {
		if !strings.Contains(user, want) {
			t.Fatalf("prompt misses %q:\n%s", want, user)
		}
	}
}
