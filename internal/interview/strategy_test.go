package interview

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

func TestExtractTopics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		strategy string
		expect   []string
	}{
		{
			name: "numbered list",
			strategy: `Analysis:
1. Kubernetes operations at scale
2. Short
3. **Go performance tuning**`,
			expect: []string{"Kubernetes operations at scale", "Go performance tuning"},
		},
		{
			name: "bullets keep trailing numbers",
			strategy: `- Migration to PostgreSQL 16
* Leading a team of 5`,
			expect: []string{"Migration to PostgreSQL 16", "Leading a team of 5"},
		},
		{
			name: "at most five",
			strategy: `- Topic number one here
- Topic number two here
- Topic number three here
- Topic number four here
- Topic number five here
- Topic number six here`,
			expect: []string{
				"Topic number one here",
				"Topic number two here",
				"Topic number three here",
				"Topic number four here",
				"Topic number five here",
			},
		},
		{
			name:     "defaults",
			strategy: "Ask about the candidate's experience.",
			expect:   defaultTopics,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractTopics(tt.strategy)
			if !reflect.DeepEqual(got, tt.expect) {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestExtractTopicsDefaultsAreCopied(t *testing.T) {
	got := extractTopics("")
	got[0] = "changed"
	if defaultTopics[0] != "Technical skills" {
		t.Fatalf("default topics were modified: %q", defaultTopics)
	}
}

func TestAnalyzerErrors(t *testing.T) {
	completer := newFakeCompleter()
	analyzer := NewAnalyzer(completer, zap.NewNop(), 0)

	completer.set(kindStrategy, reply("   "))
	if _, err := analyzer.Analyze(context.Background(), "resume", "job"); err == nil {
		t.Fatal("expected error for empty strategy")
	}

	boom := errors.New("boom")
	completer.set(kindStrategy, fail(boom))
	if _, err := analyzer.Analyze(context.Background(), "resume", "job"); !errors.Is(err, boom) {
		t.Fatalf("expected completion error, got %v", err)
	}
}
