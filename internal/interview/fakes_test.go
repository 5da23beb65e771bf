package interview

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/documents"
	"github.com/spigell/hh-interviewer/internal/session"
)

const (
	kindStrategy     = "strategy"
	kindIntroduction = "introduction"
	kindQuestion     = "question"
	kindFollowUp     = "follow_up"
	kindEvaluate     = "evaluate"
	kindClosing      = "closing"
)

const testStrategy = `Key matching qualifications: solid backend experience.

Topics:
1. Distributed systems design and trade-offs
2. Go concurrency patterns in production
3. Incident response and on-call ownership`

type handler func(call int, system, user string) (string, error)

// fakeCompleter answers by prompt kind and counts calls per kind.
type fakeCompleter struct {
	mu       sync.Mutex
	calls    map[string]int
	users    map[string][]string
	handlers map[string]handler
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{
		calls: make(map[string]int),
		users: make(map[string][]string),
		handlers: map[string]handler{
			kindStrategy:     reply(testStrategy),
			kindIntroduction: reply("Thanks for joining! Could you tell me a bit about yourself?"),
			kindQuestion: func(call int, _, _ string) (string, error) {
				return fmt.Sprintf("Topic question %d?", call), nil
			},
			kindFollowUp: func(call int, _, _ string) (string, error) {
				return fmt.Sprintf("Follow-up %d: can you give an example?", call), nil
			},
			kindEvaluate: reply(`{"decision": "next_topic", "reason": "complete answer"}`),
			kindClosing:  reply("Thank you for your time today. We will be in touch."),
		},
	}
}

func reply(text string) handler {
	return func(int, string, string) (string, error) { return text, nil }
}

func fail(err error) handler {
	return func(int, string, string) (string, error) { return "", err }
}

func (f *fakeCompleter) set(kind string, h handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[kind] = h
}

func (f *fakeCompleter) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

func (f *fakeCompleter) lastUser(kind string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	prompts := f.users[kind]
	if len(prompts) == 0 {
		return ""
	}
	return prompts[len(prompts)-1]
}

func (f *fakeCompleter) GenerateContent(ctx context.Context, system, user string) (string, error) {
	kind := kindOf(system)

	f.mu.Lock()
	f.calls[kind]++
	call := f.calls[kind]
	f.users[kind] = append(f.users[kind], user)
	h := f.handlers[kind]
	f.mu.Unlock()

	if h == nil {
		return "", fmt.Errorf("no handler for %s", kind)
	}
	return h(call, system, user)
}

func (f *fakeCompleter) Model() string { return "fake-model" }

func kindOf(system string) string {
	switch {
	case strings.Contains(system, "preparing a short screening interview"):
		return kindStrategy
	case strings.Contains(system, "You are starting"):
		return kindIntroduction
	case strings.Contains(system, "CURRENT FOCUS"):
		return kindQuestion
	case strings.Contains(system, "follow-up question"):
		return kindFollowUp
	case strings.Contains(system, "You are evaluating"):
		return kindEvaluate
	case strings.Contains(system, "wrapping up"):
		return kindClosing
	default:
		return "unknown"
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTranscriber struct {
	text  string
	err   error
	calls atomic.Int32
}

func (f *fakeTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

func (f *fakeTranscriber) Model() string { return "fake-whisper" }

type harness struct {
	engine    *Engine
	completer *fakeCompleter
	sessions  *session.Store
	documents *documents.Store
	clock     *fakeClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBackoff = 0
	return cfg
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()

	clock := newFakeClock()
	completer := newFakeCompleter()
	sessions := session.NewStore(session.WithClock(clock.Now))
	docs := documents.NewStore()

	opts = append([]Option{WithClock(clock.Now), WithLogger(zap.NewNop())}, opts...)
	engine, err := New(completer, sessions, docs, cfg, opts...)
	require.NoError(t, err)

	return &harness{engine: engine, completer: completer, sessions: sessions, documents: docs, clock: clock}
}

const (
	testResume = "Senior Go engineer. Eight years building payment platforms, Kafka, PostgreSQL, Kubernetes."
	testJob    = "Backend engineer for a high-load payments team. Go, distributed systems, on-call rotation."
)

// started uploads the test documents and runs Start.
func (h *harness) started(t *testing.T) string {
	t.Helper()

	up, err := h.engine.Upload(testResume, testJob)
	require.NoError(t, err)

	_, err = h.engine.Start(context.Background(), up.SessionID)
	require.NoError(t, err)
	return up.SessionID
}

func (h *harness) snapshot(t *testing.T, id string) session.Snapshot {
	t.Helper()
	snap, err := h.sessions.Get(id)
	require.NoError(t, err)
	return snap
}

func countSpeaker(turns []session.Turn, speaker session.Speaker) int {
	n := 0
	for _, turn := range turns {
		if turn.Speaker == speaker {
			n++
		}
	}
	return n
}
