package session

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrInFlight          = errors.New("request already in flight")
	ErrLeaseMismatch     = errors.New("session lease is held by another request")
	ErrAlreadySet        = errors.New("value is already set")
)

// Speaker attributes a turn.
type Speaker string

const (
	SpeakerInterviewer Speaker = "interviewer"
	SpeakerCandidate   Speaker = "candidate"
)

// ConclusionReason classifies why an interview ended.
type ConclusionReason string

const (
	ReasonTimeLimit            ConclusionReason = "time_limit"
	ReasonQuestionLimit        ConclusionReason = "question_limit"
	ReasonInsufficientMaterial ConclusionReason = "insufficient_material"
	ReasonExplicit             ConclusionReason = "explicit"
)

// Turn is one utterance. Turns are immutable once appended.
type Turn struct {
	Speaker   Speaker   `yaml:"speaker" json:"speaker"`
	Text      string    `yaml:"text" json:"text"`
	Topic     string    `yaml:"topic,omitempty" json:"topic,omitempty"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
}

// Session is the state of one interview. It is only ever changed through Store.Mutate,
// which hands the mutator a private copy and publishes it only if the mutator succeeds.
type Session struct {
	id                 string
	resumeText         string
	jobDescriptionText string

	strategy     string
	topics       []string
	currentTopic string
	followUps    map[string]int

	conversation   []Turn
	questionsAsked int

	createdAt    time.Time
	startedAt    time.Time
	lastActivity time.Time

	concluded   bool
	concludedAt time.Time
	reason      ConclusionReason
	phase       Phase

	lease string
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		id:           id,
		phase:        PhaseCreated,
		followUps:    make(map[string]int),
		createdAt:    now,
		lastActivity: now,
	}
}

func (s *Session) clone() *Session {
	c := *s
	c.topics = slices.Clone(s.topics)
	c.conversation = slices.Clone(s.conversation)
	c.followUps = maps.Clone(s.followUps)
	if c.followUps == nil {
		c.followUps = make(map[string]int)
	}
	return &c
}

func (s *Session) ID() string                         { return s.id }
func (s *Session) Phase() Phase                       { return s.phase }
func (s *Session) Strategy() string                   { return s.strategy }
func (s *Session) Topics() []string                   { return slices.Clone(s.topics) }
func (s *Session) CurrentTopic() string               { return s.currentTopic }
func (s *Session) FollowUps(topic string) int         { return s.followUps[topic] }
func (s *Session) QuestionsAsked() int                { return s.questionsAsked }
func (s *Session) StartedAt() time.Time               { return s.startedAt }
func (s *Session) Concluded() bool                    { return s.concluded }
func (s *Session) ConclusionReason() ConclusionReason { return s.reason }
func (s *Session) InFlight() bool                     { return s.lease != "" }
func (s *Session) Len() int                           { return len(s.conversation) }

// Documents returns the resume and job description text.
func (s *Session) Documents() (resume, jobDescription string) {
	return s.resumeText, s.jobDescriptionText
}

// Conversation returns a copy of the turns in append order.
func (s *Session) Conversation() []Turn {
	return slices.Clone(s.conversation)
}

// LastTurn returns the most recent turn, if any.
func (s *Session) LastTurn() (Turn, bool) {
	if len(s.conversation) == 0 {
		return Turn{}, false
	}
	return s.conversation[len(s.conversation)-1], true
}

// SetDocuments stores the uploaded document text. It can only be done once.
func (s *Session) SetDocuments(resume, jobDescription string) error {
	if s.resumeText != "" || s.jobDescriptionText != "" {
		return fmt.Errorf("documents: %w", ErrAlreadySet)
	}
	s.resumeText = resume
	s.jobDescriptionText = jobDescription
	return nil
}

// SetStrategy caches the interview strategy and its topics. It can only be done once.
func (s *Session) SetStrategy(strategy string, topics []string) error {
	if s.strategy != "" {
		return fmt.Errorf("strategy: %w", ErrAlreadySet)
	}
	if strings.TrimSpace(strategy) == "" {
		return errors.New("strategy must not be empty")
	}
	s.strategy = strategy
	s.topics = slices.Clone(topics)
	return nil
}

// Transition moves the session to next if the phase table allows it.
func (s *Session) Transition(next Phase) error {
	if !s.phase.CanTransition(next) {
		return &TransitionError{From: s.phase, To: next}
	}
	s.phase = next
	return nil
}

// Append adds a turn to the end of the conversation.
func (s *Session) Append(turn Turn) {
	s.conversation = append(s.conversation, turn)
}

// RecordQuestion appends an interviewer question. A question that opens a topic
// counts towards questions asked; a follow-up counts towards the topic's follow-ups.
func (s *Session) RecordQuestion(turn Turn, opensTopic bool) {
	turn.Speaker = SpeakerInterviewer
	s.Append(turn)
	s.currentTopic = turn.Topic
	if opensTopic {
		s.questionsAsked++
		return
	}
	s.followUps[turn.Topic]++
}

// MarkStarted sets the time-budget origin. It can only be done once.
func (s *Session) MarkStarted(at time.Time) error {
	if !s.startedAt.IsZero() {
		return fmt.Errorf("started at: %w", ErrAlreadySet)
	}
	s.startedAt = at
	return nil
}

// Conclude appends the closing turn and ends the session for good.
// The session must be in the concluding phase.
func (s *Session) Conclude(reason ConclusionReason, closing Turn) error {
	if s.concluded {
		return fmt.Errorf("conclusion: %w", ErrAlreadySet)
	}
	if err := s.Transition(PhaseConcluded); err != nil {
		return err
	}
	closing.Speaker = SpeakerInterviewer
	s.Append(closing)
	s.concluded = true
	s.concludedAt = closing.Timestamp
	s.reason = reason
	return nil
}

// Acquire marks the session as having a request in flight.
func (s *Session) Acquire(lease string) error {
	if lease == "" {
		return errors.New("lease must not be empty")
	}
	if s.lease != "" {
		return ErrInFlight
	}
	s.lease = lease
	return nil
}

// Holds reports whether lease owns the in-flight slot.
func (s *Session) Holds(lease string) bool {
	return lease != "" && s.lease == lease
}

// Release frees the in-flight slot owned by lease.
func (s *Session) Release(lease string) error {
	if !s.Holds(lease) {
		return ErrLeaseMismatch
	}
	s.lease = ""
	return nil
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID                 string           `yaml:"id" json:"id"`
	Phase              Phase            `yaml:"phase" json:"phase"`
	ResumeText         string           `yaml:"-" json:"-"`
	JobDescriptionText string           `yaml:"-" json:"-"`
	Strategy           string           `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	Topics             []string         `yaml:"topics,omitempty" json:"topics,omitempty"`
	CurrentTopic       string           `yaml:"current_topic,omitempty" json:"current_topic,omitempty"`
	Conversation       []Turn           `yaml:"conversation" json:"conversation"`
	QuestionsAsked     int              `yaml:"questions_asked" json:"questions_asked"`
	FollowUps          map[string]int   `yaml:"follow_ups,omitempty" json:"follow_ups,omitempty"`
	CreatedAt          time.Time        `yaml:"created_at" json:"created_at"`
	StartedAt          time.Time        `yaml:"started_at,omitempty" json:"started_at,omitempty"`
	LastActivity       time.Time        `yaml:"last_activity" json:"last_activity"`
	Concluded          bool             `yaml:"concluded" json:"concluded"`
	ConcludedAt        time.Time        `yaml:"concluded_at,omitempty" json:"concluded_at,omitempty"`
	ConclusionReason   ConclusionReason `yaml:"conclusion_reason,omitempty" json:"conclusion_reason,omitempty"`
	InFlight           bool             `yaml:"-" json:"-"`
}

// Snapshot copies the session into a read-only view.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:                 s.id,
		Phase:              s.phase,
		ResumeText:         s.resumeText,
		JobDescriptionText: s.jobDescriptionText,
		Strategy:           s.strategy,
		Topics:             slices.Clone(s.topics),
		CurrentTopic:       s.currentTopic,
		Conversation:       slices.Clone(s.conversation),
		QuestionsAsked:     s.questionsAsked,
		FollowUps:          maps.Clone(s.followUps),
		CreatedAt:          s.createdAt,
		StartedAt:          s.startedAt,
		LastActivity:       s.lastActivity,
		Concluded:          s.concluded,
		ConcludedAt:        s.concludedAt,
		ConclusionReason:   s.reason,
		InFlight:           s.lease != "",
	}
}

// LastTurn returns the most recent turn of the snapshot, if any.
func (s Snapshot) LastTurn() (Turn, bool) {
	if len(s.Conversation) == 0 {
		return Turn{}, false
	}
	return s.Conversation[len(s.Conversation)-1], true
}
