// Package interview runs adaptive screening interviews: it derives a strategy from the
// uploaded documents, asks questions, evaluates answers and concludes the interview when
// the time or question budget is spent.
package interview

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/documents"
	"github.com/spigell/hh-interviewer/internal/logger"
	"github.com/spigell/hh-interviewer/internal/session"
	"github.com/spigell/hh-interviewer/internal/utils"
)

// generationAttempts covers the first call and one retry.
const generationAttempts = 2

var errLeaseGone = errors.New("lease already released")

// Engine is the interview state machine. Every state change goes through the session
// store; model calls run outside of the store lock while the session holds a lease.
type Engine struct {
	sessions    *session.Store
	documents   *documents.Store
	analyzer    *Analyzer
	questions   *QuestionGenerator
	evaluator   *Evaluator
	closer      *Closer
	transcriber ai.Transcriber
	guard       TimeGuard
	cfg         Config

	now      func() time.Time
	newLease func() string
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTranscriber enables audio answers.
func WithTranscriber(t ai.Transcriber) Option {
	return func(e *Engine) {
		e.transcriber = t
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithLeaseGenerator overrides how in-flight leases are named.
func WithLeaseGenerator(newLease func() string) Option {
	return func(e *Engine) {
		if newLease != nil {
			e.newLease = newLease
		}
	}
}

// New creates an Engine. Nil stores are replaced with empty in-memory ones.
func New(completer ai.Completer, sessions *session.Store, docs *documents.Store, cfg Config, opts ...Option) (*Engine, error) {
	if completer == nil {
		return nil, errors.New("completion client is required")
	}
	if sessions == nil {
		sessions = session.NewStore()
	}
	if docs == nil {
		docs = documents.NewStore()
	}

	// documents of an evicted session are never read again
	sessions.OnEvict(docs.Delete)

	cfg = cfg.normalize()
	e := &Engine{
		sessions:  sessions,
		documents: docs,
		guard:     TimeGuard{MaxDuration: cfg.MaxDuration, MaxQuestions: cfg.MaxQuestions},
		cfg:       cfg,
		now:       time.Now,
		newLease:  uuid.NewString,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	fields := logger.CommonFields("", completer.Model())
	e.analyzer = NewAnalyzer(completer, logger.WithFields(e.logger.Named("strategy"), fields...), cfg.MaxLogLength)
	e.questions = NewQuestionGenerator(completer, cfg.MaxFollowUpsPerTopic, logger.WithFields(e.logger.Named("questions"), fields...), cfg.MaxLogLength)
	e.evaluator = NewEvaluator(completer, cfg.MaxFollowUpsPerTopic, logger.WithFields(e.logger.Named("evaluator"), fields...), cfg.MaxLogLength)
	e.closer = NewCloser(completer, cfg.MaxDuration, logger.WithFields(e.logger.Named("closing"), fields...), cfg.MaxLogLength)

	return e, nil
}

// UploadResult describes a freshly created session.
type UploadResult struct {
	SessionID            string
	ResumeLength         int
	JobDescriptionLength int
}

// StartResult carries the first question of an interview.
type StartResult struct {
	Question       string
	Topic          string
	QuestionsAsked int
	TimeRemaining  time.Duration
}

// AnswerResult is the reaction to an answer: the next question, or the closing message
// when Concluded is set.
type AnswerResult struct {
	Answer         string
	Message        string
	Topic          string
	Concluded      bool
	Reason         session.ConclusionReason
	QuestionsAsked int
	TimeRemaining  time.Duration
}

// Status is a read-only summary of a session.
type Status struct {
	Phase          session.Phase
	QuestionsAsked int
	Elapsed        time.Duration
	Remaining      time.Duration
	Concluded      bool
	Reason         session.ConclusionReason
	InFlight       bool
}

func (s Status) ElapsedSeconds() int   { return int(s.Elapsed / time.Second) }
func (s Status) RemainingSeconds() int { return int(s.Remaining / time.Second) }

// Create registers an empty session. Its documents must be put into the document store
// before Start is called.
func (e *Engine) Create() string {
	id := e.sessions.Create()
	logger.WithSession(e.logger, id).Info("session created")
	return id
}

// Upload creates a session for the given resume and job description text.
func (e *Engine) Upload(resume, jobDescription string) (UploadResult, error) {
	docs := documents.Documents{
		Resume:         documents.Normalize(resume),
		JobDescription: documents.Normalize(jobDescription),
	}
	if missing := docs.Missing(); len(missing) > 0 {
		return UploadResult{}, newError(CodeDocumentEmpty, "empty "+strings.Join(missing, " and "), nil)
	}

	id := e.sessions.Create()
	e.documents.Put(id, docs)
	if err := e.sessions.Mutate(id, func(s *session.Session) error {
		return s.SetDocuments(docs.Resume, docs.JobDescription)
	}); err != nil {
		return UploadResult{}, storeError(err)
	}

	result := UploadResult{
		SessionID:            id,
		ResumeLength:         utf8.RuneCountInString(docs.Resume),
		JobDescriptionLength: utf8.RuneCountInString(docs.JobDescription),
	}

	logger.WithSession(e.logger, id).Info("documents uploaded",
		zap.Int("resume_length", result.ResumeLength),
		zap.Int("job_description_length", result.JobDescriptionLength),
	)
	return result, nil
}

// Start analyzes the documents, derives the strategy once and asks the introductory
// question. On failure the session returns to the created phase and Start may be retried;
// a derived strategy is kept.
func (e *Engine) Start(ctx context.Context, id string) (StartResult, error) {
	log := logger.WithSession(e.logger, id)
	lease := e.newLease()

	var (
		docs     documents.Documents
		strategy Strategy
	)
	err := e.sessions.Mutate(id, func(s *session.Session) error {
		if err := admit(s, "start", session.PhaseCreated, session.PhaseAnalyzing); err != nil {
			return err
		}

		resume, jobDescription := s.Documents()
		docs = documents.Documents{Resume: resume, JobDescription: jobDescription}
		fromStore := resume == "" && jobDescription == ""
		if fromStore {
			stored, err := e.documents.Get(id)
			if err != nil && !errors.Is(err, documents.ErrNotFound) {
				return err
			}
			docs = stored
		}

		if missing := docs.Missing(); len(missing) > 0 {
			return newError(CodeDocumentEmpty, "empty "+strings.Join(missing, " and "), nil)
		}

		if fromStore {
			if err := s.SetDocuments(docs.Resume, docs.JobDescription); err != nil {
				return err
			}
		}

		if s.Phase() == session.PhaseCreated {
			if err := s.Transition(session.PhaseAnalyzing); err != nil {
				return err
			}
		}

		strategy = Strategy{Text: s.Strategy(), Topics: s.Topics()}
		return s.Acquire(lease)
	})
	if err != nil {
		return StartResult{}, storeError(err)
	}
	defer e.release(id, lease)

	log.Info("interview analysis started", zap.String(logger.FieldPhase, session.PhaseAnalyzing.String()))

	if strategy.Text == "" {
		err := utils.Retry(ctx, generationAttempts, e.cfg.RetryBackoff, func(attempt int) error {
			var err error
			strategy, err = e.analyzer.Analyze(ctx, docs.Resume, docs.JobDescription)
			if err != nil {
				log.Warn("strategy generation attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			}
			return err
		})
		if err != nil {
			e.abortStart(id, lease, log)
			return StartResult{}, newError(CodeStrategyGenerationFailed, "could not derive the interview strategy", err)
		}

		if err := e.sessions.Mutate(id, func(s *session.Session) error {
			if !s.Holds(lease) {
				return session.ErrLeaseMismatch
			}
			return s.SetStrategy(strategy.Text, strategy.Topics)
		}); err != nil {
			return StartResult{}, storeError(err)
		}

		log.Info("interview strategy derived", zap.Strings("topics", strategy.Topics))
	}

	var question Question
	err = utils.Retry(ctx, generationAttempts, e.cfg.RetryBackoff, func(attempt int) error {
		var err error
		question, err = e.questions.Introduction(ctx)
		if err != nil {
			log.Warn("introduction generation attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
	if err != nil {
		e.abortStart(id, lease, log)
		return StartResult{}, &Error{
			Code:   CodeQuestionGenerationFailed,
			Reason: "could not generate the first question",
			Notice: questionRetryNotice,
			Err:    err,
		}
	}

	now := e.now()
	var snap session.Snapshot
	err = e.sessions.Mutate(id, func(s *session.Session) error {
		if !s.Holds(lease) {
			return session.ErrLeaseMismatch
		}
		s.RecordQuestion(session.Turn{Text: question.Text, Topic: question.Topic, Timestamp: now}, question.OpensTopic)
		if err := s.MarkStarted(now); err != nil {
			return err
		}
		if err := s.Transition(session.PhaseQuestioning); err != nil {
			return err
		}
		snap = s.Snapshot()
		return s.Release(lease)
	})
	if err != nil {
		return StartResult{}, storeError(err)
	}

	log.Info("interview started",
		zap.String(logger.FieldPhase, snap.Phase.String()),
		zap.Int("questions_asked", snap.QuestionsAsked),
	)

	return StartResult{
		Question:       question.Text,
		Topic:          question.Topic,
		QuestionsAsked: snap.QuestionsAsked,
		TimeRemaining:  e.guard.Remaining(snap.StartedAt, now),
	}, nil
}

// SubmitAnswer records the answer, then either asks the next question or concludes.
// The answer is stored before any model call, so it survives every later failure.
// A session left in evaluating by a failed call is resumed; resubmitting the same
// answer does not record it twice.
func (e *Engine) SubmitAnswer(ctx context.Context, id, answer string) (AnswerResult, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return AnswerResult{}, newError(CodeEmptyAnswer, "answer must not be empty", nil)
	}

	log := logger.WithSession(e.logger, id)
	lease := e.newLease()
	now := e.now()

	var snap session.Snapshot
	err := e.sessions.Mutate(id, func(s *session.Session) error {
		if err := admit(s, "submit answer", session.PhaseQuestioning, session.PhaseEvaluating); err != nil {
			return err
		}

		turn := session.Turn{Speaker: session.SpeakerCandidate, Text: answer, Topic: s.CurrentTopic(), Timestamp: now}
		if s.Phase() == session.PhaseQuestioning {
			if err := s.Transition(session.PhaseEvaluating); err != nil {
				return err
			}
			s.Append(turn)
		} else if last, ok := s.LastTurn(); !ok || last.Speaker != session.SpeakerCandidate || last.Text != answer {
			s.Append(turn)
		}

		if err := s.Acquire(lease); err != nil {
			return err
		}
		snap = s.Snapshot()
		return nil
	})
	if err != nil {
		return AnswerResult{}, storeError(err)
	}
	defer e.release(id, lease)

	log.Info("answer recorded",
		zap.String(logger.FieldPhase, snap.Phase.String()),
		zap.Int("turns", len(snap.Conversation)),
		zap.Duration("elapsed", e.guard.Elapsed(snap.StartedAt, now)),
	)

	if reason, ok := e.guard.Check(snap.StartedAt, now, snap.QuestionsAsked); ok {
		log.Info("interview limit reached", zap.String("reason", string(reason)))
		return e.conclude(ctx, id, lease, answer, reason, log)
	}

	decision := e.evaluate(ctx, snap, log)
	switch decision.Outcome {
	case OutcomeInsufficientMaterial:
		return e.conclude(ctx, id, lease, answer, session.ReasonInsufficientMaterial, log)
	case OutcomeEnd:
		return e.conclude(ctx, id, lease, answer, session.ReasonExplicit, log)
	}

	var question Question
	err = utils.Retry(ctx, generationAttempts, e.cfg.RetryBackoff, func(attempt int) error {
		var err error
		if decision.Outcome == OutcomeFollowUp {
			question, err = e.questions.FollowUp(ctx, snap)
		} else {
			question, err = e.questions.NextTopic(ctx, snap)
		}
		if err != nil {
			log.Warn("question generation attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
	if err != nil {
		log.Warn("question generation failed, session stays in evaluating", zap.Error(err))
		return AnswerResult{}, &Error{
			Code:   CodeQuestionGenerationFailed,
			Reason: "could not generate the next question",
			Notice: questionRetryNotice,
			Err:    err,
		}
	}

	asked := e.now()
	var after session.Snapshot
	err = e.sessions.Mutate(id, func(s *session.Session) error {
		if !s.Holds(lease) {
			return session.ErrLeaseMismatch
		}
		s.RecordQuestion(session.Turn{Text: question.Text, Topic: question.Topic, Timestamp: asked}, question.OpensTopic)
		if err := s.Transition(session.PhaseQuestioning); err != nil {
			return err
		}
		after = s.Snapshot()
		return s.Release(lease)
	})
	if err != nil {
		return AnswerResult{}, storeError(err)
	}

	log.Info("question asked",
		zap.String(logger.FieldPhase, after.Phase.String()),
		zap.String("topic", question.Topic),
		zap.Bool("follow_up", !question.OpensTopic),
		zap.Int("questions_asked", after.QuestionsAsked),
	)

	return AnswerResult{
		Answer:         answer,
		Message:        question.Text,
		Topic:          question.Topic,
		QuestionsAsked: after.QuestionsAsked,
		TimeRemaining:  e.guard.Remaining(after.StartedAt, asked),
	}, nil
}

// SubmitAudioAnswer transcribes a recorded answer and submits it like a typed one.
// Nothing is recorded when transcription fails.
func (e *Engine) SubmitAudioAnswer(ctx context.Context, id string, audio []byte, mimeType string) (AnswerResult, error) {
	snap, err := e.sessions.Get(id)
	if err != nil {
		return AnswerResult{}, storeError(err)
	}
	if err := admitSnapshot(snap, "submit answer", session.PhaseQuestioning, session.PhaseEvaluating); err != nil {
		return AnswerResult{}, err
	}

	if e.transcriber == nil {
		return AnswerResult{}, &Error{
			Code:   CodeTranscriptionFailed,
			Reason: "audio answers are not enabled",
			Notice: transcriptionNotice,
		}
	}

	text, err := e.transcriber.Transcribe(ctx, audio, mimeType)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("transcription is empty")
	}
	if err != nil {
		logger.WithSession(e.logger, id).Warn("answer transcription failed", zap.Error(err))
		return AnswerResult{}, &Error{
			Code:   CodeTranscriptionFailed,
			Reason: "could not transcribe the answer",
			Notice: transcriptionNotice,
			Err:    err,
		}
	}

	logger.WithSession(e.logger, id).Debug("answer transcribed",
		zap.String(logger.FieldModel, e.transcriber.Model()),
		zap.Int("audio_bytes", len(audio)),
		zap.Int("text_length", utf8.RuneCountInString(text)),
	)

	return e.SubmitAnswer(ctx, id, text)
}

// End concludes the interview on request.
func (e *Engine) End(ctx context.Context, id string) (AnswerResult, error) {
	log := logger.WithSession(e.logger, id)
	lease := e.newLease()

	err := e.sessions.Mutate(id, func(s *session.Session) error {
		if err := admit(s, "end", session.PhaseQuestioning, session.PhaseEvaluating, session.PhaseConcluding); err != nil {
			return err
		}
		return s.Acquire(lease)
	})
	if err != nil {
		return AnswerResult{}, storeError(err)
	}
	defer e.release(id, lease)

	log.Info("interview end requested")
	return e.conclude(ctx, id, lease, "", session.ReasonExplicit, log)
}

// Status summarizes a session. Elapsed time stops counting at the conclusion.
func (e *Engine) Status(id string) (Status, error) {
	snap, err := e.sessions.Get(id)
	if err != nil {
		return Status{}, storeError(err)
	}

	end := e.now()
	if snap.Concluded && !snap.ConcludedAt.IsZero() {
		end = snap.ConcludedAt
	}

	return Status{
		Phase:          snap.Phase,
		QuestionsAsked: snap.QuestionsAsked,
		Elapsed:        e.guard.Elapsed(snap.StartedAt, end),
		Remaining:      e.guard.Remaining(snap.StartedAt, end),
		Concluded:      snap.Concluded,
		Reason:         snap.ConclusionReason,
		InFlight:       snap.InFlight,
	}, nil
}

// Snapshot returns the full state of a session.
func (e *Engine) Snapshot(id string) (session.Snapshot, error) {
	snap, err := e.sessions.Get(id)
	if err != nil {
		return session.Snapshot{}, storeError(err)
	}
	return snap, nil
}

func (e *Engine) evaluate(ctx context.Context, snap session.Snapshot, log *zap.Logger) Decision {
	var decision Decision
	err := utils.Retry(ctx, generationAttempts, e.cfg.RetryBackoff, func(attempt int) error {
		var err error
		decision, err = e.evaluator.Evaluate(ctx, snap)
		if err != nil {
			log.Warn("answer evaluation attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
	if err != nil {
		log.Warn("answer evaluation failed, moving to the next topic", zap.Error(err))
		return Decision{Outcome: OutcomeNextTopic, Reason: "evaluation unavailable"}
	}

	if decision.Outcome == OutcomeFollowUp && snap.FollowUps[snap.CurrentTopic] >= e.cfg.MaxFollowUpsPerTopic {
		log.Info("follow-up limit reached for topic",
			zap.String("topic", snap.CurrentTopic),
			zap.Int("max_follow_ups", e.cfg.MaxFollowUpsPerTopic),
		)
		decision.Outcome = OutcomeNextTopic
	}

	log.Info("answer evaluated",
		zap.String("decision", string(decision.Outcome)),
		zap.String("reason", decision.Reason),
	)
	return decision
}

// conclude moves a leased session through concluding to concluded. It only fails when
// the session disappeared or lost its lease.
func (e *Engine) conclude(ctx context.Context, id, lease, answer string, reason session.ConclusionReason, log *zap.Logger) (AnswerResult, error) {
	var snap session.Snapshot
	err := e.sessions.Mutate(id, func(s *session.Session) error {
		if !s.Holds(lease) {
			return session.ErrLeaseMismatch
		}
		if s.Phase() != session.PhaseConcluding {
			if err := s.Transition(session.PhaseConcluding); err != nil {
				return err
			}
		}
		snap = s.Snapshot()
		return nil
	})
	if err != nil {
		return AnswerResult{}, storeError(err)
	}

	log.Info("concluding interview",
		zap.String(logger.FieldPhase, snap.Phase.String()),
		zap.String("reason", string(reason)),
	)

	closing := e.closer.Closing(ctx, snap, reason)
	now := e.now()

	err = e.sessions.Mutate(id, func(s *session.Session) error {
		if !s.Holds(lease) {
			return session.ErrLeaseMismatch
		}
		if err := s.Conclude(reason, session.Turn{Text: closing, Timestamp: now}); err != nil {
			return err
		}
		return s.Release(lease)
	})
	if err != nil {
		return AnswerResult{}, storeError(err)
	}

	log.Info("interview concluded",
		zap.String(logger.FieldPhase, session.PhaseConcluded.String()),
		zap.String("reason", string(reason)),
		zap.Int("questions_asked", snap.QuestionsAsked),
	)

	return AnswerResult{
		Answer:         answer,
		Message:        closing,
		Concluded:      true,
		Reason:         reason,
		QuestionsAsked: snap.QuestionsAsked,
		TimeRemaining:  e.guard.Remaining(snap.StartedAt, now),
	}, nil
}

// abortStart puts a session whose start failed back into the created phase.
func (e *Engine) abortStart(id, lease string, log *zap.Logger) {
	err := e.sessions.Mutate(id, func(s *session.Session) error {
		if !s.Holds(lease) {
			return errLeaseGone
		}
		if err := s.Transition(session.PhaseCreated); err != nil {
			return err
		}
		return s.Release(lease)
	})
	if err != nil && !errors.Is(err, errLeaseGone) {
		log.Error("could not reset the session after a failed start", zap.Error(err))
		return
	}
	log.Info("start failed, session is back in created", zap.String(logger.FieldPhase, session.PhaseCreated.String()))
}

// release frees the lease if a failed or abandoned call still holds it. The phase is
// left as is, so the next call resumes from there.
func (e *Engine) release(id, lease string) {
	err := e.sessions.Mutate(id, func(s *session.Session) error {
		if !s.Holds(lease) {
			return errLeaseGone
		}
		return s.Release(lease)
	})
	if err != nil && !errors.Is(err, errLeaseGone) && !errors.Is(err, session.ErrNotFound) {
		logger.WithSession(e.logger, id).Error("could not release the session lease", zap.Error(err))
	}
}

// admit checks that op may run on s now.
func admit(s *session.Session, op string, allowed ...session.Phase) error {
	return checkAdmission(s.Concluded(), s.InFlight(), s.Phase(), op, allowed)
}

// admitSnapshot runs the admit checks on a snapshot. The result may be stale by the time
// the caller acts; it only spares model calls that are bound to be rejected.
func admitSnapshot(snap session.Snapshot, op string, allowed ...session.Phase) error {
	return checkAdmission(snap.Concluded, snap.InFlight, snap.Phase, op, allowed)
}

func checkAdmission(concluded, inFlight bool, phase session.Phase, op string, allowed []session.Phase) error {
	if concluded {
		return newError(CodeAlreadyConcluded, "interview is already concluded", nil)
	}
	if inFlight {
		return newError(CodeRequestAlreadyInFlight, "another request for this session is in progress", session.ErrInFlight)
	}
	if !slices.Contains(allowed, phase) {
		return newError(CodeInvalidPhaseTransition,
			fmt.Sprintf("%s is not allowed in phase %s", op, phase), session.ErrInvalidTransition)
	}
	return nil
}

// storeError maps store and session errors to engine errors.
func storeError(err error) error {
	var engineErr *Error
	switch {
	case errors.As(err, &engineErr):
		return err
	case errors.Is(err, session.ErrNotFound):
		return newError(CodeNotFound, "session not found", err)
	case errors.Is(err, session.ErrInFlight), errors.Is(err, session.ErrLeaseMismatch):
		return newError(CodeRequestAlreadyInFlight, "another request for this session is in progress", err)
	case errors.Is(err, session.ErrInvalidTransition):
		return newError(CodeInvalidPhaseTransition, err.Error(), err)
	default:
		return err
	}
}
