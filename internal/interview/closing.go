package interview

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/session"
	"github.com/spigell/hh-interviewer/internal/utils"
)

const genericClosing = "Thank you for taking the time to interview with us today. We appreciate your interest in the position and will be in touch regarding next steps."

var reasonDescriptions = map[session.ConclusionReason]string{
	session.ReasonTimeLimit:            "the time for the screening is up",
	session.ReasonQuestionLimit:        "all planned questions have been asked",
	session.ReasonInsufficientMaterial: "there is not enough material in the resume and job description to continue",
	session.ReasonExplicit:             "the interview was ended on request",
}

// Closer writes the last interviewer message. It never fails: when the model cannot
// answer, a fixed message for the conclusion reason is used.
type Closer struct {
	completer   ai.Completer
	maxDuration time.Duration
	logger      *zap.Logger
	maxLogLen   int
}

// NewCloser creates a Closer backed by completer.
func NewCloser(completer ai.Completer, maxDuration time.Duration, logger *zap.Logger, maxLogLength int) *Closer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Closer{
		completer:   completer,
		maxDuration: maxDuration,
		logger:      logger,
		maxLogLen:   maxLogLength,
	}
}

// Closing returns the closing message for snap. A done context skips the model call.
func (c *Closer) Closing(ctx context.Context, snap session.Snapshot, reason session.ConclusionReason) string {
	if err := ctx.Err(); err != nil {
		c.logger.Warn("closing message skipped, using fallback", zap.Error(err))
		return c.Fallback(reason, snap.QuestionsAsked)
	}

	system, user := closingPrompt.render(map[string]string{
		"REASON":       reasonDescriptions[reason],
		"QUESTIONS":    strconv.Itoa(snap.QuestionsAsked),
		"CONVERSATION": formatConversation(snap.Conversation),
	})

	raw, err := c.completer.GenerateContent(ctx, system, user)
	if err != nil {
		c.logger.Warn("closing message generation failed, using fallback", zap.Error(err))
		return c.Fallback(reason, snap.QuestionsAsked)
	}

	text := cleanQuestion(raw)
	if text == "" {
		c.logger.Warn("closing message is empty, using fallback")
		return c.Fallback(reason, snap.QuestionsAsked)
	}

	c.logger.Debug("closing message", zap.String("response_preview", utils.TruncateForLog(text, c.maxLogLen)))
	return text
}

// Fallback returns the fixed closing message for reason.
func (c *Closer) Fallback(reason session.ConclusionReason, questionsAsked int) string {
	switch reason {
	case session.ReasonTimeLimit:
		return fmt.Sprintf("Thank you for your time! We've reached the %s mark for this screening interview. "+
			"We covered %d areas, and I appreciate your detailed responses. We'll be in touch soon regarding next steps.",
			durationLabel(c.maxDuration), questionsAsked)
	case session.ReasonQuestionLimit:
		return fmt.Sprintf("Thank you so much for your thoughtful answers! We've covered %d important topics today. "+
			"I have all the information I need for this screening round. "+
			"We'll review your responses and get back to you soon about next steps.", questionsAsked)
	default:
		return genericClosing
	}
}

// durationLabel renders a limit like "30-minute".
func durationLabel(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		return strconv.Itoa(int(d/time.Minute)) + "-minute"
	}
	return strconv.Itoa(int(d/time.Second)) + "-second"
}
