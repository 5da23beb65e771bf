package interview

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/session"
	"github.com/spigell/hh-interviewer/internal/utils"
)

// Outcome is the evaluator's routing decision for the latest answer.
type Outcome string

const (
	OutcomeFollowUp             Outcome = "follow_up"
	OutcomeNextTopic            Outcome = "next_topic"
	OutcomeInsufficientMaterial Outcome = "insufficient_material"
	// OutcomeEnd means the candidate asked to stop.
	OutcomeEnd Outcome = "end"
)

var outcomeAliases = map[string]Outcome{
	"follow_up":             OutcomeFollowUp,
	"followup":              OutcomeFollowUp,
	"yes":                   OutcomeFollowUp,
	"next_topic":            OutcomeNextTopic,
	"next":                  OutcomeNextTopic,
	"move_on":               OutcomeNextTopic,
	"no":                    OutcomeNextTopic,
	"insufficient_material": OutcomeInsufficientMaterial,
	"insufficient":          OutcomeInsufficientMaterial,
	"end":                   OutcomeEnd,
	"stop":                  OutcomeEnd,
	"conclude":              OutcomeEnd,
}

// Decision is the parsed evaluator reply.
type Decision struct {
	Outcome Outcome
	Reason  string
	Raw     string
}

type decisionPayload struct {
	Decision string `mapstructure:"decision"`
	Outcome  string `mapstructure:"outcome"`
	FollowUp any    `mapstructure:"follow_up"`
	Reason   any    `mapstructure:"reason"`
}

// Evaluator inspects the latest answer and decides how the interview continues.
type Evaluator struct {
	completer    ai.Completer
	maxFollowUps int
	logger       *zap.Logger
	maxLogLen    int
}

// NewEvaluator creates an Evaluator backed by completer.
func NewEvaluator(completer ai.Completer, maxFollowUps int, logger *zap.Logger, maxLogLength int) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Evaluator{
		completer:    completer,
		maxFollowUps: maxFollowUps,
		logger:       logger,
		maxLogLen:    maxLogLength,
	}
}

// Evaluate asks the model about the trailing candidate answer of snap.
func (e *Evaluator) Evaluate(ctx context.Context, snap session.Snapshot) (Decision, error) {
	question, answer := lastExchange(snap.Conversation)
	topic := snap.CurrentTopic
	if topic == "" {
		topic = generalTopic
	}

	system, user := evaluatePrompt.render(map[string]string{
		"STRATEGY":       strategyOrDefault(snap.Strategy),
		"TOPIC":          topic,
		"FOLLOW_UPS":     strconv.Itoa(snap.FollowUps[snap.CurrentTopic]),
		"MAX_FOLLOW_UPS": strconv.Itoa(e.maxFollowUps),
		"QUESTION":       question,
		"ANSWER":         answer,
	})

	e.logger.Debug("evaluation request",
		zap.Int("prompt_length", utf8.RuneCountInString(user)),
		zap.String("prompt_preview", utils.TruncateForLog(user, e.maxLogLen)),
	)

	raw, err := e.completer.GenerateContent(ctx, system, user)
	if err != nil {
		return Decision{}, err
	}

	e.logger.Debug("evaluation response",
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)

	decision, err := parseDecision(raw)
	if err != nil {
		return Decision{}, err
	}
	decision.Raw = raw
	return decision, nil
}

// lastExchange returns the last interviewer question and the candidate turns after it.
// Several candidate turns in a row are joined.
func lastExchange(turns []session.Turn) (question, answer string) {
	var answers []string
	for i := len(turns) - 1; i >= 0; i-- {
		turn := turns[i]
		if turn.Speaker == session.SpeakerInterviewer {
			question = turn.Text
			break
		}
		answers = append([]string{turn.Text}, answers...)
	}
	return question, strings.Join(answers, "\n")
}

// parseDecision accepts the JSON reply the prompt asks for and, as a fallback, a bare
// word such as "yes", "no" or "follow_up".
func parseDecision(raw string) (Decision, error) {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return Decision{}, fmt.Errorf("parse evaluation: empty response")
	}

	if !strings.HasPrefix(cleaned, "{") {
		outcome, ok := normalizeOutcome(cleaned)
		if !ok {
			return Decision{}, fmt.Errorf("parse evaluation: unknown decision %q", utils.TruncateForLog(cleaned, 50))
		}
		return Decision{Outcome: outcome}, nil
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return Decision{}, fmt.Errorf("parse evaluation: %w", err)
	}

	var payload decisionPayload
	if err := mapstructure.WeakDecode(data, &payload); err != nil {
		return Decision{}, fmt.Errorf("decode evaluation: %w", err)
	}

	label := payload.Decision
	if label == "" {
		label = payload.Outcome
	}

	outcome, ok := normalizeOutcome(label)
	if !ok && payload.FollowUp != nil {
		outcome, ok = OutcomeNextTopic, true
		if coerceBool(payload.FollowUp) {
			outcome = OutcomeFollowUp
		}
	}
	if !ok {
		return Decision{}, fmt.Errorf("parse evaluation: unknown decision %q", label)
	}

	return Decision{Outcome: outcome, Reason: coerceString(payload.Reason)}, nil
}

func normalizeOutcome(label string) (Outcome, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.Trim(key, `."'`)
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	outcome, ok := outcomeAliases[key]
	return outcome, ok
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
