package interview

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/session"
	"github.com/spigell/hh-interviewer/internal/utils"
)

const (
	introductionTopic = "introduction"
	generalTopic      = "general background"
)

// Question is a generated interviewer turn.
type Question struct {
	Text  string
	Topic string
	// OpensTopic is false for follow-ups on the current topic.
	OpensTopic bool
}

// QuestionGenerator produces interview questions from the strategy and the history.
type QuestionGenerator struct {
	completer    ai.Completer
	maxFollowUps int
	logger       *zap.Logger
	maxLogLen    int
}

// NewQuestionGenerator creates a QuestionGenerator backed by completer.
func NewQuestionGenerator(completer ai.Completer, maxFollowUps int, logger *zap.Logger, maxLogLength int) *QuestionGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &QuestionGenerator{
		completer:    completer,
		maxFollowUps: maxFollowUps,
		logger:       logger,
		maxLogLen:    maxLogLength,
	}
}

// Introduction generates the warm-up question that opens every interview.
func (g *QuestionGenerator) Introduction(ctx context.Context) (Question, error) {
	system, user := introductionPrompt.render(nil)
	text, err := g.generate(ctx, "introduction", system, user)
	if err != nil {
		return Question{}, err
	}
	return Question{Text: text, Topic: introductionTopic, OpensTopic: true}, nil
}

// NextTopic generates a question on the next topic of the strategy. Topics are visited
// in order and revisited once all of them were covered.
func (g *QuestionGenerator) NextTopic(ctx context.Context, snap session.Snapshot) (Question, error) {
	topic, covered, remaining := pickTopic(snap.Topics, snap.QuestionsAsked)

	system, user := questionPrompt.render(map[string]string{
		"STRATEGY":     strategyOrDefault(snap.Strategy),
		"TOPIC":        topic,
		"COVERED":      joinOrDefault(covered, "None yet"),
		"REMAINING":    joinOrDefault(remaining, "None (revisiting covered topics)"),
		"CONVERSATION": formatConversation(snap.Conversation),
	})

	text, err := g.generate(ctx, "next_topic", system, user)
	if err != nil {
		return Question{}, err
	}
	return Question{Text: text, Topic: topic, OpensTopic: true}, nil
}

// FollowUp generates a clarifying question on the current topic. Only the turns of that
// topic are shown to the model.
func (g *QuestionGenerator) FollowUp(ctx context.Context, snap session.Snapshot) (Question, error) {
	topic := snap.CurrentTopic
	if topic == "" {
		topic = generalTopic
	}

	system, user := followUpPrompt.render(map[string]string{
		"TOPIC":          topic,
		"FOLLOW_UP":      strconv.Itoa(snap.FollowUps[topic] + 1),
		"MAX_FOLLOW_UPS": strconv.Itoa(g.maxFollowUps),
		"CONVERSATION":   formatConversation(topicTurns(snap.Conversation, snap.CurrentTopic)),
	})

	text, err := g.generate(ctx, "follow_up", system, user)
	if err != nil {
		return Question{}, err
	}
	return Question{Text: text, Topic: topic, OpensTopic: false}, nil
}

func (g *QuestionGenerator) generate(ctx context.Context, kind, system, user string) (string, error) {
	g.logger.Debug("question request",
		zap.String("kind", kind),
		zap.Int("prompt_length", utf8.RuneCountInString(user)),
		zap.String("prompt_preview", utils.TruncateForLog(user, g.maxLogLen)),
	)

	raw, err := g.completer.GenerateContent(ctx, system, user)
	if err != nil {
		return "", err
	}

	text := cleanQuestion(raw)
	if text == "" {
		return "", errors.New("empty question")
	}

	g.logger.Debug("question response",
		zap.String("kind", kind),
		zap.String("response_preview", utils.TruncateForLog(text, g.maxLogLen)),
	)
	return text, nil
}

// pickTopic returns the topic for the next new question together with the topics before
// and after it. questionsAsked includes the introduction.
func pickTopic(topics []string, questionsAsked int) (topic string, covered, remaining []string) {
	if len(topics) == 0 {
		return generalTopic, nil, nil
	}

	idx := (max(questionsAsked, 1) - 1) % len(topics)
	return topics[idx], topics[:idx], topics[idx+1:]
}

func strategyOrDefault(strategy string) string {
	if strings.TrimSpace(strategy) == "" {
		return "General screening interview"
	}
	return strategy
}

// cleanQuestion strips wrapping quotes and markdown the model sometimes adds.
func cleanQuestion(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.Trim(text, "`")
	text = strings.TrimSpace(text)
	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		text = strings.TrimSpace(text[1 : len(text)-1])
	}
	return text
}
