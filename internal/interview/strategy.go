package interview

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/utils"
)

const maxTopics = 5

var defaultTopics = []string{
	"Technical skills",
	"Experience and background",
	"Problem-solving approach",
}

var topicPrefixes = []string{"1.", "2.", "3.", "4.", "5.", "-", "*"}

// Strategy is the plan derived from the resume and the job description.
type Strategy struct {
	Text   string
	Topics []string
}

// Analyzer derives an interview strategy from the uploaded documents.
type Analyzer struct {
	completer ai.Completer
	logger    *zap.Logger
	maxLogLen int
}

// NewAnalyzer creates an Analyzer backed by completer.
func NewAnalyzer(completer ai.Completer, logger *zap.Logger, maxLogLength int) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Analyzer{completer: completer, logger: logger, maxLogLen: maxLogLength}
}

// Analyze makes a single completion call and extracts the key topics from the reply.
func (a *Analyzer) Analyze(ctx context.Context, resume, jobDescription string) (Strategy, error) {
	system, user := strategyPrompt.render(map[string]string{
		"RESUME":          resume,
		"JOB_DESCRIPTION": jobDescription,
	})

	a.logger.Debug("strategy request",
		zap.Int("prompt_length", utf8.RuneCountInString(user)),
		zap.String("prompt_preview", utils.TruncateForLog(user, a.maxLogLen)),
	)

	raw, err := a.completer.GenerateContent(ctx, system, user)
	if err != nil {
		return Strategy{}, err
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		return Strategy{}, errors.New("empty strategy")
	}

	topics := extractTopics(text)
	a.logger.Debug("strategy response",
		zap.Int("response_length", utf8.RuneCountInString(text)),
		zap.String("response_preview", utils.TruncateForLog(text, a.maxLogLen)),
		zap.Strings("topics", topics),
	)

	return Strategy{Text: text, Topics: topics}, nil
}

// extractTopics picks numbered or bulleted lines longer than ten characters, up to five.
// The default topics are used when none are found.
func extractTopics(strategy string) []string {
	var topics []string
	for _, line := range strings.Split(strategy, "\n") {
		line = strings.TrimSpace(line)
		if !hasTopicPrefix(line) {
			continue
		}

		topic := strings.TrimLeft(line, "0123456789.-* ")
		topic = strings.TrimSpace(strings.ReplaceAll(topic, "**", ""))
		if utf8.RuneCountInString(topic) <= 10 {
			continue
		}

		topics = append(topics, topic)
		if len(topics) == maxTopics {
			break
		}
	}

	if len(topics) == 0 {
		return append([]string(nil), defaultTopics...)
	}
	return topics
}

func hasTopicPrefix(line string) bool {
	for _, prefix := range topicPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
