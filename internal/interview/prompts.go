package interview

import (
	"embed"
	"fmt"
	"strings"

	"github.com/spigell/hh-interviewer/internal/session"
)

//go:embed prompts/*.md
var promptFS embed.FS

// prompt is a system instruction and a user message template for one completion call.
type prompt struct {
	system string
	user   string
}

func mustPrompt(name string) prompt {
	system, err := promptFS.ReadFile("prompts/" + name + ".system.md")
	if err != nil {
		panic(fmt.Sprintf("missing system prompt %q: %v", name, err))
	}
	user, err := promptFS.ReadFile("prompts/" + name + ".user.md")
	if err != nil {
		panic(fmt.Sprintf("missing user prompt %q: %v", name, err))
	}
	return prompt{system: string(system), user: string(user)}
}

var (
	strategyPrompt     = mustPrompt("strategy")
	introductionPrompt = mustPrompt("introduction")
	questionPrompt     = mustPrompt("question")
	followUpPrompt     = mustPrompt("follow_up")
	evaluatePrompt     = mustPrompt("evaluate")
	closingPrompt      = mustPrompt("closing")
)

// render replaces {{KEY}} placeholders in both parts of the prompt.
func (p prompt) render(vars map[string]string) (system, user string) {
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	r := strings.NewReplacer(pairs...)
	return strings.TrimSpace(r.Replace(p.system)), strings.TrimSpace(r.Replace(p.user))
}

const noConversation = "This is the first question."

// formatConversation renders turns as an "Interviewer:/Candidate:" transcript.
func formatConversation(turns []session.Turn) string {
	if len(turns) == 0 {
		return noConversation
	}

	var b strings.Builder
	for i, turn := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch turn.Speaker {
		case session.SpeakerInterviewer:
			b.WriteString("Interviewer: ")
		default:
			b.WriteString("Candidate: ")
		}
		b.WriteString(turn.Text)
	}
	return b.String()
}

// topicTurns keeps only the turns that belong to topic.
func topicTurns(turns []session.Turn, topic string) []session.Turn {
	var out []session.Turn
	for _, turn := range turns {
		if turn.Topic == topic {
			out = append(out, turn)
		}
	}
	return out
}

func joinOrDefault(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}
