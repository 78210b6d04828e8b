package agent

import (
	"strings"

	"github.com/hrygo/autotask/internal/util"
	"github.com/hrygo/autotask/plugin/ai/extract"
	"github.com/hrygo/autotask/store"
)

// MaxPromptBody caps the message body placed in a prompt, in runes.
const MaxPromptBody = 8000

const promptInstructions = `You are a task creation assistant. Read the email below and extract one actionable task.

Answer with a single JSON object that matches this schema and nothing else:
%SCHEMA%

Rules:
- task_title is a short imperative summary.
- priority is one of urgent, high, normal, low.
- due_date is epoch milliseconds, only when the email states or implies a date.
- tags are short lowercase labels.`

// BuildPrompt renders the single user turn for item. It only ever contains
// the message itself and output instructions.
func BuildPrompt(item store.Item) string {
	// Body is already normalized text.
	body := util.NormalizePlain(item.Body, MaxPromptBody)
	if body == "" {
		body = util.NormalizeText(item.Snippet, MaxPromptBody)
	}

	var b strings.Builder
	b.WriteString(strings.Replace(promptInstructions, "%SCHEMA%", extract.SchemaHint(), 1))
	b.WriteString("\n\nSubject: ")
	b.WriteString(util.NormalizeText(item.Subject, 500))
	b.WriteString("\nFrom: ")
	b.WriteString(util.NormalizeText(item.From, 500))
	b.WriteString("\n\nContent:\n")
	b.WriteString(body)
	return b.String()
}
