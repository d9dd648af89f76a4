package assistant

import (
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/studyrag-go/internal/budget"
	"github.com/54b3r/studyrag-go/internal/rag"
)

// SystemPrompt is the fixed instruction sent ahead of every conversation.
const SystemPrompt = "You are a helpful teaching assistant chatbot."

const groundedQuestion = "Answer based only on the context below. If unsure, say you don't know.\n\nContext:\n%s\n\nQuestion:\n%s"

// GroundedQuestion renders the user turn that carries the retrieved context.
func GroundedQuestion(contextText, question string) string {
	return fmt.Sprintf(groundedQuestion, contextText, question)
}

// BuildPrompt returns the system instruction, the prior turns in order, and
// the grounded question. Prior turns store the bare question, never the
// context it was answered from. A positive maxHistoryTokens trims the
// oldest turns first.
func BuildPrompt(history []rag.Message, contextText, question string, maxHistoryTokens int) []*schema.Message {
	system := schema.SystemMessage(SystemPrompt)
	current := schema.UserMessage(GroundedQuestion(contextText, question))

	prior := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case rag.RoleUser:
			prior = append(prior, schema.UserMessage(m.Content))
		case rag.RoleAssistant:
			prior = append(prior, schema.AssistantMessage(m.Content, nil))
		}
	}
	prior = budget.TrimHistory([]*schema.Message{system, current}, prior, maxHistoryTokens)

	msgs := make([]*schema.Message, 0, len(prior)+2)
	msgs = append(msgs, system)
	msgs = append(msgs, prior...)
	msgs = append(msgs, current)
	return msgs
}
