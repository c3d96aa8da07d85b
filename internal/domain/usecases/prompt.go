package usecases

import (
	"strings"

	"github.com/MoeScet/smart-document-chat/internal/domain/entities"
	"github.com/MoeScet/smart-document-chat/internal/domain/ports"
)

// DefaultMaxContextTokens bounds the document context of one prompt.
const DefaultMaxContextTokens = 3000

// historyWindow is how many trailing chat messages a prompt carries.
const historyWindow = 3

const contextSeparator = "\n\n---\n\n"

const noHistory = "(No previous conversation)"

const systemInstruction = `You are a helpful AI assistant that answers questions based on provided documents.

IMPORTANT RULES:
- Answer questions using ONLY the information from the provided documents
- Do NOT mention document numbers (like "Document 1", "Document 2", etc.) in your response
- Answer naturally as if the information is from a single coherent source
- For summarization questions ("what is this about?", "summarize"), provide a comprehensive overview of the content
- If the answer is not in the documents, say "I cannot find that information in the uploaded documents"
- Be concise but thorough
- If asked about something not in the documents, politely decline and explain what information IS available`

// PromptBuilder renders the grounded prompt sent to the generator.
type PromptBuilder struct {
	counter   ports.TokenCounter
	maxTokens int
}

// NewPromptBuilder creates a PromptBuilder. maxContextTokens <= 0 or a nil counter disables the budget.
func NewPromptBuilder(counter ports.TokenCounter, maxContextTokens int) *PromptBuilder {
	return &PromptBuilder{counter: counter, maxTokens: maxContextTokens}
}

// Build lays out the system instruction, recent history, ranked context and the question.
func (b *PromptBuilder) Build(query string, contextChunks []string, history []entities.ChatMessage) string {
	var sb strings.Builder
	sb.WriteString(systemInstruction)
	sb.WriteString("\n\nPREVIOUS CONVERSATION:\n")
	sb.WriteString(renderHistory(history))
	sb.WriteString("\n\nRELEVANT DOCUMENTS:\n")
	sb.WriteString(strings.Join(b.fitContext(contextChunks), contextSeparator))
	sb.WriteString("\n\nUSER QUESTION: ")
	sb.WriteString(query)
	sb.WriteString("\n\nASSISTANT ANSWER:")
	return sb.String()
}

// fitContext keeps chunks in rank order while they fit the budget.
// The top-ranked chunk is always kept.
func (b *PromptBuilder) fitContext(chunks []string) []string {
	if b.counter == nil || b.maxTokens <= 0 || len(chunks) == 0 {
		return chunks
	}

	used := b.counter.Count(chunks[0])
	kept := 1
	for _, c := range chunks[1:] {
		n := b.counter.Count(c)
		if used+n > b.maxTokens {
			break
		}
		used += n
		kept++
	}
	return chunks[:kept]
}

func renderHistory(history []entities.ChatMessage) string {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	var sb strings.Builder
	for _, msg := range history {
		role := msg.Role
		if role == "" {
			role = entities.RoleUser
		}
		sb.WriteString("\n")
		sb.WriteString(strings.ToUpper(string(role)))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
	}
	if sb.Len() == 0 {
		return noHistory
	}
	return sb.String()
}
