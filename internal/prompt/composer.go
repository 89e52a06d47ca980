// Package prompt turns a persona, its recent conversation and its memories
// into the instruction and message list sent to the inference gateway.
package prompt

import (
	"fmt"
	"strings"

	"github.com/ent0n29/amical/internal/store"
)

const (
	// HistoryWindow is how many recent turns are replayed to the model.
	HistoryWindow = 20
	// MaxMemories is how many memories are listed in the instruction.
	MaxMemories = 10

	NoMemoriesPlaceholder = "Aucun souvenir pour l'instant."
)

// Message is one chat-completion message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is the composed model input.
type Prompt struct {
	System   string    `json:"system"`
	Messages []Message `json:"messages"`
}

type field struct {
	label string
	value string
}

// optionalFields lists the persona's optional sections in display order.
func optionalFields(p store.Persona) []field {
	return []field{
		{"RÊVE/AMBITION", p.Dream},
		{"FAMILLE", p.FamilyInfo},
		{"HISTOIRE", p.Story},
	}
}

func presentLines(fields []field) []string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		if v == "" {
			continue
		}
		lines = append(lines, f.label+": "+v)
	}
	return lines
}

func instructions(p store.Persona) string {
	return strings.Join([]string{
		"INSTRUCTIONS:",
		"- Réponds de manière naturelle et authentique, comme un véritable ami.",
		fmt.Sprintf("- Utilise le ton %s dans tes réponses.", p.Tone),
		"- Fais référence aux souvenirs quand c'est pertinent.",
		fmt.Sprintf("- Partage des détails de ta journée basés sur ton background (%s).", p.Occupation),
		"- Pose des questions pour montrer ton intérêt.",
		"- Reste cohérent avec ta personnalité et ton histoire.",
		"- Réponds en français.",
		"- Ne mentionne jamais que tu es une IA.",
	}, "\n")
}

func memoryBlock(memories []store.Memory) string {
	if len(memories) > MaxMemories {
		memories = memories[:MaxMemories]
	}
	var b strings.Builder
	b.WriteString("SOUVENIRS IMPORTANTS:\n")
	if len(memories) == 0 {
		b.WriteString(NoMemoriesPlaceholder)
		return b.String()
	}
	for i, m := range memories {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(m.Fact)
	}
	return b.String()
}

// SystemInstruction renders the persona sheet, memories and behavioral directives.
// Memories are listed in the order given.
func SystemInstruction(p store.Persona, memories []store.Memory) string {
	sections := []string{
		fmt.Sprintf("Tu es %s, %s de %d ans.", p.Name, p.Occupation, p.Age),
		fmt.Sprintf("PERSONNALITÉ: %s\nTON: %s", p.Personality, p.Tone),
		"BACKGROUND:\n" + p.Background,
	}
	if lines := presentLines(optionalFields(p)); len(lines) > 0 {
		sections = append(sections, strings.Join(lines, "\n"))
	}
	sections = append(sections, memoryBlock(memories), instructions(p))
	return strings.Join(sections, "\n\n")
}

// Window turns a newest-first retrieval into the chronological context window,
// keeping at most HistoryWindow of the most recent turns.
func Window(newestFirst []store.Turn) []store.Turn {
	n := len(newestFirst)
	if n > HistoryWindow {
		n = HistoryWindow
	}
	out := make([]store.Turn, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = newestFirst[i]
	}
	return out
}

// Compose builds the full prompt. history must be chronological; only its
// last HistoryWindow turns are used. message is appended as the final user turn.
func Compose(p store.Persona, history []store.Turn, memories []store.Memory, message string) Prompt {
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	msgs := make([]Message, 0, len(history)+1)
	for _, t := range history {
		msgs = append(msgs, Message{Role: string(t.Role), Content: t.Content})
	}
	msgs = append(msgs, Message{Role: string(store.RoleUser), Content: message})
	return Prompt{
		System:   SystemInstruction(p, memories),
		Messages: msgs,
	}
}
