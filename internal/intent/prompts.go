package intent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/castaldi/frank/internal/catalog"
	"github.com/castaldi/frank/internal/domain"
)

const classifySystemPrompt = `Sei un classificatore di intenti per un assistente di bordo su camper.
Decidi se il messaggio dell'utente richiede l'uso di uno strumento oppure è conversazione libera.
Rispondi SOLO con un oggetto JSON, senza testo aggiuntivo, con questi campi:
{
  "requires_tool": bool,
  "primary_category": "navigation" | "weather" | "vehicle" | "maintenance" | null,
  "confidence": numero tra 0.0 e 1.0,
  "extracted_parameters": { ... },
  "reasoning": "breve motivazione",
  "clarification_needed": bool
}`

func classifyPrompt(utterance string, tools []string, ctx *domain.Context) string {
	var b strings.Builder

	if hasAnaphora(utterance) && ctx != nil && len(ctx.PriorTurns) > 0 {
		b.WriteString("Il messaggio fa riferimento al turno precedente. Risolvi i riferimenti usando questo contesto:\n")
		for _, turn := range lastTurns(ctx, 4) {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("Strumenti disponibili: ")
	b.WriteString(strings.Join(tools, ", "))
	b.WriteString("\n\nMessaggio utente: ")
	b.WriteString(utterance)
	return b.String()
}

func lastTurns(ctx *domain.Context, n int) []domain.Turn {
	if len(ctx.PriorTurns) <= n {
		return ctx.PriorTurns
	}
	return ctx.PriorTurns[len(ctx.PriorTurns)-n:]
}

const extractSystemPrompt = `Estrai i parametri richiesti dal messaggio dell'utente.
Rispondi SOLO con un oggetto JSON piatto { "parametro": valore, ... }.
Includi solo i parametri effettivamente presenti nel messaggio, senza inventare valori.`

func extractPrompt(utterance, toolName string, schema map[string]catalog.ParamSpec, ctx *domain.Context) string {
	var b strings.Builder

	if hasAnaphora(utterance) && ctx != nil && len(ctx.PriorTurns) > 0 {
		b.WriteString("Il messaggio fa riferimento al turno precedente. Risolvi i riferimenti usando questo contesto:\n")
		for _, turn := range lastTurns(ctx, 4) {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Text)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Strumento: %s\nParametri dello schema:\n", toolName)
	for name, spec := range schema {
		req := ""
		if spec.Required {
			req = " (obbligatorio)"
		}
		fmt.Fprintf(&b, "- %s: %s%s\n", name, spec.Type, req)
	}
	b.WriteString("\nMessaggio utente: ")
	b.WriteString(utterance)
	return b.String()
}

// stripCodeFence removes a surrounding markdown code fence, which some
// models wrap around JSON output despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// llmDecision mirrors the JSON the model is asked to emit. Pointer fields
// let the parser tell "absent" from zero values.
type llmDecision struct {
	RequiresTool        *bool          `json:"requires_tool"`
	PrimaryCategory     string         `json:"primary_category"`
	Confidence          *float64       `json:"confidence"`
	ExtractedParameters map[string]any `json:"extracted_parameters"`
	Reasoning           string         `json:"reasoning"`
	ClarificationNeeded bool           `json:"clarification_needed"`
}

// parseDecision parses the model output strictly. A missing requires_tool
// or confidence field invalidates the whole result.
func parseDecision(raw string) (*llmDecision, bool) {
	var d llmDecision
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &d); err != nil {
		return nil, false
	}
	if d.RequiresTool == nil || d.Confidence == nil {
		return nil, false
	}
	return &d, true
}
