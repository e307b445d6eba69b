package generation

import (
	"fmt"

	"github.com/compozy/productgen/pkg/tplengine"
)

const (
	promptSystem   = "system"
	promptUser     = "user"
	promptFeedback = "feedback"
)

const defaultSystemPrompt = `You are an expert at structured data extraction. ` +
	`Read the user input and generate a valid product for the catalog according to the given structure.
{{- if .hints }} Column hints name the source columns the values came from.{{ end }}`

const userPrompt = `{{ .text }}
{{- if .hints }}

Column hints:
{{- range .hints }}
- {{ .Column }}: {{ .Value }}
{{- end }}
{{- end }}`

const feedbackPrompt = `The previous response does not satisfy the required structure:
{{- range .issues }}
- {{ . }}
{{- end }}
Return the complete corrected JSON object.`

// Prompts renders the messages of a generation conversation.
type Prompts struct {
	engine *tplengine.TemplateEngine
}

// NewPrompts parses the prompt templates. An empty system template selects
// the built-in one.
func NewPrompts(systemTemplate string) (*Prompts, error) {
	if systemTemplate == "" {
		systemTemplate = defaultSystemPrompt
	}
	engine := tplengine.NewEngine()
	for name, tpl := range map[string]string{
		promptSystem:   systemTemplate,
		promptUser:     userPrompt,
		promptFeedback: feedbackPrompt,
	} {
		if err := engine.AddTemplate(name, tpl); err != nil {
			return nil, fmt.Errorf("invalid %s prompt: %w", name, err)
		}
	}
	return &Prompts{engine: engine}, nil
}

func (p *Prompts) System(in *Input) (string, error) {
	return p.engine.Render(promptSystem, map[string]any{"hints": in.Hints, "item_id": in.ItemID})
}

func (p *Prompts) User(text string, hints []Hint) (string, error) {
	return p.engine.Render(promptUser, map[string]any{"text": text, "hints": hints})
}

func (p *Prompts) Feedback(issues []string) (string, error) {
	return p.engine.Render(promptFeedback, map[string]any{"issues": issues})
}
