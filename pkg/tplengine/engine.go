package tplengine

import (
	"bytes"
	"fmt"
	"maps"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// TemplateEngine renders named and inline templates with the sprig function map.
type TemplateEngine struct {
	mu           sync.RWMutex
	templates    map[string]*template.Template
	globalValues map[string]any
}

// NewEngine creates an empty template engine
func NewEngine() *TemplateEngine {
	return &TemplateEngine{
		templates:    make(map[string]*template.Template),
		globalValues: make(map[string]any),
	}
}

func newTemplate(name string) *template.Template {
	return template.New(name).Option("missingkey=error").Funcs(sprig.FuncMap())
}

// AddTemplate adds a template to the engine
func (e *TemplateEngine) AddTemplate(name, templateStr string) error {
	tmpl, err := newTemplate(name).Parse(templateStr)
	if err != nil {
		return fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	e.mu.Lock()
	e.templates[name] = tmpl
	e.mu.Unlock()
	return nil
}

// HasTemplate returns true if the string contains template markers
func HasTemplate(s string) bool {
	return strings.Contains(s, "{{")
}

// Render renders a template by name
func (e *TemplateEngine) Render(name string, data map[string]any) (string, error) {
	e.mu.RLock()
	tmpl, ok := e.templates[name]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}
	return e.renderTemplate(tmpl, data)
}

// RenderString renders a template string
func (e *TemplateEngine) RenderString(templateStr string, data map[string]any) (string, error) {
	if !HasTemplate(templateStr) {
		return templateStr, nil
	}
	tmpl, err := newTemplate("inline").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	return e.renderTemplate(tmpl, data)
}

func (e *TemplateEngine) renderTemplate(tmpl *template.Template, data map[string]any) (string, error) {
	ctx := make(map[string]any, len(data)+len(e.globalValues))
	e.mu.RLock()
	maps.Copy(ctx, e.globalValues)
	e.mu.RUnlock()
	maps.Copy(ctx, data)
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	return buf.String(), nil
}

// AddGlobalValue adds a value visible to every render
func (e *TemplateEngine) AddGlobalValue(name string, value any) {
	e.mu.Lock()
	e.globalValues[name] = value
	e.mu.Unlock()
}
