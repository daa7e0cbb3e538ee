// Package template renders the user supplied launch name and description.
// Templates use text/template syntax with the sprig function library.
package template

import (
	"fmt"
	"strings"
	gotemplate "text/template"

	"github.com/Masterminds/sprig/v3"
)

// Engine renders text templates with the sprig function map
type Engine struct {
	funcs gotemplate.FuncMap
}

// New creates a new template engine
func New() *Engine {
	return &Engine{funcs: sprig.TxtFuncMap()}
}

// Render executes text with data. Strings without actions are returned
// unchanged. Missing keys are an error.
func (e *Engine) Render(name, text string, data map[string]interface{}) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := gotemplate.New(name).Funcs(e.funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", name, err)
	}
	return b.String(), nil
}

// RenderAll renders every value of a map, keyed by name.
func (e *Engine) RenderAll(texts map[string]string, data map[string]interface{}) (map[string]string, error) {
	out := make(map[string]string, len(texts))
	for name, text := range texts {
		rendered, err := e.Render(name, text, data)
		if err != nil {
			return nil, err
		}
		out[name] = rendered
	}
	return out, nil
}
