// Package prompt renders the text/template prompts sent to the model-backed
// collaborators.
package prompt

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"text/template"

	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
)

// Template is a named, parsed prompt. Rendering fails on a missing variable.
type Template struct {
	Name    string
	Content string
	tmpl    *template.Template
}

// NewTemplate parses content under name.
func NewTemplate(name, content string) (*Template, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: template name is empty", apperr.ErrInvalidInput)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return &Template{Name: name, Content: content, tmpl: tmpl}, nil
}

// Render executes the template with vars.
func (t *Template) Render(vars map[string]any) (string, error) {
	var b strings.Builder
	if err := t.tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("render template %s: %w", t.Name, err)
	}
	return b.String(), nil
}

// Manager is a concurrency-safe registry of templates.
type Manager struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewManager returns an empty registry.
func NewManager() *Manager {
	return &Manager{templates: make(map[string]*Template)}
}

// RegisterString parses content and adds it. Registering a name twice is an
// error; use Override to replace a template.
func (m *Manager) RegisterString(name, content string) error {
	return m.put(name, content, false)
}

// Override replaces the named template, adding it when absent.
func (m *Manager) Override(name, content string) error {
	return m.put(name, content, true)
}

func (m *Manager) put(name, content string, replace bool) error {
	tmpl, err := NewTemplate(name, content)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.templates[name]; exists && !replace {
		return fmt.Errorf("%w: template %s already registered", apperr.ErrInvalidInput, name)
	}
	m.templates[name] = tmpl
	return nil
}

// Render renders the named template.
func (m *Manager) Render(name string, vars map[string]any) (string, error) {
	m.mu.RLock()
	tmpl, ok := m.templates[name]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: template %s", apperr.ErrNotFound, name)
	}
	return tmpl.Render(vars)
}

// List returns the registered names in sorted order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.templates))
}
