// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"io"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Format selects how template output is escaped.
type Format int

const (
	// Text renders values verbatim.
	Text Format = iota
	// HTML escapes values for the context they appear in.
	HTML
)

func (f Format) String() string {
	if f == HTML {
		return "html"
	}
	return "text"
}

// Engine renders a template source against task parameters.
type Engine interface {
	Render(format Format, name, source string, data map[string]any) (string, error)
}

// TemplateRenderer renders Go templates with the Sprig function library.
// Missing keys render as an error instead of "<no value>" so typos in mail
// bodies fail the task rather than reaching recipients.
type TemplateRenderer struct {
	textFuncs template.FuncMap
	htmlFuncs htmltemplate.FuncMap
}

// NewTemplateRenderer creates a new template renderer.
func NewTemplateRenderer() *TemplateRenderer {
	textFuncs := sprig.TxtFuncMap()
	htmlFuncs := sprig.FuncMap()
	// env access would expose the worker's environment to task authors
	for _, name := range []string{"env", "expandenv"} {
		delete(textFuncs, name)
		delete(htmlFuncs, name)
	}
	return &TemplateRenderer{textFuncs: textFuncs, htmlFuncs: htmlFuncs}
}

type executor interface {
	Execute(w io.Writer, data any) error
}

// Render parses and executes source. name is used in error messages only.
func (r *TemplateRenderer) Render(format Format, name, source string, data map[string]any) (string, error) {
	var tmpl executor
	var err error
	switch format {
	case HTML:
		tmpl, err = htmltemplate.New(name).Funcs(r.htmlFuncs).Option("missingkey=error").Parse(source)
	default:
		tmpl, err = template.New(name).Funcs(r.textFuncs).Option("missingkey=error").Parse(source)
	}
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template %s: %w", format, name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template %s: %w", format, name, err)
	}
	return buf.String(), nil
}
