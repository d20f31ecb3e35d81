// Package template renders notification text by substituting {{key}}
// tokens. Unknown tokens are left verbatim so a missing variable shows up
// in the delivered message instead of silently disappearing.
package template

import (
	"context"
	"errors"
	"strings"
)

// ErrTemplateNotFound is returned by a Source when no template exists for
// the requested code. The dispatcher treats it as a configuration error on
// the offending action.
var ErrTemplateNotFound = errors.New("template not found")

// Template is a stored subject/body pair addressed by code. Template text
// storage belongs to an external collaborator; the engine only looks codes
// up through a Source.
type Template struct {
	Subject string
	Body    string
}

// Source looks up templates by code.
type Source interface {
	Lookup(ctx context.Context, code string) (Template, error)
}

// Render substitutes {{key}} tokens in text with values from vars. Tokens
// without a matching key stay verbatim. Nesting is not supported; a token
// runs from "{{" to the next "}}".
func Render(text string, vars map[string]string) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	for {
		open := strings.Index(text, "{{")
		if open < 0 {
			b.WriteString(text)
			return b.String()
		}
		close := strings.Index(text[open:], "}}")
		if close < 0 {
			b.WriteString(text)
			return b.String()
		}
		close += open

		b.WriteString(text[:open])
		key := text[open+2 : close]
		if value, ok := vars[key]; ok {
			b.WriteString(value)
		} else {
			b.WriteString(text[open : close+2])
		}
		text = text[close+2:]
	}
}

// StaticSource is an in-memory Source for wiring and tests.
type StaticSource map[string]Template

func (s StaticSource) Lookup(_ context.Context, code string) (Template, error) {
	tpl, ok := s[code]
	if !ok {
		return Template{}, ErrTemplateNotFound
	}
	return tpl, nil
}
