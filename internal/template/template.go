// Package template renders campaign and notification bodies. Bodies use
// single-brace field tokens such as {lead_name} or {client_email}; full Liquid
// syntax ({{ lead_first_name | default: "there" }}) is accepted as well.
package template

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/osteele/liquid"

	"github.com/ignite/leadflow/internal/domain"
)

var (
	tokenPattern  = regexp.MustCompile(`\{\{?[a-zA-Z_][a-zA-Z0-9_]*\}?\}`)
	singlePattern = regexp.MustCompile(`\{[a-zA-Z_][a-zA-Z0-9_]*\}`)
)

// DefaultCacheSize caps the number of parsed templates a Renderer keeps.
const DefaultCacheSize = 512

// Renderer renders token templates. Parsed templates are cached by source
// up to a fixed number of entries; bodies past the cap are parsed per call.
type Renderer struct {
	engine   *liquid.Engine
	cache    sync.Map // map[string]*liquid.Template
	cached   atomic.Int64
	maxCache int64
}

// NewRenderer creates a renderer with the default filter.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()
	engine.RegisterFilter("default", func(value interface{}, def string) interface{} {
		if value == nil {
			return def
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return def
		}
		return value
	})
	return &Renderer{engine: engine, maxCache: DefaultCacheSize}
}

// toLiquid rewrites {token} as {{ token }}. Existing {{token}} is kept.
func toLiquid(body string) string {
	return tokenPattern.ReplaceAllStringFunc(body, func(m string) string {
		if strings.HasPrefix(m, "{{") || strings.HasSuffix(m, "}}") {
			return m
		}
		return "{{ " + m[1:len(m)-1] + " }}"
	})
}

// Render substitutes bindings into body. Unknown tokens render empty.
func (r *Renderer) Render(body string, bindings map[string]any) (string, error) {
	if !strings.Contains(body, "{") {
		return body, nil
	}
	var tpl *liquid.Template
	if cached, ok := r.cache.Load(body); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(toLiquid(body))
		if err != nil {
			log.Printf("[Template] parse error: %v", err)
			return body, fmt.Errorf("parse template: %w", err)
		}
		if r.cached.Load() < r.maxCache {
			if _, loaded := r.cache.LoadOrStore(body, parsed); !loaded {
				r.cached.Add(1)
			}
		}
		tpl = parsed
	}
	out, err := tpl.RenderString(bindings)
	if err != nil {
		return body, fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// RenderText substitutes single-brace field tokens in free text such as AI
// drafts and literal replies. Liquid syntax is left as written and tokens
// with no binding are kept.
func RenderText(body string, bindings map[string]any) string {
	if !strings.Contains(body, "{") {
		return body
	}
	var b strings.Builder
	last := 0
	for _, loc := range singlePattern.FindAllStringIndex(body, -1) {
		start, end := loc[0], loc[1]
		if (start > 0 && body[start-1] == '{') || (end < len(body) && body[end] == '}') {
			continue
		}
		v, ok := bindings[body[start+1:end-1]]
		if !ok || v == nil {
			continue
		}
		b.WriteString(body[last:start])
		b.WriteString(fmt.Sprint(v))
		last = end
	}
	b.WriteString(body[last:])
	return b.String()
}

// Validate reports a syntax error in body, if any.
func (r *Renderer) Validate(body string) error {
	_, err := r.engine.ParseString(toLiquid(body))
	return err
}

// Bindings builds the token set for a lead and its client. Custom fields are
// exposed under their own names unless they collide with a built-in token.
func Bindings(lead *domain.Lead, client *domain.Client) map[string]any {
	b := map[string]any{}
	if lead != nil {
		for k, v := range lead.CustomFields {
			if f, ok := v.(float64); ok && f == float64(int64(f)) {
				v = int64(f)
			}
			b[k] = v
		}
		b["lead_name"] = lead.FullName()
		b["lead_first_name"] = lead.FirstName
		b["lead_last_name"] = lead.LastName
		b["lead_email"] = lead.Email
		b["lead_phone"] = lead.Phone
		b["lead_state"] = lead.State
		b["lead_city"] = lead.City
		b["lead_stage"] = lead.Stage
		b["first_name"] = lead.FirstName
		b["last_name"] = lead.LastName
	}
	if client != nil {
		b["client_name"] = client.Name
		b["client_email"] = client.Email
		b["client_phone"] = client.Phone
	}
	return b
}
