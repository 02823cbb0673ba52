package menu

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/menukit/menu/convdata"
)

// ErrUnresolvable is returned when a value has no source set.
var ErrUnresolvable = errors.New("menu: value has no source")

// Context carries everything a dynamic value or renderer may consult for one
// conversation at one moment.
type Context struct {
	ChatID int64
	// Data is the live conversation state. Never nil during resolution.
	Data *convdata.ConversationData
	// MenuID is the identifier of the menu being resolved or rendered.
	MenuID string
	// Page is the zero-based page being rendered.
	Page int
	// Lookup resolves a menu identifier to its definition, or nil when
	// unknown. Set by the machine.
	Lookup func(id string) Definition
}

// Value is a deferred value of type T with exactly one source: a static
// literal, a template string (string values only), or a compute function.
// The zero Value is unset and fails to resolve.
type Value[T any] struct {
	static    *T
	template  string
	computeFn func(*Context) (T, error)
}

// Static wraps a literal.
func Static[T any](v T) Value[T] { return Value[T]{static: &v} }

// Template wraps a placeholder string expanded at resolution time. Only
// meaningful for Value[string]; resolving a template under any other type
// fails.
func Template[T any](tmpl string) Value[T] { return Value[T]{template: tmpl} }

// TemplateText is Template for the common string case.
func TemplateText(tmpl string) Value[string] { return Template[string](tmpl) }

// Compute wraps a function evaluated at resolution time.
func Compute[T any](fn func(*Context) (T, error)) Value[T] { return Value[T]{computeFn: fn} }

// IsSet reports whether any source was assigned.
func (v Value[T]) IsSet() bool {
	return v.static != nil || v.template != "" || v.computeFn != nil
}

// Resolve produces the concrete value for ctx.
func (v Value[T]) Resolve(ctx *Context) (T, error) {
	var zero T
	switch {
	case v.static != nil:
		return *v.static, nil
	case v.computeFn != nil:
		out, err := v.computeFn(ctx)
		if err != nil {
			return zero, fmt.Errorf("menu: compute value: %w", err)
		}
		return out, nil
	case v.template != "":
		expanded := expandTemplate(v.template, ctx)
		out, ok := any(expanded).(T)
		if !ok {
			return zero, fmt.Errorf("menu: template source on non-string value")
		}
		return out, nil
	default:
		return zero, ErrUnresolvable
	}
}

// ResolveOr resolves, falling back to def when the value is unset.
func (v Value[T]) ResolveOr(ctx *Context, def T) (T, error) {
	if !v.IsSet() {
		return def, nil
	}
	return v.Resolve(ctx)
}

// expandTemplate substitutes the supported placeholders. Unknown placeholders
// pass through unchanged so typos surface visibly in the rendered text.
func expandTemplate(tmpl string, ctx *Context) string {
	if ctx == nil {
		return tmpl
	}
	out := tmpl
	out = strings.ReplaceAll(out, "{chat_id}", strconv.FormatInt(ctx.ChatID, 10))
	out = strings.ReplaceAll(out, "{menu}", ctx.MenuID)
	out = strings.ReplaceAll(out, "{page}", strconv.Itoa(ctx.Page+1))
	if ctx.Data != nil {
		out = expandSaved(out, ctx.Data)
	}
	return out
}

func expandSaved(s string, data *convdata.ConversationData) string {
	const marker = "{saved."
	var b strings.Builder
	for {
		start := strings.Index(s, marker)
		if start < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}
		end += start
		id := s[start+len(marker) : end]
		b.WriteString(s[:start])
		if raw, ok := data.SavedData[id]; ok {
			b.WriteString(savedString(raw))
		} else {
			// Leave the placeholder visible when nothing was saved.
			b.WriteString(s[start : end+1])
		}
		s = s[end+1:]
	}
}

// savedString renders a saved value for interpolation. Plain strings drop
// their JSON quoting, everything else keeps its JSON form.
func savedString(raw json.RawMessage) string {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return string(raw)
}
