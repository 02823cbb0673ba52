// Package menu defines declarative menu descriptions and their rendering:
// what a menu is called, which buttons it shows, how its values resolve, and
// how it paginates. Runtime behavior lives in menu/machine.
package menu

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Kind discriminates the menu variants.
type Kind string

const (
	KindNavigation Kind = "navigation"
	KindCheckbox   Kind = "checkbox"
	KindRadio      Kind = "radio"
	KindText       Kind = "text"
	KindUpload     Kind = "upload"
)

var ErrInvalidDefinition = errors.New("menu: invalid definition")

// ControlButton describes one of the done/back/cancel controls at the bottom
// of a menu.
type ControlButton struct {
	// Label overrides the default button caption.
	Label string
	// Steps is how many history entries leaving the menu walks back.
	// Values below one behave as one.
	Steps int
	// Target names a menu to jump to instead of walking back. The leave
	// policy still applies to the menu being left.
	Target string
}

func (c *ControlButton) steps() int {
	if c == nil || c.Steps < 1 {
		return 1
	}
	return c.Steps
}

func (c *ControlButton) target() string {
	if c == nil {
		return ""
	}
	return NormalizeID(c.Target)
}

func (c *ControlButton) label(def string) string {
	if c == nil || c.Label == "" {
		return def
	}
	return c.Label
}

// Base carries the fields shared by every menu variant.
type Base struct {
	// Name identifies the menu. It is normalized to lower_snake form and
	// must be unique within a machine.
	Name string
	// Title is the bold first line of the rendered message.
	Title Value[string]
	// Description is the body text under the title. Optional.
	Description Value[string]
	// Done finalizes the menu's working data into saved data and navigates
	// back. Nil means the menu shows no done button.
	Done *ControlButton
	// Back navigates back without touching working data. Nil hides it.
	Back *ControlButton
	// Cancel discards working data and navigates back. Nil hides it.
	Cancel *ControlButton
}

// ID returns the normalized menu identifier.
func (b *Base) ID() string { return NormalizeID(b.Name) }

// Common exposes the shared fields to the renderer and machine.
func (b *Base) Common() *Base { return b }

func (b *Base) validateBase(kind Kind) error {
	if b.ID() == "" {
		return fmt.Errorf("%w: %s menu has an empty name", ErrInvalidDefinition, kind)
	}
	if !b.Title.IsSet() {
		return fmt.Errorf("%w: menu %q has no title", ErrInvalidDefinition, b.ID())
	}
	return nil
}

// Definition is one declared menu. Concrete variants are Navigation,
// Checkbox, Radio, TextInput and Upload.
type Definition interface {
	ID() string
	Kind() Kind
	Common() *Base
	Validate() error
}

// Destination is one navigation target button.
type Destination struct {
	// MenuID names the menu the button leads to, normalized on use.
	MenuID string
	// Label is the button caption. Falls back to the target identifier.
	Label Value[string]
}

// Navigation is a menu whose content buttons jump to other menus.
type Navigation struct {
	Base
	Destinations []Destination
}

func (n *Navigation) Kind() Kind { return KindNavigation }

func (n *Navigation) Validate() error {
	if err := n.validateBase(KindNavigation); err != nil {
		return err
	}
	if len(n.Destinations) == 0 {
		return fmt.Errorf("%w: navigation menu %q has no destinations", ErrInvalidDefinition, n.ID())
	}
	for i, d := range n.Destinations {
		if NormalizeID(d.MenuID) == "" {
			return fmt.Errorf("%w: menu %q destination %d has an empty target", ErrInvalidDefinition, n.ID(), i)
		}
	}
	return nil
}

// CheckboxOption is one independently togglable entry.
type CheckboxOption struct {
	Key     string
	Label   string
	Default bool
}

// Checkbox is a multi-select menu. Its working data is a key to bool map.
type Checkbox struct {
	Base
	Options []CheckboxOption
}

func (c *Checkbox) Kind() Kind { return KindCheckbox }

func (c *Checkbox) Validate() error {
	if err := c.validateBase(KindCheckbox); err != nil {
		return err
	}
	if len(c.Options) == 0 {
		return fmt.Errorf("%w: checkbox menu %q has no options", ErrInvalidDefinition, c.ID())
	}
	if key, ok := duplicateKey(c.Options, func(o CheckboxOption) string { return o.Key }); ok {
		return fmt.Errorf("%w: checkbox menu %q duplicates option %q", ErrInvalidDefinition, c.ID(), key)
	}
	return nil
}

// Defaults returns the initial key to bool map for a fresh conversation.
func (c *Checkbox) Defaults() map[string]bool {
	out := make(map[string]bool, len(c.Options))
	for _, o := range c.Options {
		out[o.Key] = o.Default
	}
	return out
}

// RadioOption is one mutually exclusive entry.
type RadioOption struct {
	Key     string
	Label   string
	Default bool
}

// Radio is a single-select menu. Its working data is the selected key.
type Radio struct {
	Base
	Options []RadioOption
}

func (r *Radio) Kind() Kind { return KindRadio }

func (r *Radio) Validate() error {
	if err := r.validateBase(KindRadio); err != nil {
		return err
	}
	if len(r.Options) == 0 {
		return fmt.Errorf("%w: radio menu %q has no options", ErrInvalidDefinition, r.ID())
	}
	if key, ok := duplicateKey(r.Options, func(o RadioOption) string { return o.Key }); ok {
		return fmt.Errorf("%w: radio menu %q duplicates option %q", ErrInvalidDefinition, r.ID(), key)
	}
	defaults := 0
	for _, o := range r.Options {
		if o.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("%w: radio menu %q declares %d default options", ErrInvalidDefinition, r.ID(), defaults)
	}
	return nil
}

// Default returns the preselected key, or "" when none is declared.
func (r *Radio) Default() string {
	for _, o := range r.Options {
		if o.Default {
			return o.Key
		}
	}
	return ""
}

// Parser validates and converts one text reply into the value stored as the
// menu's working data.
type Parser func(raw string) (any, error)

// TextInput is a menu that waits for a free-form text reply.
type TextInput struct {
	Base
	// Parser converts the reply. Required.
	Parser Parser
	// Next names the menu activated after a successful reply. Empty means
	// walk one history step back instead.
	Next string
}

func (t *TextInput) Kind() Kind { return KindText }

func (t *TextInput) Validate() error {
	if err := t.validateBase(KindText); err != nil {
		return err
	}
	if t.Parser == nil {
		return fmt.Errorf("%w: text menu %q has no parser", ErrInvalidDefinition, t.ID())
	}
	return nil
}

// Upload is a menu that waits for a document or photo.
type Upload struct {
	Base
	// AllowedMIME restricts accepted MIME types. A "type/*" entry matches
	// the whole major type. Empty accepts any MIME.
	AllowedMIME []string
	// AllowedExt restricts accepted file name extensions, dot included.
	// Empty accepts any name.
	AllowedExt []string
	// Next names the menu activated after a successful upload. Empty means
	// walk one history step back instead.
	Next string
}

func (u *Upload) Kind() Kind { return KindUpload }

func (u *Upload) Validate() error {
	return u.validateBase(KindUpload)
}

// Accepts reports whether a file with the given MIME type and name passes the
// menu's restrictions.
func (u *Upload) Accepts(mime, filename string) bool {
	if len(u.AllowedMIME) > 0 && !matchMIME(u.AllowedMIME, mime) {
		return false
	}
	if len(u.AllowedExt) > 0 && !matchExt(u.AllowedExt, filename) {
		return false
	}
	return true
}

func matchMIME(allowed []string, mime string) bool {
	mime = strings.ToLower(mime)
	for _, a := range allowed {
		a = strings.ToLower(a)
		if a == mime {
			return true
		}
		if major, ok := strings.CutSuffix(a, "/*"); ok && strings.HasPrefix(mime, major+"/") {
			return true
		}
	}
	return false
}

func matchExt(allowed []string, filename string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range allowed {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

func duplicateKey[T any](opts []T, key func(T) string) (string, bool) {
	seen := make(map[string]bool, len(opts))
	for _, o := range opts {
		k := key(o)
		if k == "" || seen[k] {
			return k, true
		}
		seen[k] = true
	}
	return "", false
}

// NormalizeID converts a menu name into its canonical lower_snake identifier.
// Letters and digits are lowercased, camel case boundaries and every other
// run of characters become a single underscore.
func NormalizeID(name string) string {
	var b strings.Builder
	prevUnderscore := true
	prevLower := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && prevLower && !prevUnderscore {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevUnderscore = false
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		case !prevUnderscore:
			b.WriteByte('_')
			prevUnderscore = true
			prevLower = false
		}
	}
	return strings.Trim(b.String(), "_")
}
