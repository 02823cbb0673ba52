// Package convdata holds the serializable per-conversation state snapshot:
// per-menu transient data, the navigation history stack, and the values
// finalized when a menu is left via "done".
package convdata

import (
	"encoding/json"
	"fmt"
)

// MenuData is the transient state of a single menu within one conversation.
type MenuData struct {
	// MessageID is the Telegram message currently displaying this menu,
	// or 0 when none has been sent yet.
	MessageID int `json:"message_id"`
	// Page is the zero-based pagination cursor for button lists.
	Page int `json:"page"`
	// Data is the menu-type-specific working value: an option->bool map
	// for checkbox menus, a single option key for radio menus, the parsed
	// answer for text menus.
	Data json.RawMessage `json:"data,omitempty"`
}

// HasData reports whether working data has been initialized.
func (m *MenuData) HasData() bool {
	return len(m.Data) > 0 && string(m.Data) != "null"
}

// DecodeData unmarshals the working value into v.
func (m *MenuData) DecodeData(v any) error {
	if !m.HasData() {
		return fmt.Errorf("convdata: menu has no working data")
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("convdata: decode working data: %w", err)
	}
	return nil
}

// EncodeData marshals v into the working value.
func (m *MenuData) EncodeData(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("convdata: encode working data: %w", err)
	}
	m.Data = raw
	return nil
}

// ConversationData is the full persisted state for one conversation.
type ConversationData struct {
	// Menus maps menu identifier to that menu's transient data. Entries are
	// created lazily the first time a menu is activated.
	Menus map[string]*MenuData `json:"menus"`
	// History is a stack of menu identifiers in navigation order. The top
	// equals the identifier of the currently active menu whenever the
	// active state is a registered menu.
	History []string `json:"history"`
	// SavedData maps menu identifier to the finalized selection recorded
	// when the menu was left via "done".
	SavedData map[string]json.RawMessage `json:"saved_data"`
}

// New returns an empty conversation skeleton.
func New() *ConversationData {
	return &ConversationData{
		Menus:     make(map[string]*MenuData),
		History:   make([]string, 0),
		SavedData: make(map[string]json.RawMessage),
	}
}

// Serialize encodes the conversation into its storage blob.
func (d *ConversationData) Serialize() ([]byte, error) {
	blob, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("convdata: serialize: %w", err)
	}
	return blob, nil
}

// Deserialize decodes a storage blob. An absent blob yields a fresh empty
// conversation.
func Deserialize(blob []byte) (*ConversationData, error) {
	if len(blob) == 0 {
		return New(), nil
	}
	d := New()
	if err := json.Unmarshal(blob, d); err != nil {
		return nil, fmt.Errorf("convdata: deserialize: %w", err)
	}
	if d.Menus == nil {
		d.Menus = make(map[string]*MenuData)
	}
	if d.History == nil {
		d.History = make([]string, 0)
	}
	if d.SavedData == nil {
		d.SavedData = make(map[string]json.RawMessage)
	}
	return d, nil
}

// Menu returns the data entry for id, or nil when the menu was never visited.
func (d *ConversationData) Menu(id string) *MenuData {
	return d.Menus[id]
}

// EnsureMenu returns the data entry for id, creating an empty one on first visit.
func (d *ConversationData) EnsureMenu(id string) *MenuData {
	if m, ok := d.Menus[id]; ok {
		return m
	}
	m := &MenuData{}
	d.Menus[id] = m
	return m
}

// Top returns the identifier on top of the history stack, or "" when empty.
func (d *ConversationData) Top() string {
	if len(d.History) == 0 {
		return ""
	}
	return d.History[len(d.History)-1]
}

// Push appends id to the history stack.
func (d *ConversationData) Push(id string) {
	d.History = append(d.History, id)
}

// PushUnlessTop appends id only when it differs from the current top, so
// re-activating the same menu does not duplicate consecutive entries.
func (d *ConversationData) PushUnlessTop(id string) {
	if d.Top() != id {
		d.Push(id)
	}
}

// Pop removes and returns the top history entry, or "" when empty.
func (d *ConversationData) Pop() string {
	if len(d.History) == 0 {
		return ""
	}
	top := d.History[len(d.History)-1]
	d.History = d.History[:len(d.History)-1]
	return top
}
