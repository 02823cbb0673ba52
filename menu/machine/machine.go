// Package machine runs declared menus for live conversations: it keeps the
// active state and navigation history per chat, reacts to button presses and
// replies, and persists everything through a conversation store.
package machine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/menukit/core/logger"
	"github.com/m3rciful/menukit/menu"
	"github.com/m3rciful/menukit/menu/convdata"
	"github.com/m3rciful/menukit/store"
)

// StateIdle is the active state of a conversation showing no menu.
const StateIdle = "idle"

var (
	ErrUnknownMenu     = errors.New("machine: unknown menu")
	ErrDuplicateMenu   = errors.New("machine: duplicate menu")
	ErrHistoryMismatch = errors.New("machine: history top does not match active state")
)

// Transport sends and edits the bot's messages. The production implementation
// wraps a telebot bot; tests substitute a fake.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (messageID int, err error)
	Edit(ctx context.Context, chatID int64, messageID int, text string, markup *tele.ReplyMarkup) error
}

// HistoryMode controls how activating a menu touches the history stack.
type HistoryMode int

const (
	// HistoryAuto pushes the menu unless it already tops the stack.
	HistoryAuto HistoryMode = iota
	// HistoryPush always pushes, even when re-activating the top menu.
	HistoryPush
	// HistorySkip activates without recording a history entry.
	HistorySkip
)

// Conversation is one chat's live state: the active menu identifier (or
// StateIdle) plus the persisted conversation data.
type Conversation struct {
	ChatID int64
	State  string
	Data   *convdata.ConversationData
}

// record is the stored envelope wrapping conversation data with the active
// state name.
type record struct {
	State string                     `json:"state"`
	Data  *convdata.ConversationData `json:"data"`
}

// TextFunc handles one free-form text trigger outside of menu input. The
// handler mutates conv, usually via Activate, and the machine persists conv
// after it returns. Calling Open from a handler would deadlock on the chat
// lock.
type TextFunc func(ctx context.Context, conv *Conversation, text string) error

// Machine dispatches updates against a set of registered menus.
type Machine struct {
	store     store.Store
	transport Transport

	mu       sync.RWMutex
	menus    map[string]menu.Definition
	triggers map[string]TextFunc

	locks sync.Map // chat key -> *sync.Mutex
}

// New builds an empty machine on top of a store and a transport.
func New(st store.Store, tr Transport) *Machine {
	return &Machine{
		store:     st,
		transport: tr,
		menus:     make(map[string]menu.Definition),
		triggers:  make(map[string]TextFunc),
	}
}

// Trigger binds a free-form text message to a handler.
type Trigger struct {
	Text    string
	Handler TextFunc
}

// TriggerProvider is implemented by definitions that bring their own text
// triggers. Register collects the pairs so menu authors do not wire a
// dispatcher by hand.
type TriggerProvider interface {
	Triggers() []Trigger
}

// Register validates and adds menu definitions. Identifiers must be unique.
// Definitions implementing TriggerProvider get their text triggers bound as
// part of registration.
func (m *Machine) Register(defs ...menu.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return err
		}
		id := def.ID()
		if _, exists := m.menus[id]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateMenu, id)
		}
		m.menus[id] = def
		if tp, ok := def.(TriggerProvider); ok {
			for _, t := range tp.Triggers() {
				if t.Text == "" || t.Handler == nil {
					continue
				}
				m.triggers[t.Text] = t.Handler
			}
		}
	}
	return nil
}

// MustRegister is Register for statically declared menus.
func (m *Machine) MustRegister(defs ...menu.Definition) {
	if err := m.Register(defs...); err != nil {
		panic(err)
	}
}

// OnText binds a handler to an exact text trigger, checked before menu text
// input. Triggers are the place for reply-keyboard captions and shortcuts.
func (m *Machine) OnText(trigger string, fn TextFunc) {
	if trigger == "" || fn == nil {
		return
	}
	m.mu.Lock()
	m.triggers[trigger] = fn
	m.mu.Unlock()
}

// Lookup returns the definition for id, or nil.
func (m *Machine) Lookup(id string) menu.Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.menus[menu.NormalizeID(id)]
}

// Menus returns all registered identifiers, sorted.
func (m *Machine) Menus() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.menus))
	for id := range m.menus {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CurrentMenu returns the definition of the conversation's active menu, or
// nil when idle.
func (m *Machine) CurrentMenu(conv *Conversation) menu.Definition {
	if conv == nil || conv.State == StateIdle {
		return nil
	}
	return m.Lookup(conv.State)
}

// LastMenu returns the menu visited before the active one, or nil when the
// history holds fewer than two entries. The history top must match the
// active state; a mismatch means the two structures diverged and is reported
// loudly instead of being papered over. With activate set, the active menu
// is popped and the previous one brought back on screen without recording
// new history.
func (m *Machine) LastMenu(ctx context.Context, conv *Conversation, activate bool) (menu.Definition, error) {
	top := conv.Data.Top()
	if conv.State == StateIdle {
		if top != "" {
			return nil, fmt.Errorf("%w: state=%q top=%q", ErrHistoryMismatch, conv.State, top)
		}
		return nil, nil
	}
	if conv.State != top {
		return nil, fmt.Errorf("%w: state=%q top=%q", ErrHistoryMismatch, conv.State, top)
	}
	if len(conv.Data.History) < 2 {
		return nil, nil
	}
	prev := conv.Data.History[len(conv.Data.History)-2]
	def := m.Lookup(prev)
	if def == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMenu, prev)
	}
	if activate {
		conv.Data.Pop()
		if err := m.Activate(ctx, conv, prev, HistorySkip); err != nil {
			return nil, err
		}
	}
	return def, nil
}

// Load fetches the conversation for chatID, returning a fresh idle one when
// nothing is stored yet.
func (m *Machine) Load(ctx context.Context, chatID int64) (*Conversation, error) {
	blob, err := m.store.Load(ctx, chatKey(chatID))
	if errors.Is(err, store.ErrNotFound) {
		return &Conversation{ChatID: chatID, State: StateIdle, Data: convdata.New()}, nil
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := decodeRecord(blob, &rec); err != nil {
		return nil, err
	}
	if rec.Data == nil {
		rec.Data = convdata.New()
	}
	if rec.State == "" {
		rec.State = StateIdle
	}
	return &Conversation{ChatID: chatID, State: rec.State, Data: rec.Data}, nil
}

// Save persists the conversation.
func (m *Machine) Save(ctx context.Context, conv *Conversation) error {
	blob, err := encodeRecord(record{State: conv.State, Data: conv.Data})
	if err != nil {
		return err
	}
	if err := m.store.Save(ctx, chatKey(conv.ChatID), blob); err != nil {
		logger.LogEvent(ctx, logger.Store, slog.LevelError, "store.save",
			slog.String("status", "fail"),
			slog.Int64("chat_id", conv.ChatID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// Reset drops all stored state for chatID.
func (m *Machine) Reset(ctx context.Context, chatID int64) error {
	return m.store.Delete(ctx, chatKey(chatID))
}

// Open loads the conversation, activates menuID and persists the result.
// It is the entry point for commands like /start.
func (m *Machine) Open(ctx context.Context, chatID int64, menuID string) error {
	unlock := m.lockChat(chatID)
	defer unlock()

	conv, err := m.Load(ctx, chatID)
	if err != nil {
		return err
	}
	if err := m.Activate(ctx, conv, menuID, HistoryAuto); err != nil {
		return err
	}
	return m.Save(ctx, conv)
}

// Activate switches the conversation to menuID: initializes the menu's
// working data on first visit, records history per mode, renders and
// displays the menu. The caller persists the conversation afterwards.
func (m *Machine) Activate(ctx context.Context, conv *Conversation, menuID string, mode HistoryMode) error {
	id := menu.NormalizeID(menuID)
	def := m.Lookup(id)
	if def == nil {
		return fmt.Errorf("%w: %q", ErrUnknownMenu, menuID)
	}

	prevMessageID := m.displayMessageID(conv)

	md := conv.Data.EnsureMenu(id)
	m.initWorkingData(ctx, conv, def, md)

	switch mode {
	case HistoryPush:
		conv.Data.Push(id)
	case HistorySkip:
	default:
		conv.Data.PushUnlessTop(id)
	}
	conv.State = id

	if err := m.display(ctx, conv, def, md, prevMessageID); err != nil {
		return err
	}

	logger.LogEvent(ctx, logger.Machine, slog.LevelInfo, "menu.activate",
		slog.Int64("chat_id", conv.ChatID),
		slog.String("menu", id),
		slog.String("state", conv.State),
		slog.Int("history_depth", len(conv.Data.History)),
		slog.Int("message_id", md.MessageID),
	)
	return nil
}

// initWorkingData seeds a menu's working data from its declared defaults on
// first visit.
func (m *Machine) initWorkingData(ctx context.Context, conv *Conversation, def menu.Definition, md *convdata.MenuData) {
	if md.HasData() {
		return
	}
	switch d := def.(type) {
	case *menu.Checkbox:
		if err := md.EncodeData(d.Defaults()); err != nil {
			logger.LogEvent(ctx, logger.Machine, slog.LevelWarn, "menu.defaults",
				slog.String("status", "fail"),
				slog.Int64("chat_id", conv.ChatID),
				slog.String("menu", def.ID()),
				slog.String("error", err.Error()),
			)
		}
	case *menu.Radio:
		if key := d.Default(); key != "" {
			if err := md.EncodeData(key); err != nil {
				logger.LogEvent(ctx, logger.Machine, slog.LevelWarn, "menu.defaults",
					slog.String("status", "fail"),
					slog.Int64("chat_id", conv.ChatID),
					slog.String("menu", def.ID()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// display renders the menu and brings it on screen, editing the existing
// display message where possible and sending a new one otherwise.
func (m *Machine) display(ctx context.Context, conv *Conversation, def menu.Definition, md *convdata.MenuData, inheritMessageID int) error {
	rendered, err := menu.Render(def, m.renderContext(conv, def.ID(), md.Page))
	if err != nil {
		return err
	}

	// A force-reply prompt cannot replace an inline keyboard in place, it
	// has to arrive as a fresh message.
	if rendered.Markup != nil && rendered.Markup.ForceReply {
		id, err := m.transport.Send(ctx, conv.ChatID, rendered.Text, rendered.Markup)
		if err != nil {
			return err
		}
		md.MessageID = id
		return nil
	}

	if md.MessageID == 0 && inheritMessageID != 0 {
		md.MessageID = inheritMessageID
	}
	if md.MessageID != 0 {
		err := m.transport.Edit(ctx, conv.ChatID, md.MessageID, rendered.Text, rendered.Markup)
		if err == nil {
			return nil
		}
		logger.LogEvent(ctx, logger.Machine, slog.LevelWarn, "menu.edit",
			slog.String("status", "retry"),
			slog.Int64("chat_id", conv.ChatID),
			slog.String("menu", def.ID()),
			slog.Int("message_id", md.MessageID),
			slog.String("error", err.Error()),
		)
	}
	id, err := m.transport.Send(ctx, conv.ChatID, rendered.Text, rendered.Markup)
	if err != nil {
		return err
	}
	md.MessageID = id
	return nil
}

func (m *Machine) renderContext(conv *Conversation, menuID string, page int) *menu.Context {
	return &menu.Context{
		ChatID: conv.ChatID,
		Data:   conv.Data,
		MenuID: menuID,
		Page:   page,
		Lookup: m.Lookup,
	}
}

// displayMessageID returns the message currently showing the active menu,
// or 0 when the conversation has nothing on screen.
func (m *Machine) displayMessageID(conv *Conversation) int {
	if conv.State == StateIdle {
		return 0
	}
	if md := conv.Data.Menu(conv.State); md != nil {
		return md.MessageID
	}
	return 0
}

// lockChat serializes state mutation per chat so concurrent updates from the
// same conversation do not interleave load-modify-save cycles.
func (m *Machine) lockChat(chatID int64) func() {
	v, _ := m.locks.LoadOrStore(chatKey(chatID), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func chatKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func encodeRecord(rec record) ([]byte, error) {
	blob, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("machine: encode conversation: %w", err)
	}
	return blob, nil
}

func decodeRecord(blob []byte, rec *record) error {
	if err := json.Unmarshal(blob, rec); err != nil {
		return fmt.Errorf("machine: decode conversation: %w", err)
	}
	if rec.Data != nil {
		// Maps inside the data may come back nil from an older blob.
		if rec.Data.Menus == nil {
			rec.Data.Menus = make(map[string]*convdata.MenuData)
		}
		if rec.Data.SavedData == nil {
			rec.Data.SavedData = make(map[string]json.RawMessage)
		}
	}
	return nil
}
