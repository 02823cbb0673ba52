package machine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/menukit/menu"
	"github.com/m3rciful/menukit/store/memory"
)

type sentMessage struct {
	ChatID    int64
	MessageID int
	Text      string
	Markup    *tele.ReplyMarkup
}

type editedMessage struct {
	ChatID    int64
	MessageID int
	Text      string
	Markup    *tele.ReplyMarkup
}

// fakeTransport records outgoing traffic and hands out message ids.
type fakeTransport struct {
	mu     sync.Mutex
	nextID int
	sends  []sentMessage
	edits  []editedMessage
}

func (f *fakeTransport) Send(_ context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sends = append(f.sends, sentMessage{ChatID: chatID, MessageID: f.nextID, Text: text, Markup: markup})
	return f.nextID, nil
}

func (f *fakeTransport) Edit(_ context.Context, chatID int64, messageID int, text string, markup *tele.ReplyMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editedMessage{ChatID: chatID, MessageID: messageID, Text: text, Markup: markup})
	return nil
}

func (f *fakeTransport) lastSend(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sends)
	return f.sends[len(f.sends)-1]
}

func (f *fakeTransport) lastEdit(t *testing.T) editedMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.edits)
	return f.edits[len(f.edits)-1]
}

const testChat int64 = 1234

// newTestMachine builds a machine with the menu set used across the tests:
// a main navigation menu, a checkbox, a radio, a text input and an upload.
func newTestMachine(t *testing.T) (*Machine, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	m := New(memory.New(), tr)
	require.NoError(t, m.Register(
		&menu.Navigation{
			Base: menu.Base{Name: "main_menu", Title: menu.Static("Main"), Cancel: &menu.ControlButton{}},
			Destinations: []menu.Destination{
				{MenuID: "test_checkbox", Label: menu.Static("Shopping")},
				{MenuID: "test_radio", Label: menu.Static("Pick one")},
				{MenuID: "email_input", Label: menu.Static("Email")},
				{MenuID: "avatar_upload", Label: menu.Static("Avatar")},
			},
		},
		&menu.Checkbox{
			Base: menu.Base{Name: "test_checkbox", Title: menu.Static("Shopping"), Back: &menu.ControlButton{}, Done: &menu.ControlButton{}, Cancel: &menu.ControlButton{}},
			Options: []menu.CheckboxOption{
				{Key: "eggs", Label: "Eggs", Default: true},
				{Key: "milk", Label: "Milk"},
				{Key: "flour", Label: "Flour"},
			},
		},
		&menu.Radio{
			Base: menu.Base{Name: "test_radio", Title: menu.Static("Pick one"), Back: &menu.ControlButton{}, Done: &menu.ControlButton{}},
			Options: []menu.RadioOption{
				{Key: "mom", Label: "Mom"},
				{Key: "waifu", Label: "Waifu", Default: true},
			},
		},
		&menu.TextInput{
			Base:   menu.Base{Name: "email_input", Title: menu.Static("Your email?")},
			Parser: menu.ParseEmail,
		},
		&menu.Upload{
			Base:        menu.Base{Name: "avatar_upload", Title: menu.Static("Send a picture")},
			AllowedMIME: []string{"image/*"},
		},
	))
	return m, tr
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	m := New(memory.New(), &fakeTransport{})
	def := &menu.Navigation{
		Base:         menu.Base{Name: "Main Menu", Title: menu.Static("Main")},
		Destinations: []menu.Destination{{MenuID: "x"}},
	}
	require.NoError(t, m.Register(def))
	err := m.Register(&menu.Navigation{
		Base:         menu.Base{Name: "main_menu", Title: menu.Static("Other")},
		Destinations: []menu.Destination{{MenuID: "y"}},
	})
	assert.ErrorIs(t, err, ErrDuplicateMenu)
}

func TestRegisterRejectsInvalid(t *testing.T) {
	m := New(memory.New(), &fakeTransport{})
	err := m.Register(&menu.Navigation{Base: menu.Base{Name: "x", Title: menu.Static("X")}})
	assert.ErrorIs(t, err, menu.ErrInvalidDefinition)
}

func TestMenusSorted(t *testing.T) {
	m, _ := newTestMachine(t)
	assert.Equal(t, []string{"avatar_upload", "email_input", "main_menu", "test_checkbox", "test_radio"}, m.Menus())
}

func TestOpenActivatesAndPersists(t *testing.T) {
	ctx := context.Background()
	m, tr := newTestMachine(t)

	require.NoError(t, m.Open(ctx, testChat, "main_menu"))

	sent := tr.lastSend(t)
	assert.Equal(t, testChat, sent.ChatID)
	assert.Contains(t, sent.Text, "Main")

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, "main_menu", conv.State)
	assert.Equal(t, []string{"main_menu"}, conv.Data.History)
	assert.Equal(t, sent.MessageID, conv.Data.Menu("main_menu").MessageID)

	def, err := m.LastMenu(ctx, conv, false)
	require.NoError(t, err)
	assert.Nil(t, def, "a single history entry has no previous menu")
	assert.Equal(t, "main_menu", m.CurrentMenu(conv).ID())
}

func TestOpenUnknownMenu(t *testing.T) {
	m, _ := newTestMachine(t)
	err := m.Open(context.Background(), testChat, "nope")
	assert.ErrorIs(t, err, ErrUnknownMenu)
}

func TestActivateSameMenuDoesNotGrowHistory(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)

	require.NoError(t, m.Open(ctx, testChat, "main_menu"))
	require.NoError(t, m.Open(ctx, testChat, "main_menu"))

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, []string{"main_menu"}, conv.Data.History)
}

func TestActivateInitializesDefaults(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)

	require.NoError(t, m.Open(ctx, testChat, "test_checkbox"))
	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)

	var checks map[string]bool
	require.NoError(t, conv.Data.Menu("test_checkbox").DecodeData(&checks))
	assert.Equal(t, map[string]bool{"eggs": true, "milk": false, "flour": false}, checks)

	require.NoError(t, m.Open(ctx, testChat, "test_radio"))
	conv, err = m.Load(ctx, testChat)
	require.NoError(t, err)
	var selected string
	require.NoError(t, conv.Data.Menu("test_radio").DecodeData(&selected))
	assert.Equal(t, "waifu", selected)
}

func TestNavigationEditsInPlace(t *testing.T) {
	ctx := context.Background()
	m, tr := newTestMachine(t)

	require.NoError(t, m.Open(ctx, testChat, "main_menu"))
	first := tr.lastSend(t)

	ack, err := m.HandleCallback(ctx, testChat, "m|goto|test_checkbox|")
	require.NoError(t, err)
	assert.Empty(t, ack)

	edit := tr.lastEdit(t)
	assert.Equal(t, first.MessageID, edit.MessageID, "navigation reuses the display message")
	assert.Contains(t, edit.Text, "Shopping")

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, "test_checkbox", conv.State)
	assert.Equal(t, []string{"main_menu", "test_checkbox"}, conv.Data.History)
}

func TestLastMenuMismatch(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)

	require.NoError(t, m.Open(ctx, testChat, "main_menu"))
	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)

	conv.State = "test_radio"
	_, err = m.LastMenu(ctx, conv, false)
	assert.ErrorIs(t, err, ErrHistoryMismatch)

	conv.State = "main_menu"
	conv.Data.History = nil
	_, err = m.LastMenu(ctx, conv, false)
	assert.ErrorIs(t, err, ErrHistoryMismatch, "active menu with empty history is divergence")
}

func TestLastMenuActivate(t *testing.T) {
	ctx := context.Background()
	m, tr := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "main_menu"))
	_, err := m.HandleCallback(ctx, testChat, "m|goto|test_checkbox|")
	require.NoError(t, err)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)

	def, err := m.LastMenu(ctx, conv, false)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "main_menu", def.ID())
	assert.Equal(t, "test_checkbox", conv.State, "peek does not activate")

	def, err = m.LastMenu(ctx, conv, true)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "main_menu", conv.State)
	assert.Equal(t, []string{"main_menu"}, conv.Data.History)

	edit := tr.lastEdit(t)
	assert.Contains(t, edit.Text, "Main")
}

func TestLoadFreshConversation(t *testing.T) {
	m, _ := newTestMachine(t)
	conv, err := m.Load(context.Background(), 999)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, conv.State)
	assert.Empty(t, conv.Data.History)
	assert.Nil(t, m.CurrentMenu(conv))
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)

	require.NoError(t, m.Open(ctx, testChat, "main_menu"))
	require.NoError(t, m.Reset(ctx, testChat))

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, conv.State)
	assert.Empty(t, conv.Data.History)
}

func TestOnTextTrigger(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)

	m.OnText("menu", func(ctx context.Context, conv *Conversation, _ string) error {
		return m.Activate(ctx, conv, "main_menu", HistoryAuto)
	})

	handled, err := m.HandleText(ctx, testChat, "menu")
	require.NoError(t, err)
	assert.True(t, handled)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, "main_menu", conv.State)
}

// navWithTrigger is a navigation menu that also reacts to a caption text.
type navWithTrigger struct {
	menu.Navigation
	machine *Machine
}

func (n *navWithTrigger) Triggers() []Trigger {
	return []Trigger{{
		Text: "📋 Menu",
		Handler: func(ctx context.Context, conv *Conversation, _ string) error {
			return n.machine.Activate(ctx, conv, n.ID(), HistoryAuto)
		},
	}}
}

func TestRegisterCollectsTriggers(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{}
	m := New(memory.New(), tr)
	def := &navWithTrigger{
		Navigation: menu.Navigation{
			Base:         menu.Base{Name: "root", Title: menu.Static("Root")},
			Destinations: []menu.Destination{{MenuID: "root"}},
		},
		machine: m,
	}
	require.NoError(t, m.Register(def))

	handled, err := m.HandleText(ctx, testChat, "📋 Menu")
	require.NoError(t, err)
	assert.True(t, handled)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, "root", conv.State)
}

func TestHandleTextIgnoredWhenIdle(t *testing.T) {
	m, _ := newTestMachine(t)
	handled, err := m.HandleText(context.Background(), testChat, "hello")
	require.NoError(t, err)
	assert.False(t, handled)
}
