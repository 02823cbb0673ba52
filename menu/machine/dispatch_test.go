package machine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/menukit/menu"
	"github.com/m3rciful/menukit/menu/payload"
	"github.com/m3rciful/menukit/store/memory"
)

func TestCallbackMalformed(t *testing.T) {
	m, _ := newTestMachine(t)
	ack, err := m.HandleCallback(context.Background(), testChat, "garbage")
	require.NoError(t, err)
	assert.Equal(t, ackMalformed, ack)
}

func TestCallbackGotoUnknownMenu(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "main_menu"))

	ack, err := m.HandleCallback(ctx, testChat, payload.NewGoto("vanished").MustEncode())
	require.NoError(t, err)
	assert.Equal(t, ackUnknownMenu, ack)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, "main_menu", conv.State, "failed navigation leaves state untouched")
}

func TestCheckboxToggle(t *testing.T) {
	ctx := context.Background()
	m, tr := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "test_checkbox"))

	ack, err := m.HandleCallback(ctx, testChat, payload.NewCheck("test_checkbox", "milk").MustEncode())
	require.NoError(t, err)
	assert.Empty(t, ack)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	var checks map[string]bool
	require.NoError(t, conv.Data.Menu("test_checkbox").DecodeData(&checks))
	assert.True(t, checks["milk"])
	assert.True(t, checks["eggs"], "other toggles stay put")

	edit := tr.lastEdit(t)
	assert.Contains(t, edit.Markup.InlineKeyboard[0][1].Text, "Milk")

	// Toggling again flips it back.
	_, err = m.HandleCallback(ctx, testChat, payload.NewCheck("test_checkbox", "milk").MustEncode())
	require.NoError(t, err)
	conv, err = m.Load(ctx, testChat)
	require.NoError(t, err)
	require.NoError(t, conv.Data.Menu("test_checkbox").DecodeData(&checks))
	assert.False(t, checks["milk"])
}

func TestCheckboxUnknownOption(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "test_checkbox"))

	ack, err := m.HandleCallback(ctx, testChat, payload.NewCheck("test_checkbox", "caviar").MustEncode())
	require.NoError(t, err)
	assert.Equal(t, ackUnknownOption, ack)
}

func TestCheckboxSelfRepair(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "test_checkbox"))

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	conv.Data.Menu("test_checkbox").Data = []byte(`"not a map"`)
	require.NoError(t, m.Save(ctx, conv))

	_, err = m.HandleCallback(ctx, testChat, payload.NewCheck("test_checkbox", "milk").MustEncode())
	require.NoError(t, err)

	conv, err = m.Load(ctx, testChat)
	require.NoError(t, err)
	var checks map[string]bool
	require.NoError(t, conv.Data.Menu("test_checkbox").DecodeData(&checks))
	assert.True(t, checks["eggs"], "repair re-derives declared defaults")
	assert.True(t, checks["milk"], "then applies the toggle")
}

func TestRadioSelect(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "test_radio"))

	ack, err := m.HandleCallback(ctx, testChat, payload.NewRadio("test_radio", "mom").MustEncode())
	require.NoError(t, err)
	assert.Empty(t, ack)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	var selected string
	require.NoError(t, conv.Data.Menu("test_radio").DecodeData(&selected))
	assert.Equal(t, "mom", selected, "selection replaces the previous one")
}

func TestDoneFinalizesAndReturns(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "main_menu"))
	_, err := m.HandleCallback(ctx, testChat, payload.NewGoto("test_radio").MustEncode())
	require.NoError(t, err)
	_, err = m.HandleCallback(ctx, testChat, payload.NewRadio("test_radio", "mom").MustEncode())
	require.NoError(t, err)

	ack, err := m.HandleCallback(ctx, testChat, payload.NewDone(1).MustEncode())
	require.NoError(t, err)
	assert.Empty(t, ack)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, "main_menu", conv.State)
	assert.Equal(t, []string{"main_menu"}, conv.Data.History)
	assert.JSONEq(t, `"mom"`, string(conv.Data.SavedData["test_radio"]))
}

func TestBackKeepsWorkingData(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "main_menu"))
	_, err := m.HandleCallback(ctx, testChat, payload.NewGoto("test_checkbox").MustEncode())
	require.NoError(t, err)
	_, err = m.HandleCallback(ctx, testChat, payload.NewCheck("test_checkbox", "flour").MustEncode())
	require.NoError(t, err)

	_, err = m.HandleCallback(ctx, testChat, payload.NewBack(1).MustEncode())
	require.NoError(t, err)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, "main_menu", conv.State)
	assert.NotContains(t, conv.Data.SavedData, "test_checkbox", "back does not finalize")

	var checks map[string]bool
	require.NoError(t, conv.Data.Menu("test_checkbox").DecodeData(&checks))
	assert.True(t, checks["flour"], "working data survives for the next visit")
}

func TestCancelDiscardsWorkingData(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "main_menu"))
	_, err := m.HandleCallback(ctx, testChat, payload.NewGoto("test_checkbox").MustEncode())
	require.NoError(t, err)
	_, err = m.HandleCallback(ctx, testChat, payload.NewCheck("test_checkbox", "flour").MustEncode())
	require.NoError(t, err)

	_, err = m.HandleCallback(ctx, testChat, payload.NewCancel(1).MustEncode())
	require.NoError(t, err)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, "main_menu", conv.State)
	assert.Nil(t, conv.Data.Menu("test_checkbox"), "cancel wipes the menu's data")
	assert.NotContains(t, conv.Data.SavedData, "test_checkbox")
}

func TestMultiStepBack(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "main_menu"))
	_, err := m.HandleCallback(ctx, testChat, payload.NewGoto("test_checkbox").MustEncode())
	require.NoError(t, err)
	_, err = m.HandleCallback(ctx, testChat, payload.NewGoto("test_radio").MustEncode())
	require.NoError(t, err)

	_, err = m.HandleCallback(ctx, testChat, payload.NewBack(2).MustEncode())
	require.NoError(t, err)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, "main_menu", conv.State)
	assert.Equal(t, []string{"main_menu"}, conv.Data.History)
}

func TestMultiStepDoneFinalizesEachMenu(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "main_menu"))
	_, err := m.HandleCallback(ctx, testChat, payload.NewGoto("test_checkbox").MustEncode())
	require.NoError(t, err)
	_, err = m.HandleCallback(ctx, testChat, payload.NewGoto("test_radio").MustEncode())
	require.NoError(t, err)

	_, err = m.HandleCallback(ctx, testChat, payload.NewDone(2).MustEncode())
	require.NoError(t, err)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, "main_menu", conv.State)
	assert.Contains(t, conv.Data.SavedData, "test_radio")
	assert.Contains(t, conv.Data.SavedData, "test_checkbox", "every menu on the walked path is finalized")
}

func TestDoneTargetJumpsThere(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{}
	m := New(memory.New(), tr)
	require.NoError(t, m.Register(
		&menu.Navigation{
			Base:         menu.Base{Name: "summary", Title: menu.Static("Summary")},
			Destinations: []menu.Destination{{MenuID: "toppings"}},
		},
		&menu.Checkbox{
			Base: menu.Base{
				Name:  "toppings",
				Title: menu.Static("Toppings"),
				Done:  &menu.ControlButton{Target: "summary"},
			},
			Options: []menu.CheckboxOption{{Key: "cheese", Default: true}},
		},
	))
	require.NoError(t, m.Open(ctx, testChat, "toppings"))

	p := payload.NewDone(1)
	p.ID = "summary"
	_, err := m.HandleCallback(ctx, testChat, p.MustEncode())
	require.NoError(t, err)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, "summary", conv.State, "done jumps to its declared target")
	assert.Contains(t, conv.Data.SavedData, "toppings", "and still finalizes")
	assert.Equal(t, []string{"summary"}, conv.Data.History)
}

func TestCancelAtRootClosesMenu(t *testing.T) {
	ctx := context.Background()
	m, tr := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "main_menu"))

	ack, err := m.HandleCallback(ctx, testChat, payload.NewCancel(1).MustEncode())
	require.NoError(t, err)
	assert.Equal(t, ackClosed, ack)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, conv.State)
	assert.Empty(t, conv.Data.History)

	edit := tr.lastEdit(t)
	assert.Equal(t, ackClosed, edit.Text)
}

func TestPaginationCallback(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{}
	m := New(memory.New(), tr)
	var opts []menu.CheckboxOption
	for i := 0; i < 25; i++ {
		opts = append(opts, menu.CheckboxOption{Key: fmt.Sprintf("opt_%02d", i)})
	}
	require.NoError(t, m.Register(&menu.Checkbox{
		Base:    menu.Base{Name: "big", Title: menu.Static("Big")},
		Options: opts,
	}))
	require.NoError(t, m.Open(ctx, testChat, "big"))

	_, err := m.HandleCallback(ctx, testChat, payload.NewPage("big", 2).MustEncode())
	require.NoError(t, err)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.Data.Menu("big").Page)

	// Out-of-range pages clamp to the last page instead of failing.
	_, err = m.HandleCallback(ctx, testChat, payload.NewPage("big", 99).MustEncode())
	require.NoError(t, err)
	conv, err = m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.Data.Menu("big").Page)

	edit := tr.lastEdit(t)
	assert.Contains(t, edit.Markup.InlineKeyboard[0][0].Text, "opt_20")
}

func TestTextInputRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	m, tr := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "email_input"))

	handled, err := m.HandleText(ctx, testChat, "not an email")
	require.NoError(t, err)
	assert.True(t, handled)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, "email_input", conv.State, "rejection keeps the menu active")
	assert.NotContains(t, conv.Data.SavedData, "email_input")

	sent := tr.lastSend(t)
	assert.True(t, sent.Markup.ForceReply, "the prompt is repeated")
}

func TestTextInputAccepted(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "main_menu"))
	_, err := m.HandleCallback(ctx, testChat, payload.NewGoto("email_input").MustEncode())
	require.NoError(t, err)

	handled, err := m.HandleText(ctx, testChat, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, handled)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.JSONEq(t, `"alice@example.com"`, string(conv.Data.SavedData["email_input"]))
	assert.Equal(t, "main_menu", conv.State, "no next menu declared, so input returns")
}

func TestUploadRejectedByMIME(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "avatar_upload"))

	handled, err := m.HandleUpload(ctx, testChat, UploadInput{FileID: "f1", MIME: "video/mp4", FileName: "clip.mp4"})
	require.NoError(t, err)
	assert.True(t, handled)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, "avatar_upload", conv.State)
	assert.NotContains(t, conv.Data.SavedData, "avatar_upload")
}

func TestUploadAccepted(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "main_menu"))
	_, err := m.HandleCallback(ctx, testChat, payload.NewGoto("avatar_upload").MustEncode())
	require.NoError(t, err)

	handled, err := m.HandleUpload(ctx, testChat, UploadInput{FileID: "f2", MIME: "image/png", FileName: "me.png", Size: 1024})
	require.NoError(t, err)
	assert.True(t, handled)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	var up UploadInput
	require.NoError(t, conv.Data.Menu("avatar_upload").DecodeData(&up))
	assert.Equal(t, "f2", up.FileID)
	assert.Contains(t, conv.Data.SavedData, "avatar_upload")
	assert.Equal(t, "main_menu", conv.State)
}

func TestUploadIgnoredWhenNotUploadMenu(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)
	require.NoError(t, m.Open(ctx, testChat, "main_menu"))

	handled, err := m.HandleUpload(ctx, testChat, UploadInput{FileID: "f3", MIME: "image/png"})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestTextInputNextChain(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{}
	m := New(memory.New(), tr)
	require.NoError(t, m.Register(
		&menu.TextInput{
			Base:   menu.Base{Name: "name_input", Title: menu.Static("Your name?")},
			Parser: menu.ParseString,
			Next:   "greeting",
		},
		&menu.Navigation{
			Base:         menu.Base{Name: "greeting", Title: menu.Template[string]("Hello {saved.name_input}")},
			Destinations: []menu.Destination{{MenuID: "name_input", Label: menu.Static("Change name")}},
		},
	))

	require.NoError(t, m.Open(ctx, testChat, "name_input"))
	handled, err := m.HandleText(ctx, testChat, "Bob")
	require.NoError(t, err)
	assert.True(t, handled)

	conv, err := m.Load(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, "greeting", conv.State)
	assert.Equal(t, []string{"name_input", "greeting"}, conv.Data.History)

	edit := tr.lastEdit(t)
	assert.Contains(t, edit.Text, "Hello Bob", "the prompt message becomes the next menu")
}
