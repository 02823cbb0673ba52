package menu

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/menukit/menu/payload"
)

// Default captions for the bottom control row.
const (
	defaultDoneButtonText   = "✅ Done"
	defaultBackButtonText   = "⬅️ Back"
	defaultCancelButtonText = "❌ Cancel"
)

// Selection markers prepended to option labels.
const (
	markerChecked   = "✅"
	markerUnchecked = "⬜️"
	markerRadioOn   = "🔘"
	markerRadioOff  = "⚪️"
)

// dataButton builds an inline button carrying raw callback data, bypassing
// telebot's unique-prefix convention so the payload codec sees the exact
// bytes it produced.
func dataButton(text string, p payload.Payload) tele.InlineButton {
	return tele.InlineButton{Text: text, Data: p.MustEncode()}
}

// chunkInline splits a flat button list into rows of up to n buttons.
func chunkInline(buttons []tele.InlineButton, n int) [][]tele.InlineButton {
	if n < 1 {
		n = 1
	}
	rows := make([][]tele.InlineButton, 0, (len(buttons)+n-1)/n)
	for i := 0; i < len(buttons); i += n {
		end := i + n
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}

// controlRow builds the bottom back/cancel/done row for a definition, or nil
// when the menu declares no controls.
func controlRow(def Definition) []tele.InlineButton {
	base := def.Common()
	var row []tele.InlineButton
	if c := base.Back; c != nil {
		row = append(row, dataButton(c.label(defaultBackButtonText), leavePayload(payload.NewBack(c.steps()), c)))
	}
	if c := base.Cancel; c != nil {
		row = append(row, dataButton(c.label(defaultCancelButtonText), leavePayload(payload.NewCancel(c.steps()), c)))
	}
	if c := base.Done; c != nil {
		row = append(row, dataButton(c.label(defaultDoneButtonText), leavePayload(payload.NewDone(c.steps()), c)))
	}
	return row
}

// leavePayload routes a control button to its declared target menu, when any.
func leavePayload(p payload.Payload, c *ControlButton) payload.Payload {
	p.ID = c.target()
	return p
}

// ForceReply returns a markup that forces the user to reply.
func ForceReply() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{ForceReply: true}
}

// RemoveKeyboard returns a markup that hides the keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}
