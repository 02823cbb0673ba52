package machine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/menukit/core/logger"
	"github.com/m3rciful/menukit/menu"
	"github.com/m3rciful/menukit/menu/payload"
)

// Callback acknowledgement texts shown as Telegram toasts. Empty means a
// silent ack.
const (
	ackMalformed     = "Could not process this action."
	ackUnknownMenu   = "This menu is gone."
	ackUnknownOption = "Unknown option."
	ackClosed        = "Menu closed."
)

// HandleCallback processes one inline button press. The returned text is the
// callback acknowledgement toast, empty for a silent ack. Errors cover
// storage and transport failures only, user mistakes resolve into ack text.
func (m *Machine) HandleCallback(ctx context.Context, chatID int64, raw string) (string, error) {
	p, err := payload.Decode(raw)
	if err != nil {
		logger.LogEvent(ctx, logger.Machine, slog.LevelWarn, "callback.decode",
			slog.String("status", "fail"),
			slog.Int64("chat_id", chatID),
			slog.String("payload", logger.Sanitize(raw)),
			slog.String("error", err.Error()),
		)
		return ackMalformed, nil
	}

	unlock := m.lockChat(chatID)
	defer unlock()

	conv, err := m.Load(ctx, chatID)
	if err != nil {
		return "", err
	}

	logger.LogEvent(ctx, logger.Machine, slog.LevelDebug, "callback.dispatch",
		slog.Int64("chat_id", chatID),
		slog.String("action", string(p.Action)),
		slog.String("target", p.ID),
		slog.String("state", conv.State),
	)

	var ack string
	switch p.Action {
	case payload.Goto:
		ack, err = m.doGoto(ctx, conv, p.ID)
	case payload.Page:
		ack, err = m.doPage(ctx, conv, p)
	case payload.Back:
		ack, err = m.doLeave(ctx, conv, p.ID, p.Steps(), leaveKeep)
	case payload.Done:
		ack, err = m.doLeave(ctx, conv, p.ID, p.Steps(), leaveSave)
	case payload.Cancel:
		ack, err = m.doLeave(ctx, conv, p.ID, p.Steps(), leaveDiscard)
	case payload.Check:
		ack, err = m.doCheck(ctx, conv, p)
	case payload.Radio:
		ack, err = m.doRadio(ctx, conv, p)
	default:
		return ackMalformed, nil
	}
	if err != nil {
		return "", err
	}
	return ack, m.Save(ctx, conv)
}

func (m *Machine) doGoto(ctx context.Context, conv *Conversation, target string) (string, error) {
	err := m.Activate(ctx, conv, target, HistoryAuto)
	if errors.Is(err, ErrUnknownMenu) {
		logger.LogEvent(ctx, logger.Machine, slog.LevelError, "menu.goto",
			slog.String("status", "fail"),
			slog.Int64("chat_id", conv.ChatID),
			slog.String("target", target),
			slog.String("error", err.Error()),
		)
		return ackUnknownMenu, nil
	}
	return "", err
}

func (m *Machine) doPage(ctx context.Context, conv *Conversation, p payload.Payload) (string, error) {
	id := menu.NormalizeID(p.ID)
	def := m.Lookup(id)
	if def == nil {
		return ackUnknownMenu, nil
	}
	md := conv.Data.EnsureMenu(id)
	pages := menu.Pages(menu.ContentCount(def))
	md.Page = menu.ClampPage(p.PageNumber(), pages)

	logger.LogEvent(ctx, logger.Machine, slog.LevelDebug, "menu.page",
		slog.Int64("chat_id", conv.ChatID),
		slog.String("menu", id),
		slog.Int("page", md.Page),
		slog.Int("pages", pages),
	)

	if conv.State != id {
		// Page press on a stale keyboard of an inactive menu. The cursor
		// is updated, the active display stays untouched.
		return "", nil
	}
	return "", m.display(ctx, conv, def, md, 0)
}

// leavePolicy says what happens to the active menu's working data when a
// control button leaves it.
type leavePolicy int

const (
	leaveKeep leavePolicy = iota
	leaveSave
	leaveDiscard
)

// doLeave implements back, done and cancel: walk steps history entries, apply
// the data policy to each menu popped, and activate the menu that surfaces
// without recording the return as new history. A non-empty explicit target
// jumps there instead, recorded as a regular visit.
func (m *Machine) doLeave(ctx context.Context, conv *Conversation, explicitTarget string, steps int, policy leavePolicy) (string, error) {
	active := conv.State
	activeMessageID := m.displayMessageID(conv)

	for i := 0; i < steps && len(conv.Data.History) > 0; i++ {
		left := conv.Data.Top()
		switch policy {
		case leaveSave:
			m.finalize(ctx, conv, left)
		case leaveDiscard:
			delete(conv.Data.Menus, left)
		}
		conv.Data.Pop()
	}

	if explicitTarget != "" {
		if err := m.Activate(ctx, conv, explicitTarget, HistoryAuto); err != nil {
			if errors.Is(err, ErrUnknownMenu) {
				return m.close(ctx, conv, activeMessageID)
			}
			return "", err
		}
		return "", nil
	}

	target := conv.Data.Top()

	logger.LogEvent(ctx, logger.Machine, slog.LevelInfo, "menu.leave",
		slog.Int64("chat_id", conv.ChatID),
		slog.String("menu", active),
		slog.String("target", target),
		slog.Int("steps", steps),
		slog.Int("history_depth", len(conv.Data.History)),
	)

	if target == "" {
		return m.close(ctx, conv, activeMessageID)
	}
	if err := m.Activate(ctx, conv, target, HistorySkip); err != nil {
		if errors.Is(err, ErrUnknownMenu) {
			return m.close(ctx, conv, activeMessageID)
		}
		return "", err
	}
	return "", nil
}

// close ends the menu session: the display message loses its keyboard and
// the conversation returns to idle.
func (m *Machine) close(ctx context.Context, conv *Conversation, messageID int) (string, error) {
	conv.State = StateIdle
	if messageID != 0 {
		if err := m.transport.Edit(ctx, conv.ChatID, messageID, ackClosed, nil); err != nil {
			logger.LogEvent(ctx, logger.Machine, slog.LevelWarn, "menu.close",
				slog.String("status", "fail"),
				slog.Int64("chat_id", conv.ChatID),
				slog.Int("message_id", messageID),
				slog.String("error", err.Error()),
			)
		}
	}
	return ackClosed, nil
}

// finalize copies the active menu's working data into saved data.
func (m *Machine) finalize(ctx context.Context, conv *Conversation, id string) {
	md := conv.Data.Menu(id)
	if md == nil || !md.HasData() {
		return
	}
	conv.Data.SavedData[id] = md.Data
	logger.LogEvent(ctx, logger.Machine, slog.LevelInfo, "menu.done",
		slog.Int64("chat_id", conv.ChatID),
		slog.String("menu", id),
	)
}

func (m *Machine) doCheck(ctx context.Context, conv *Conversation, p payload.Payload) (string, error) {
	id := menu.NormalizeID(p.ID)
	box, ok := m.Lookup(id).(*menu.Checkbox)
	if !ok {
		return ackUnknownMenu, nil
	}
	if !hasCheckboxOption(box, p.Value) {
		return ackUnknownOption, nil
	}

	md := conv.Data.EnsureMenu(id)
	checks := map[string]bool{}
	if md.HasData() {
		if err := md.DecodeData(&checks); err != nil {
			// Corrupt working data self-repairs from declared defaults.
			logger.LogEvent(ctx, logger.Machine, slog.LevelWarn, "menu.check",
				slog.String("status", "retry"),
				slog.Int64("chat_id", conv.ChatID),
				slog.String("menu", id),
				slog.String("error", err.Error()),
			)
			checks = box.Defaults()
		}
	} else {
		checks = box.Defaults()
	}
	checks[p.Value] = !checks[p.Value]
	if err := md.EncodeData(checks); err != nil {
		return "", err
	}

	logger.LogEvent(ctx, logger.Machine, slog.LevelDebug, "menu.check",
		slog.Int64("chat_id", conv.ChatID),
		slog.String("menu", id),
		slog.String("option", p.Value),
	)
	return "", m.redisplay(ctx, conv, box, id)
}

func (m *Machine) doRadio(ctx context.Context, conv *Conversation, p payload.Payload) (string, error) {
	id := menu.NormalizeID(p.ID)
	radio, ok := m.Lookup(id).(*menu.Radio)
	if !ok {
		return ackUnknownMenu, nil
	}
	if !hasRadioOption(radio, p.Value) {
		return ackUnknownOption, nil
	}

	md := conv.Data.EnsureMenu(id)
	if err := md.EncodeData(p.Value); err != nil {
		return "", err
	}

	logger.LogEvent(ctx, logger.Machine, slog.LevelDebug, "menu.radio",
		slog.Int64("chat_id", conv.ChatID),
		slog.String("menu", id),
		slog.String("option", p.Value),
	)
	return "", m.redisplay(ctx, conv, radio, id)
}

// redisplay refreshes the keyboard of a selection menu when it is the one on
// screen. Presses on stale keyboards mutate state without redrawing.
func (m *Machine) redisplay(ctx context.Context, conv *Conversation, def menu.Definition, id string) error {
	if conv.State != id {
		return nil
	}
	return m.display(ctx, conv, def, conv.Data.EnsureMenu(id), 0)
}

func hasCheckboxOption(box *menu.Checkbox, key string) bool {
	for _, o := range box.Options {
		if o.Key == key {
			return true
		}
	}
	return false
}

func hasRadioOption(radio *menu.Radio, key string) bool {
	for _, o := range radio.Options {
		if o.Key == key {
			return true
		}
	}
	return false
}

// HandleText processes one incoming text message. It reports whether the
// machine consumed it: a registered trigger matched or the active menu was
// awaiting text input. Unconsumed messages stay with the caller's other
// handlers.
func (m *Machine) HandleText(ctx context.Context, chatID int64, text string) (bool, error) {
	m.mu.RLock()
	trigger := m.triggers[text]
	m.mu.RUnlock()

	unlock := m.lockChat(chatID)
	defer unlock()

	conv, err := m.Load(ctx, chatID)
	if err != nil {
		return false, err
	}

	if trigger != nil {
		if err := trigger(ctx, conv, text); err != nil {
			return true, err
		}
		return true, m.Save(ctx, conv)
	}

	input, ok := m.CurrentMenu(conv).(*menu.TextInput)
	if !ok {
		return false, nil
	}

	value, err := input.Parser(text)
	if err != nil {
		if !errors.Is(err, menu.ErrInvalidInput) {
			return true, fmt.Errorf("machine: parse text for %q: %w", input.ID(), err)
		}
		logger.LogEvent(ctx, logger.Machine, slog.LevelDebug, "menu.text",
			slog.String("status", "retry"),
			slog.Int64("chat_id", chatID),
			slog.String("menu", input.ID()),
		)
		if err := m.reprompt(ctx, conv, input, err); err != nil {
			return true, err
		}
		return true, m.Save(ctx, conv)
	}

	md := conv.Data.EnsureMenu(input.ID())
	if err := md.EncodeData(value); err != nil {
		return true, err
	}
	m.finalize(ctx, conv, input.ID())

	if err := m.advance(ctx, conv, input.Next); err != nil {
		return true, err
	}
	return true, m.Save(ctx, conv)
}

// UploadInput describes one incoming document or photo, already reduced to
// the fields menus care about.
type UploadInput struct {
	FileID   string `json:"file_id"`
	MIME     string `json:"mime"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
}

// HandleUpload processes one incoming file. It reports whether the active
// menu consumed it.
func (m *Machine) HandleUpload(ctx context.Context, chatID int64, up UploadInput) (bool, error) {
	unlock := m.lockChat(chatID)
	defer unlock()

	conv, err := m.Load(ctx, chatID)
	if err != nil {
		return false, err
	}
	def, ok := m.CurrentMenu(conv).(*menu.Upload)
	if !ok {
		return false, nil
	}

	if !def.Accepts(up.MIME, up.FileName) {
		logger.LogEvent(ctx, logger.Machine, slog.LevelDebug, "menu.upload",
			slog.String("status", "retry"),
			slog.Int64("chat_id", chatID),
			slog.String("menu", def.ID()),
			slog.String("mime", up.MIME),
		)
		if err := m.reprompt(ctx, conv, def, fmt.Errorf("%w: this file type is not accepted here", menu.ErrInvalidInput)); err != nil {
			return true, err
		}
		return true, m.Save(ctx, conv)
	}

	md := conv.Data.EnsureMenu(def.ID())
	if err := md.EncodeData(up); err != nil {
		return true, err
	}
	m.finalize(ctx, conv, def.ID())

	logger.LogEvent(ctx, logger.Machine, slog.LevelInfo, "menu.upload",
		slog.Int64("chat_id", chatID),
		slog.String("menu", def.ID()),
		slog.String("mime", up.MIME),
	)

	if err := m.advance(ctx, conv, def.Next); err != nil {
		return true, err
	}
	return true, m.Save(ctx, conv)
}

// advance moves on after a successful input: to the declared next menu, or
// one history step back when none is declared.
func (m *Machine) advance(ctx context.Context, conv *Conversation, next string) error {
	if next != "" {
		return m.Activate(ctx, conv, next, HistoryAuto)
	}
	_, err := m.doLeave(ctx, conv, "", 1, leaveKeep)
	return err
}

// reprompt tells the user their reply was rejected and repeats the prompt.
// The active menu does not change.
func (m *Machine) reprompt(ctx context.Context, conv *Conversation, def menu.Definition, cause error) error {
	text := "That did not work, please try again."
	if msg := userFacing(cause); msg != "" {
		text = msg
	}
	if _, err := m.transport.Send(ctx, conv.ChatID, text, nil); err != nil {
		return err
	}
	md := conv.Data.EnsureMenu(def.ID())
	return m.display(ctx, conv, def, md, 0)
}

// userFacing strips the sentinel prefix from a validation error, leaving the
// human part of the message.
func userFacing(err error) string {
	if !errors.Is(err, menu.ErrInvalidInput) {
		return ""
	}
	msg := err.Error()
	const prefix = "menu: invalid input: "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return "That does not look right: " + msg[len(prefix):] + ". Please try again."
	}
	return "That does not look right, please try again."
}
