// Package payload encodes and decodes the compact callback data carried by
// inline keyboard buttons. The wire form is a short prefixed record that fits
// within Telegram's 64-byte callback data limit.
package payload

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Action identifies what pressing a button should do.
type Action string

const (
	// Goto navigates to the menu named in ID.
	Goto Action = "goto"
	// Done finalizes the active menu's selection and walks back Value steps.
	Done Action = "done"
	// Back walks back Value steps without touching the selection.
	Back Action = "back"
	// Cancel discards the active menu's working data and walks back Value steps.
	Cancel Action = "cancel"
	// Page switches the active menu to the zero-based page in Value.
	Page Action = "page"
	// Check toggles the checkbox option named in Value on the menu in ID.
	Check Action = "check"
	// Radio selects the radio option named in Value on the menu in ID.
	Radio Action = "radio"
)

const (
	// Prefix marks callback data produced by this package.
	Prefix = "m"
	// MaxEncodedLen is Telegram's hard cap on callback data size.
	MaxEncodedLen = 64

	sep = "|"
	esc = '\\'
)

var (
	ErrPayloadTooLong = errors.New("payload: encoded form exceeds 64 bytes")
	ErrMalformed      = errors.New("payload: malformed callback data")
	ErrUnknownAction  = errors.New("payload: unknown action")
)

var knownActions = map[Action]bool{
	Goto: true, Done: true, Back: true, Cancel: true,
	Page: true, Check: true, Radio: true,
}

// Payload is one decoded button press.
type Payload struct {
	Action Action
	// ID is the target menu identifier. For done/back/cancel it is usually
	// empty (the walk ends wherever history leads) and names an explicit
	// jump target otherwise.
	ID string
	// Value carries the action argument: a step count for done/back/cancel,
	// a page number for page, an option key for check/radio.
	Value string
}

// NewGoto builds a navigation payload targeting menuID.
func NewGoto(menuID string) Payload { return Payload{Action: Goto, ID: menuID} }

// NewDone builds a finalize payload walking back steps entries.
func NewDone(steps int) Payload { return Payload{Action: Done, Value: strconv.Itoa(steps)} }

// NewBack builds a back payload walking back steps entries.
func NewBack(steps int) Payload { return Payload{Action: Back, Value: strconv.Itoa(steps)} }

// NewCancel builds a discard payload walking back steps entries.
func NewCancel(steps int) Payload { return Payload{Action: Cancel, Value: strconv.Itoa(steps)} }

// NewPage builds a pagination payload for the zero-based page on menuID.
func NewPage(menuID string, page int) Payload {
	return Payload{Action: Page, ID: menuID, Value: strconv.Itoa(page)}
}

// NewCheck builds a checkbox toggle payload for option on menuID.
func NewCheck(menuID, option string) Payload {
	return Payload{Action: Check, ID: menuID, Value: option}
}

// NewRadio builds a radio select payload for option on menuID.
func NewRadio(menuID, option string) Payload {
	return Payload{Action: Radio, ID: menuID, Value: option}
}

// Steps interprets Value as a history step count for done/back/cancel.
// Anything unparseable or below one collapses to a single step.
func (p Payload) Steps() int {
	n, err := strconv.Atoi(p.Value)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// PageNumber interprets Value as a zero-based page index. Unparseable or
// negative values collapse to page zero.
func (p Payload) PageNumber() int {
	n, err := strconv.Atoi(p.Value)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Encode renders the payload into its callback data string.
func (p Payload) Encode() (string, error) {
	if !knownActions[p.Action] {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, p.Action)
	}
	s := Prefix + sep + string(p.Action) + sep + escape(p.ID) + sep + escape(p.Value)
	if len(s) > MaxEncodedLen {
		return "", fmt.Errorf("%w: %d bytes", ErrPayloadTooLong, len(s))
	}
	return s, nil
}

// MustEncode is Encode for statically known payloads where an error would be
// a programming mistake.
func (p Payload) MustEncode() string {
	s, err := p.Encode()
	if err != nil {
		panic(err)
	}
	return s
}

// Decode parses callback data produced by Encode.
func Decode(data string) (Payload, error) {
	fields := split(data)
	if len(fields) != 4 || fields[0] != Prefix {
		return Payload{}, fmt.Errorf("%w: %q", ErrMalformed, data)
	}
	action := Action(fields[1])
	if !knownActions[action] {
		return Payload{}, fmt.Errorf("%w: %q", ErrUnknownAction, fields[1])
	}
	return Payload{Action: action, ID: fields[2], Value: fields[3]}, nil
}

// IsMenuCallback reports whether data carries this package's prefix, without
// fully parsing it.
func IsMenuCallback(data string) bool {
	return data == Prefix || strings.HasPrefix(data, Prefix+sep)
}

func escape(s string) string {
	if !strings.ContainsAny(s, `|\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '|' || s[i] == esc {
			b.WriteByte(esc)
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func split(s string) []string {
	var fields []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == esc && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		case s[i] == '|':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(s[i])
		}
	}
	fields = append(fields, cur.String())
	return fields
}
