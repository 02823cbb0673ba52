package menu

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidInput marks a reply rejected by a text menu parser. The menu
// stays active and the user is asked again.
var ErrInvalidInput = errors.New("menu: invalid input")

// ParseString accepts any non-empty reply.
func ParseString(raw string) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrInvalidInput)
	}
	return s, nil
}

// ParseInt accepts a base-10 integer.
func ParseInt(raw string) (any, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: not a whole number", ErrInvalidInput)
	}
	return n, nil
}

// ParseFloat accepts a decimal number.
func ParseFloat(raw string) (any, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: not a number", ErrInvalidInput)
	}
	return f, nil
}

// ParseEmail accepts a single RFC 5322 address and stores its bare form.
func ParseEmail(raw string) (any, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: not an email address", ErrInvalidInput)
	}
	return addr.Address, nil
}

// ParseURL accepts an absolute http or https URL.
func ParseURL(raw string) (any, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: not an http(s) link", ErrInvalidInput)
	}
	return u.String(), nil
}
