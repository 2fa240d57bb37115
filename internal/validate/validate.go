// Package validate provides declarative bounds checks for every
// boundary input: envelopes, offer/answer payloads, data-channel
// frames, REST bodies, and query parameters. Every inbound payload
// must pass one of these checks before it is trusted.
package validate

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

var (
	roomCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{4,48}$`)
	roomIDPattern   = regexp.MustCompile(`^meet-[a-z0-9](?:[a-z0-9-]{10,62}[a-z0-9])$`)
)

// Error describes a single field that failed validation.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// RoomCode validates the offline-mode room code pattern from the
// envelope data model: ^[A-Za-z0-9_-]{4,48}$.
func RoomCode(code string) error {
	if !roomCodePattern.MatchString(code) {
		return &Error{Field: "roomCode", Reason: "must match ^[A-Za-z0-9_-]{4,48}$"}
	}
	return nil
}

// RoomID validates the rendezvous broker's public room identifier:
// ^meet-[a-z0-9](?:[a-z0-9-]{10,62}[a-z0-9])$.
func RoomID(id string) error {
	if !roomIDPattern.MatchString(id) {
		return &Error{Field: "roomId", Reason: "must match ^meet-[a-z0-9](?:[a-z0-9-]{10,62}[a-z0-9])$"}
	}
	return nil
}

// BoundedString validates that s is non-empty (unless allowEmpty) and
// has a rune length within [0, maxRunes].
func BoundedString(field, s string, maxRunes int, allowEmpty bool) error {
	if !allowEmpty && s == "" {
		return &Error{Field: field, Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(s) > maxRunes {
		return &Error{Field: field, Reason: fmt.Sprintf("must be at most %d characters", maxRunes)}
	}
	return nil
}

// BoundedSlice validates that a slice length is within [0, max].
func BoundedSlice(field string, length, max int) error {
	if length > max {
		return &Error{Field: field, Reason: fmt.Sprintf("must contain at most %d items", max)}
	}
	return nil
}

// BoundedInt validates that v is within [min, max] inclusive.
func BoundedInt(field string, v, min, max int) error {
	if v < min || v > max {
		return &Error{Field: field, Reason: fmt.Sprintf("must be between %d and %d", min, max)}
	}
	return nil
}

// OneOf validates that v is one of the allowed values.
func OneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return &Error{Field: field, Reason: fmt.Sprintf("must be one of %v", allowed)}
}
