package model

import (
	"errors"
	"regexp"
)

// PlaceholderToken is the literal marker in a template body replaced with the
// recipient's name at send time. Matching is case-insensitive.
const PlaceholderToken = "[name]"

var placeholderPattern = regexp.MustCompile(`(?i)\[name\]`)

// Personalize substitutes every occurrence of the placeholder token in the
// template with the recipient name.
func Personalize(template, name string) string {
	return placeholderPattern.ReplaceAllLiteralString(template, name)
}

// MessageSlot identifies one of the three independently persisted template
// bodies. Exactly one slot is active at a time.
type MessageSlot string

const (
	MessageSlot1 MessageSlot = "1"
	MessageSlot2 MessageSlot = "2"
	MessageSlot3 MessageSlot = "3"
)

var ErrInvalidMessageSlot = errors.New("invalid message slot")

func ParseMessageSlot(s string) (MessageSlot, error) {
	switch MessageSlot(s) {
	case MessageSlot1, MessageSlot2, MessageSlot3:
		return MessageSlot(s), nil
	}
	return "", ErrInvalidMessageSlot
}

// MessageSet holds the three persisted template bodies.
type MessageSet struct {
	Slot1 string `json:"message1"`
	Slot2 string `json:"message2"`
	Slot3 string `json:"message3"`
}

// Body returns the template body stored in the given slot.
func (m MessageSet) Body(slot MessageSlot) string {
	switch slot {
	case MessageSlot2:
		return m.Slot2
	case MessageSlot3:
		return m.Slot3
	default:
		return m.Slot1
	}
}
