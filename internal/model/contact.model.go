package model

import (
	"errors"
	"strings"
)

// PhoneType selects which phone column of a contact row is used for sending.
type PhoneType string

const (
	PhoneTypeMobile   PhoneType = "mobile"
	PhoneTypePriority PhoneType = "priority"
)

var ErrInvalidPhoneType = errors.New("invalid phone type")

func ParsePhoneType(s string) (PhoneType, error) {
	switch PhoneType(strings.ToLower(strings.TrimSpace(s))) {
	case PhoneTypeMobile:
		return PhoneTypeMobile, nil
	case PhoneTypePriority:
		return PhoneTypePriority, nil
	}
	return "", ErrInvalidPhoneType
}

// Toggle returns the other phone type.
func (p PhoneType) Toggle() PhoneType {
	if p == PhoneTypeMobile {
		return PhoneTypePriority
	}
	return PhoneTypeMobile
}

// ContactRow is one parsed CSV record. Immutable once parsed; a freshly
// loaded document replaces all rows wholesale.
type ContactRow struct {
	FirstName     string `json:"first_name"`
	MobilePhone   string `json:"mobile_phone"`
	PriorityPhone string `json:"priority_phone"`
	FileName      string `json:"file_name"`
}

func (r ContactRow) HasMobile() bool {
	return strings.TrimSpace(r.MobilePhone) != ""
}

func (r ContactRow) HasPriority() bool {
	return strings.TrimSpace(r.PriorityPhone) != ""
}

// Addressable reports whether at least one phone column is populated. Rows
// without a deliverable address can be listed but never finalized.
func (r ContactRow) Addressable() bool {
	return r.HasMobile() || r.HasPriority()
}

// Phone returns the column value for the given phone type, trimmed.
func (r ContactRow) Phone(t PhoneType) string {
	if t == PhoneTypePriority {
		return strings.TrimSpace(r.PriorityPhone)
	}
	return strings.TrimSpace(r.MobilePhone)
}

// Recipient is a finalized, addressable contact. Produced only from selected
// rows whose chosen phone column is non-empty.
type Recipient struct {
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	PhoneType PhoneType `json:"phone_type"`
}
