// Package selection tracks which contact rows are included in a send and
// which phone column each one uses, over the lifetime of one loaded document.
package selection

import (
	"errors"
	"sync"

	"github.com/afshinator/BatchSMS/internal/model"
)

// Phase is the session lifecycle state.
type Phase string

const (
	// PhaseEmpty means no document is loaded.
	PhaseEmpty Phase = "empty"
	// PhaseEditing means rows are loaded and the selection is mutable.
	PhaseEditing Phase = "editing"
	// PhaseFinalized means a recipient list has been produced; the
	// selection is read-only until Reset.
	PhaseFinalized Phase = "finalized"
)

var (
	ErrNoDocument    = errors.New("no document loaded")
	ErrNotEditing    = errors.New("selection is not editable")
	ErrFinalized     = errors.New("selection already finalized")
	ErrNoRecipients  = errors.New("no addressable recipients selected")
	ErrRowOutOfRange = errors.New("row index out of range")
)

// Session is the per-document selection state machine. It is scoped to one
// document identity; loading a different document resets everything.
type Session struct {
	mu sync.Mutex

	docID       string
	rows        []model.ContactRow
	defaultPref model.PhoneType

	phase       Phase
	selected    map[int]struct{}
	phoneChoice map[int]model.PhoneType
}

func NewSession() *Session {
	return &Session{phase: PhaseEmpty}
}

// LoadDocument replaces the session's document and moves to Editing with an
// empty selection. Any previously finalized state is discarded.
func (s *Session) LoadDocument(docID string, rows []model.ContactRow, defaultPref model.PhoneType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docID = docID
	s.rows = make([]model.ContactRow, len(rows))
	copy(s.rows, rows)
	s.defaultPref = defaultPref
	s.phase = PhaseEditing
	s.selected = make(map[int]struct{})
	s.phoneChoice = make(map[int]model.PhoneType)
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) DocumentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docID
}

// SelectAll replaces the selection with every row index.
func (s *Session) SelectAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	s.selected = make(map[int]struct{}, len(s.rows))
	for i := range s.rows {
		s.selected[i] = struct{}{}
	}
	return nil
}

// SelectNone replaces the selection with the empty set.
func (s *Session) SelectNone() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	s.selected = make(map[int]struct{})
	return nil
}

// ToggleRow flips membership of one row index.
func (s *Session) ToggleRow(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	if index < 0 || index >= len(s.rows) {
		return ErrRowOutOfRange
	}
	if _, ok := s.selected[index]; ok {
		delete(s.selected, index)
	} else {
		s.selected[index] = struct{}{}
	}
	return nil
}

// TogglePhoneChoice flips a row between mobile and priority. Rows with only
// one populated phone column are left alone: an empty column must never
// become the chosen one.
func (s *Session) TogglePhoneChoice(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	if index < 0 || index >= len(s.rows) {
		return ErrRowOutOfRange
	}
	row := s.rows[index]
	if !row.HasMobile() || !row.HasPriority() {
		return nil
	}
	s.phoneChoice[index] = s.choiceLocked(index).Toggle()
	return nil
}

// Selected returns the selected row indices in document order.
func (s *Session) Selected() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.selected))
	for i := range s.rows {
		if _, ok := s.selected[i]; ok {
			out = append(out, i)
		}
	}
	return out
}

// Choice resolves the effective phone choice for one row: the explicit
// per-row override, else the global default, else whichever single column is
// populated.
func (s *Session) Choice(index int) model.PhoneType {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.rows) {
		return s.defaultPref
	}
	return s.choiceLocked(index)
}

// Finalize produces the immutable recipient list and moves to Finalized.
// Selected rows whose chosen phone column is empty are silently excluded, so
// the finalized count may be less than the selected count. An empty result
// is rejected and the session stays editable.
func (s *Session) Finalize() ([]model.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseEmpty:
		return nil, ErrNoDocument
	case PhaseFinalized:
		return nil, ErrFinalized
	}

	recipients := make([]model.Recipient, 0, len(s.selected))
	for i := range s.rows {
		if _, ok := s.selected[i]; !ok {
			continue
		}
		choice := s.choiceLocked(i)
		phone := s.rows[i].Phone(choice)
		if phone == "" {
			continue
		}
		recipients = append(recipients, model.Recipient{
			Name:      s.rows[i].FirstName,
			Phone:     phone,
			PhoneType: choice,
		})
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	s.phase = PhaseFinalized
	return recipients, nil
}

// Reset returns a finalized session to Editing with an empty selection. The
// owner is expected to discard the previously finalized list.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseEmpty {
		return ErrNoDocument
	}
	s.phase = PhaseEditing
	s.selected = make(map[int]struct{})
	s.phoneChoice = make(map[int]model.PhoneType)
	return nil
}

func (s *Session) editableLocked() error {
	switch s.phase {
	case PhaseEmpty:
		return ErrNoDocument
	case PhaseFinalized:
		return ErrNotEditing
	}
	return nil
}

func (s *Session) choiceLocked(index int) model.PhoneType {
	if c, ok := s.phoneChoice[index]; ok {
		return c
	}
	row := s.rows[index]
	switch {
	case row.HasMobile() && row.HasPriority():
		return s.defaultPref
	case row.HasMobile():
		return model.PhoneTypeMobile
	case row.HasPriority():
		return model.PhoneTypePriority
	default:
		return s.defaultPref
	}
}
