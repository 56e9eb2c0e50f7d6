// Package appstate is the hand-off point between the ingest, selection and
// send stages. It is an explicitly owned container injected into whoever
// needs it; there is no ambient global.
package appstate

import (
	"sync"

	"github.com/afshinator/BatchSMS/internal/ingest"
	"github.com/afshinator/BatchSMS/internal/model"
	"github.com/google/uuid"
)

// State holds the cross-stage shared values: the picked document and its
// parsed contents, the finalized recipients, the chosen message, and the
// phone-type default in effect. All reads return snapshots.
type State struct {
	mu sync.RWMutex

	doc        *ingest.Document
	docID      string
	recipients []model.Recipient
	message    string
	phonePref  model.PhoneType
}

func New() *State {
	return &State{phonePref: model.PhoneTypeMobile}
}

// SetDocument replaces the active document wholesale and assigns it a fresh
// identity. Finalized recipients are discarded: any selection derived from
// the previous document is stale by definition.
func (s *State) SetDocument(doc *ingest.Document) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.docID = uuid.NewString()
	s.recipients = nil
	return s.docID
}

// Document returns the active document and its identity. The document is
// immutable once parsed, so handing out the pointer is safe.
func (s *State) Document() (*ingest.Document, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc, s.docID
}

// SetRecipients stores a finalized recipient list. The list is overwritten
// wholesale, never merged.
func (s *State) SetRecipients(recipients []model.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if recipients == nil {
		s.recipients = nil
		return
	}
	s.recipients = make([]model.Recipient, len(recipients))
	copy(s.recipients, recipients)
}

// Recipients returns a copy of the finalized recipient list.
func (s *State) Recipients() []model.Recipient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.recipients == nil {
		return nil
	}
	out := make([]model.Recipient, len(s.recipients))
	copy(out, s.recipients)
	return out
}

func (s *State) SetMessage(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = text
}

func (s *State) Message() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.message
}

func (s *State) SetPhonePref(t model.PhoneType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phonePref = t
}

func (s *State) PhonePref() model.PhoneType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phonePref
}

// Ready reports whether everything a run needs is staged: a document,
// finalized recipients, and a chosen message.
func (s *State) Ready() (doc, recipients, message bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc != nil, len(s.recipients) > 0, s.message != ""
}
