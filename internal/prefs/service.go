package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/afshinator/BatchSMS/internal/model"
	"github.com/afshinator/BatchSMS/pkg/logger"
)

// Persisted preference keys.
const (
	KeyPhoneTypePref   = "phoneTypePref"
	KeyMessage1        = "message1"
	KeyMessage2        = "message2"
	KeyMessage3        = "message3"
	KeySelectedMessage = "selectedMessage"
)

// Service exposes typed accessors over the raw store. Reads fall back to
// in-memory defaults when the store misbehaves; writes are awaited and their
// failure is reported to the caller.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// PhoneTypePref returns the process-wide phone-type default, mobile when
// unset or unreadable.
func (s *Service) PhoneTypePref(ctx context.Context) model.PhoneType {
	v, err := s.store.Get(ctx, KeyPhoneTypePref)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("prefs: read failed, using default", "key", KeyPhoneTypePref, "error", err)
		}
		return model.PhoneTypeMobile
	}
	pt, err := model.ParsePhoneType(v)
	if err != nil {
		logger.Warn("prefs: stored value invalid, using default", "key", KeyPhoneTypePref, "value", v)
		return model.PhoneTypeMobile
	}
	return pt
}

func (s *Service) SetPhoneTypePref(ctx context.Context, t model.PhoneType) error {
	if _, err := model.ParsePhoneType(string(t)); err != nil {
		return err
	}
	if err := s.store.Set(ctx, KeyPhoneTypePref, string(t)); err != nil {
		return fmt.Errorf("save phone type preference: %w", err)
	}
	return nil
}

// Messages returns all three template bodies. Unset slots come back empty.
func (s *Service) Messages(ctx context.Context) model.MessageSet {
	return model.MessageSet{
		Slot1: s.readOrEmpty(ctx, KeyMessage1),
		Slot2: s.readOrEmpty(ctx, KeyMessage2),
		Slot3: s.readOrEmpty(ctx, KeyMessage3),
	}
}

// SaveMessages persists all three bodies. Every write is awaited; the first
// failure aborts and is returned so the caller can surface it.
func (s *Service) SaveMessages(ctx context.Context, m model.MessageSet) error {
	writes := []struct {
		key   string
		value string
	}{
		{KeyMessage1, m.Slot1},
		{KeyMessage2, m.Slot2},
		{KeyMessage3, m.Slot3},
	}
	for _, w := range writes {
		if err := s.store.Set(ctx, w.key, w.value); err != nil {
			return fmt.Errorf("save %s: %w", w.key, err)
		}
	}
	return nil
}

// SelectedSlot returns the active template slot, slot 1 when unset.
func (s *Service) SelectedSlot(ctx context.Context) model.MessageSlot {
	v, err := s.store.Get(ctx, KeySelectedMessage)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("prefs: read failed, using default", "key", KeySelectedMessage, "error", err)
		}
		return model.MessageSlot1
	}
	slot, err := model.ParseMessageSlot(v)
	if err != nil {
		return model.MessageSlot1
	}
	return slot
}

func (s *Service) SetSelectedSlot(ctx context.Context, slot model.MessageSlot) error {
	if _, err := model.ParseMessageSlot(string(slot)); err != nil {
		return err
	}
	if err := s.store.Set(ctx, KeySelectedMessage, string(slot)); err != nil {
		return fmt.Errorf("save selected message: %w", err)
	}
	return nil
}

// ActiveMessage resolves the currently selected template body.
func (s *Service) ActiveMessage(ctx context.Context) string {
	return s.Messages(ctx).Body(s.SelectedSlot(ctx))
}

func (s *Service) readOrEmpty(ctx context.Context, key string) string {
	v, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("prefs: read failed, using empty value", "key", key, "error", err)
		}
		return ""
	}
	return v
}
