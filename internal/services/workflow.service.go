package services

import (
	"context"
	"errors"

	"github.com/afshinator/BatchSMS/internal/appstate"
	"github.com/afshinator/BatchSMS/internal/ingest"
	"github.com/afshinator/BatchSMS/internal/model"
	"github.com/afshinator/BatchSMS/internal/prefs"
	"github.com/afshinator/BatchSMS/internal/selection"
	"github.com/afshinator/BatchSMS/internal/send"
	"github.com/afshinator/BatchSMS/pkg/logger"
)

var (
	ErrNoDocument      = errors.New("no contact document is loaded")
	ErrNoRecipients    = errors.New("no recipients have been finalized")
	ErrNoMessage       = errors.New("no message is selected")
	ErrHistoryDisabled = errors.New("run history is not configured")
)

// RunHistory reads persisted run reports. Optional: the terminal tool runs
// without one.
type RunHistory interface {
	Get(ctx context.Context, runID string) (*model.RunReport, error)
	List(ctx context.Context, f model.RunFilter) ([]*model.RunReport, int64, error)
}

// RowView is one contact row decorated with its selection state.
type RowView struct {
	Index         int             `json:"index"`
	FirstName     string          `json:"first_name"`
	MobilePhone   string          `json:"mobile_phone"`
	PriorityPhone string          `json:"priority_phone"`
	Selected      bool            `json:"selected"`
	PhoneChoice   model.PhoneType `json:"phone_choice"`
	Addressable   bool            `json:"addressable"`
}

// WorkflowService drives the whole batch flow: load a contact document, pick
// recipients, choose a message, then hand the finalized plan to the send
// supervisor.
type WorkflowService struct {
	state      *appstate.State
	session    *selection.Session
	prefs      *prefs.Service
	supervisor *send.Supervisor
	history    RunHistory
	csvOpts    ingest.Options
}

func NewWorkflowService(state *appstate.State, session *selection.Session, prefsSvc *prefs.Service, supervisor *send.Supervisor, history RunHistory, csvOpts ingest.Options) *WorkflowService {
	return &WorkflowService{
		state:      state,
		session:    session,
		prefs:      prefsSvc,
		supervisor: supervisor,
		history:    history,
		csvOpts:    csvOpts,
	}
}

// LoadDocument parses CSV text and makes it the current document. Any prior
// selection and finalized recipient list is discarded.
func (s *WorkflowService) LoadDocument(ctx context.Context, text, fileName string) (*ingest.Document, string, error) {
	doc, err := ingest.Parse(text, fileName, s.csvOpts)
	if err != nil {
		return nil, "", err
	}

	docID := s.state.SetDocument(doc)
	s.session.LoadDocument(docID, doc.Contacts(), s.prefs.PhoneTypePref(ctx))
	logger.Info("workflow: document loaded", "file", fileName, "rows", len(doc.Rows), "skipped", doc.SkippedRows, "doc_id", docID)
	return doc, docID, nil
}

// Rows returns the current document's contacts with selection state applied.
func (s *WorkflowService) Rows(ctx context.Context) ([]RowView, error) {
	doc, _ := s.state.Document()
	if doc == nil {
		return nil, ErrNoDocument
	}

	contacts := doc.Contacts()
	selected := make(map[int]bool, len(contacts))
	for _, i := range s.session.Selected() {
		selected[i] = true
	}

	views := make([]RowView, len(contacts))
	for i, c := range contacts {
		views[i] = RowView{
			Index:         i,
			FirstName:     c.FirstName,
			MobilePhone:   c.MobilePhone,
			PriorityPhone: c.PriorityPhone,
			Selected:      selected[i],
			PhoneChoice:   s.session.Choice(i),
			Addressable:   c.Addressable(),
		}
	}
	return views, nil
}

func (s *WorkflowService) SelectAll() error { return s.session.SelectAll() }

func (s *WorkflowService) SelectNone() error { return s.session.SelectNone() }

func (s *WorkflowService) ToggleRow(i int) error { return s.session.ToggleRow(i) }

func (s *WorkflowService) TogglePhoneChoice(i int) error {
	return s.session.TogglePhoneChoice(i)
}

// FinalizeSelection freezes the current selection into the recipient list the
// next run will use.
func (s *WorkflowService) FinalizeSelection(ctx context.Context) ([]model.Recipient, error) {
	recipients, err := s.session.Finalize()
	if err != nil {
		return nil, err
	}
	s.state.SetRecipients(recipients)
	logger.Info("workflow: selection finalized", "recipients", len(recipients))
	return recipients, nil
}

// ResetSelection reopens the selection for editing and drops the finalized
// recipient list.
func (s *WorkflowService) ResetSelection() error {
	if err := s.session.Reset(); err != nil {
		return err
	}
	s.state.SetRecipients(nil)
	return nil
}

func (s *WorkflowService) PhonePref(ctx context.Context) model.PhoneType {
	return s.prefs.PhoneTypePref(ctx)
}

// SetPhonePref stores the preferred phone type and applies it to the current
// app state. Rows with an explicit per-row choice keep it.
func (s *WorkflowService) SetPhonePref(ctx context.Context, t model.PhoneType) error {
	if err := s.prefs.SetPhoneTypePref(ctx, t); err != nil {
		return err
	}
	s.state.SetPhonePref(t)
	return nil
}

func (s *WorkflowService) Messages(ctx context.Context) model.MessageSet {
	return s.prefs.Messages(ctx)
}

func (s *WorkflowService) SaveMessages(ctx context.Context, m model.MessageSet) error {
	return s.prefs.SaveMessages(ctx, m)
}

func (s *WorkflowService) SelectedSlot(ctx context.Context) model.MessageSlot {
	return s.prefs.SelectedSlot(ctx)
}

// SelectSlot makes a saved message the active template for the next run.
func (s *WorkflowService) SelectSlot(ctx context.Context, slot model.MessageSlot) error {
	if err := s.prefs.SetSelectedSlot(ctx, slot); err != nil {
		return err
	}
	s.state.SetMessage(s.prefs.ActiveMessage(ctx))
	return nil
}

// StartRun begins sending to the finalized recipients with the active
// message. The template is personalized per recipient by the supervisor.
func (s *WorkflowService) StartRun(ctx context.Context) (send.Snapshot, error) {
	recipients := s.state.Recipients()
	if len(recipients) == 0 {
		return send.Snapshot{}, ErrNoRecipients
	}

	template := s.state.Message()
	if template == "" {
		template = s.prefs.ActiveMessage(ctx)
		s.state.SetMessage(template)
	}
	if template == "" {
		return send.Snapshot{}, ErrNoMessage
	}

	return s.supervisor.Start(ctx, recipients, template)
}

func (s *WorkflowService) CancelRun() error {
	return s.supervisor.Cancel()
}

func (s *WorkflowService) ResetRun() error {
	return s.supervisor.Reset()
}

func (s *WorkflowService) RunStatus() send.Snapshot {
	return s.supervisor.Snapshot()
}

func (s *WorkflowService) RunDetail(ctx context.Context, runID string) (*model.RunReport, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.Get(ctx, runID)
}

func (s *WorkflowService) RunHistory(ctx context.Context, f model.RunFilter) ([]*model.RunReport, int64, error) {
	if s.history == nil {
		return nil, 0, ErrHistoryDisabled
	}
	return s.history.List(ctx, f)
}
