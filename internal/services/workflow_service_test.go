package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/afshinator/BatchSMS/internal/appstate"
	"github.com/afshinator/BatchSMS/internal/ingest"
	"github.com/afshinator/BatchSMS/internal/model"
	"github.com/afshinator/BatchSMS/internal/prefs"
	"github.com/afshinator/BatchSMS/internal/selection"
	"github.com/afshinator/BatchSMS/internal/send"
)

const contactsCSV = "First Name,Mobile Phone,Priority Phone\n" +
	"Ann,555-0001,\n" +
	"Bo,,555-0002\n" +
	"Cy,555-0003,555-0004\n" +
	"Dee,,\n"

// autoComposer confirms every send without blocking.
type autoComposer struct {
	texts []string
}

func (c *autoComposer) Compose(ctx context.Context, phone, text string) (model.ComposerOutcome, error) {
	c.texts = append(c.texts, text)
	return model.OutcomeSent, nil
}

type MockRunHistory struct {
	mock.Mock
}

func (m *MockRunHistory) Get(ctx context.Context, runID string) (*model.RunReport, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RunReport), args.Error(1)
}

func (m *MockRunHistory) List(ctx context.Context, f model.RunFilter) ([]*model.RunReport, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.RunReport), args.Get(1).(int64), args.Error(2)
}

func newTestService(t *testing.T, composer send.Composer) *WorkflowService {
	t.Helper()
	supervisor := send.NewSupervisor(composer, send.WithDelay(time.Millisecond))
	return NewWorkflowService(
		appstate.New(),
		selection.NewSession(),
		prefs.NewService(prefs.NewMemoryStore()),
		supervisor,
		nil,
		ingest.DefaultOptions(),
	)
}

func TestWorkflowService_LoadDocument(t *testing.T) {
	svc := newTestService(t, &autoComposer{})
	ctx := context.Background()

	doc, docID, err := svc.LoadDocument(ctx, contactsCSV, "contacts.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, docID)
	assert.Len(t, doc.Rows, 4)

	rows, err := svc.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Ann", rows[0].FirstName)
	assert.False(t, rows[0].Selected)
	assert.True(t, rows[0].Addressable)
	assert.False(t, rows[3].Addressable)

	t.Run("reload discards selection", func(t *testing.T) {
		require.NoError(t, svc.SelectAll())
		_, nextID, err := svc.LoadDocument(ctx, contactsCSV, "contacts.csv")
		require.NoError(t, err)
		assert.NotEqual(t, docID, nextID)

		rows, err := svc.Rows(ctx)
		require.NoError(t, err)
		for _, r := range rows {
			assert.False(t, r.Selected)
		}
	})

	t.Run("malformed input", func(t *testing.T) {
		_, _, err := svc.LoadDocument(ctx, "", "empty.csv")
		assert.ErrorIs(t, err, ingest.ErrMalformedInput)
	})
}

func TestWorkflowService_RowsWithoutDocument(t *testing.T) {
	svc := newTestService(t, &autoComposer{})
	_, err := svc.Rows(context.Background())
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestWorkflowService_FinalizeSelection(t *testing.T) {
	svc := newTestService(t, &autoComposer{})
	ctx := context.Background()

	_, _, err := svc.LoadDocument(ctx, contactsCSV, "contacts.csv")
	require.NoError(t, err)
	require.NoError(t, svc.SelectAll())

	recipients, err := svc.FinalizeSelection(ctx)
	require.NoError(t, err)

	// Dee has no phone at all and is dropped silently.
	require.Len(t, recipients, 3)
	assert.Equal(t, "555-0001", recipients[0].Phone)
	assert.Equal(t, model.PhoneTypeMobile, recipients[0].PhoneType)
	assert.Equal(t, "555-0002", recipients[1].Phone)
	assert.Equal(t, model.PhoneTypePriority, recipients[1].PhoneType)
	assert.Equal(t, "555-0003", recipients[2].Phone)

	t.Run("reset reopens editing and clears recipients", func(t *testing.T) {
		require.NoError(t, svc.ResetSelection())
		_, err := svc.StartRun(ctx)
		assert.ErrorIs(t, err, ErrNoRecipients)
	})
}

func TestWorkflowService_PhoneChoiceFollowsPref(t *testing.T) {
	svc := newTestService(t, &autoComposer{})
	ctx := context.Background()

	require.NoError(t, svc.SetPhonePref(ctx, model.PhoneTypePriority))
	_, _, err := svc.LoadDocument(ctx, contactsCSV, "contacts.csv")
	require.NoError(t, err)

	rows, err := svc.Rows(ctx)
	require.NoError(t, err)
	// Cy has both phones, so the stored preference decides.
	assert.Equal(t, model.PhoneTypePriority, rows[2].PhoneChoice)
	// Ann only has a mobile number.
	assert.Equal(t, model.PhoneTypeMobile, rows[0].PhoneChoice)
}

func TestWorkflowService_MessageSlots(t *testing.T) {
	svc := newTestService(t, &autoComposer{})
	ctx := context.Background()

	set := model.MessageSet{
		Slot1: "Hi [name], reminder one.",
		Slot2: "Hi [name], reminder two.",
	}
	require.NoError(t, svc.SaveMessages(ctx, set))
	assert.Equal(t, set, svc.Messages(ctx))

	require.NoError(t, svc.SelectSlot(ctx, model.MessageSlot2))
	assert.Equal(t, model.MessageSlot2, svc.SelectedSlot(ctx))
}

func TestWorkflowService_StartRun(t *testing.T) {
	composer := &autoComposer{}
	svc := newTestService(t, composer)
	ctx := context.Background()

	_, _, err := svc.LoadDocument(ctx, contactsCSV, "contacts.csv")
	require.NoError(t, err)
	require.NoError(t, svc.SelectAll())
	_, err = svc.FinalizeSelection(ctx)
	require.NoError(t, err)

	t.Run("missing message", func(t *testing.T) {
		_, err := svc.StartRun(ctx)
		assert.ErrorIs(t, err, ErrNoMessage)
	})

	require.NoError(t, svc.SaveMessages(ctx, model.MessageSet{Slot1: "Hi [name], hello."}))
	require.NoError(t, svc.SelectSlot(ctx, model.MessageSlot1))

	snap, err := svc.StartRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RunStateRunning, snap.State)
	assert.Equal(t, 3, snap.Total)

	require.Eventually(t, func() bool {
		return svc.RunStatus().State == model.RunStateCompleted
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{
		"Hi Ann, hello.",
		"Hi Bo, hello.",
		"Hi Cy, hello.",
	}, composer.texts)

	t.Run("reset returns to idle", func(t *testing.T) {
		require.NoError(t, svc.ResetRun())
		assert.Equal(t, model.RunStateIdle, svc.RunStatus().State)
	})
}

func TestWorkflowService_RunHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled without a backing store", func(t *testing.T) {
		svc := newTestService(t, &autoComposer{})
		_, err := svc.RunDetail(ctx, "some-run")
		assert.ErrorIs(t, err, ErrHistoryDisabled)
		_, _, err = svc.RunHistory(ctx, model.RunFilter{})
		assert.ErrorIs(t, err, ErrHistoryDisabled)
	})

	t.Run("delegates to the store", func(t *testing.T) {
		history := new(MockRunHistory)
		svc := NewWorkflowService(
			appstate.New(),
			selection.NewSession(),
			prefs.NewService(prefs.NewMemoryStore()),
			send.NewSupervisor(&autoComposer{}),
			history,
			ingest.DefaultOptions(),
		)

		report := &model.RunReport{RunID: "r-1"}
		history.On("Get", mock.Anything, "r-1").Return(report, nil)
		history.On("List", mock.Anything, mock.Anything).Return([]*model.RunReport{report}, int64(1), nil)

		got, err := svc.RunDetail(ctx, "r-1")
		require.NoError(t, err)
		assert.Equal(t, report, got)

		runs, total, err := svc.RunHistory(ctx, model.RunFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Len(t, runs, 1)
		history.AssertExpectations(t)
	})
}
