package send

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afshinator/BatchSMS/internal/model"
)

type composeCall struct {
	phone string
	text  string
	reply chan composeReply
}

type composeReply struct {
	outcome model.ComposerOutcome
	err     error
}

// scriptedComposer hands each invocation to the test over a channel and
// blocks until the test answers, the way a real composer blocks on the user.
type scriptedComposer struct {
	calls chan composeCall
}

func newScriptedComposer() *scriptedComposer {
	return &scriptedComposer{calls: make(chan composeCall)}
}

func (c *scriptedComposer) Compose(ctx context.Context, phone, text string) (model.ComposerOutcome, error) {
	call := composeCall{phone: phone, text: text, reply: make(chan composeReply)}
	select {
	case c.calls <- call:
	case <-ctx.Done():
		return model.OutcomeDismissed, ctx.Err()
	}
	select {
	case r := <-call.reply:
		return r.outcome, r.err
	case <-ctx.Done():
		return model.OutcomeDismissed, ctx.Err()
	}
}

func (c *scriptedComposer) next(t *testing.T) composeCall {
	t.Helper()
	select {
	case call := <-c.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a composer invocation")
		return composeCall{}
	}
}

type capturingRecorder struct {
	reports chan model.RunReport
}

func newCapturingRecorder() *capturingRecorder {
	return &capturingRecorder{reports: make(chan model.RunReport, 1)}
}

func (r *capturingRecorder) Record(ctx context.Context, report model.RunReport) error {
	r.reports <- report
	return nil
}

func testRecipients() []model.Recipient {
	return []model.Recipient{
		{Name: "Ann", Phone: "111-0001", PhoneType: model.PhoneTypeMobile},
		{Name: "Bo", Phone: "111-0002", PhoneType: model.PhoneTypePriority},
		{Name: "Cy", Phone: "111-0003", PhoneType: model.PhoneTypeMobile},
	}
}

func waitDone(t *testing.T, s *Supervisor) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run did not settle in time")
	}
}

func statusList(snap Snapshot) []model.RecipientStatus {
	out := make([]model.RecipientStatus, len(snap.Statuses))
	for i, st := range snap.Statuses {
		out[i] = st.Status
	}
	return out
}

func TestSupervisorRunCompletes(t *testing.T) {
	composer := newScriptedComposer()
	s := NewSupervisor(composer, WithDelay(time.Millisecond))

	snap, err := s.Start(context.Background(), testRecipients(), "Hi [name], your order shipped.")
	require.NoError(t, err)
	assert.Equal(t, model.RunStateRunning, snap.State)
	assert.Equal(t, 3, snap.Total)
	assert.NotEmpty(t, snap.RunID)

	for _, want := range []struct{ phone, text string }{
		{"111-0001", "Hi Ann, your order shipped."},
		{"111-0002", "Hi Bo, your order shipped."},
		{"111-0003", "Hi Cy, your order shipped."},
	} {
		call := composer.next(t)
		assert.Equal(t, want.phone, call.phone)
		assert.Equal(t, want.text, call.text)
		call.reply <- composeReply{outcome: model.OutcomeSent}
	}

	waitDone(t, s)
	final := s.Snapshot()
	assert.Equal(t, model.RunStateCompleted, final.State)
	assert.Equal(t, 3, final.Cursor)
	assert.False(t, final.WasCancelled)
	assert.Equal(t, []model.RecipientStatus{
		model.RecipientStatusSent,
		model.RecipientStatusSent,
		model.RecipientStatusSent,
	}, statusList(final))
}

func TestSupervisorFirstItemSettlesBeforePause(t *testing.T) {
	composer := newScriptedComposer()
	// Long pause so the run sits between items while we look at it.
	s := NewSupervisor(composer, WithDelay(time.Minute))

	_, err := s.Start(context.Background(), testRecipients(), "Hi [name]")
	require.NoError(t, err)

	call := composer.next(t)
	call.reply <- composeReply{outcome: model.OutcomeSent}

	require.Eventually(t, func() bool {
		return s.Snapshot().Cursor == 1
	}, time.Second, 5*time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, model.RunStateRunning, snap.State)
	assert.Equal(t, []model.RecipientStatus{
		model.RecipientStatusSent,
		model.RecipientStatusPending,
		model.RecipientStatusPending,
	}, statusList(snap))

	// Cancel during the pause settles without another composer invocation.
	require.NoError(t, s.Cancel())
	waitDone(t, s)
	final := s.Snapshot()
	assert.Equal(t, model.RunStateCancelled, final.State)
	assert.True(t, final.WasCancelled)
	assert.Equal(t, []model.RecipientStatus{
		model.RecipientStatusSent,
		model.RecipientStatusCancelled,
		model.RecipientStatusCancelled,
	}, statusList(final))
}

func TestSupervisorCancelWithComposerInFlight(t *testing.T) {
	composer := newScriptedComposer()
	s := NewSupervisor(composer, WithDelay(time.Millisecond))

	_, err := s.Start(context.Background(), testRecipients(), "Hi [name]")
	require.NoError(t, err)

	call := composer.next(t)
	require.NoError(t, s.Cancel())

	// Queued items flip immediately; the in-flight one is still up.
	snap := s.Snapshot()
	assert.Equal(t, model.RunStateRunning, snap.State)
	assert.Equal(t, []model.RecipientStatus{
		model.RecipientStatusSending,
		model.RecipientStatusCancelled,
		model.RecipientStatusCancelled,
	}, statusList(snap))

	// The user finished the open composer anyway: true outcome is kept.
	call.reply <- composeReply{outcome: model.OutcomeSent}
	waitDone(t, s)

	final := s.Snapshot()
	assert.Equal(t, model.RunStateCancelled, final.State)
	assert.Equal(t, []model.RecipientStatus{
		model.RecipientStatusSent,
		model.RecipientStatusCancelled,
		model.RecipientStatusCancelled,
	}, statusList(final))
}

func TestSupervisorDismissedComposerContinuesRun(t *testing.T) {
	composer := newScriptedComposer()
	s := NewSupervisor(composer, WithDelay(time.Millisecond))

	recipients := testRecipients()[:2]
	_, err := s.Start(context.Background(), recipients, "Hi [name]")
	require.NoError(t, err)

	first := composer.next(t)
	first.reply <- composeReply{outcome: model.OutcomeDismissed}

	second := composer.next(t)
	second.reply <- composeReply{outcome: model.OutcomeSent}

	waitDone(t, s)
	final := s.Snapshot()
	assert.Equal(t, model.RunStateCompleted, final.State)
	assert.False(t, final.WasCancelled)
	assert.Equal(t, []model.RecipientStatus{
		model.RecipientStatusCancelled,
		model.RecipientStatusSent,
	}, statusList(final))
}

func TestSupervisorComposerErrorMarksItemAndContinues(t *testing.T) {
	composer := newScriptedComposer()
	s := NewSupervisor(composer, WithDelay(time.Millisecond))

	recipients := testRecipients()[:2]
	_, err := s.Start(context.Background(), recipients, "Hi [name]")
	require.NoError(t, err)

	first := composer.next(t)
	first.reply <- composeReply{err: errors.New("composer unavailable")}

	second := composer.next(t)
	second.reply <- composeReply{outcome: model.OutcomeSent}

	waitDone(t, s)
	final := s.Snapshot()
	assert.Equal(t, model.RunStateCompleted, final.State)
	assert.Equal(t, []model.RecipientStatus{
		model.RecipientStatusError,
		model.RecipientStatusSent,
	}, statusList(final))
}

func TestSupervisorStartGuards(t *testing.T) {
	composer := newScriptedComposer()
	s := NewSupervisor(composer, WithDelay(time.Millisecond))

	_, err := s.Start(context.Background(), nil, "Hi [name]")
	assert.ErrorIs(t, err, ErrNoRecipients)

	_, err = s.Start(context.Background(), testRecipients(), "")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = s.Start(context.Background(), testRecipients(), "Hi [name]")
	require.NoError(t, err)
	_, err = s.Start(context.Background(), testRecipients(), "Hi [name]")
	assert.ErrorIs(t, err, ErrRunActive)

	call := composer.next(t)
	require.NoError(t, s.Cancel())
	call.reply <- composeReply{outcome: model.OutcomeDismissed}
	waitDone(t, s)
}

func TestSupervisorCancelRequiresActiveRun(t *testing.T) {
	s := NewSupervisor(newScriptedComposer())
	assert.ErrorIs(t, s.Cancel(), ErrNotRunning)
}

func TestSupervisorResetRestoresDefaults(t *testing.T) {
	composer := newScriptedComposer()
	s := NewSupervisor(composer, WithDelay(time.Millisecond))

	_, err := s.Start(context.Background(), testRecipients()[:1], "Hi [name]")
	require.NoError(t, err)

	assert.ErrorIs(t, s.Reset(), ErrRunActive)

	call := composer.next(t)
	call.reply <- composeReply{outcome: model.OutcomeSent}
	waitDone(t, s)

	require.NoError(t, s.Reset())
	snap := s.Snapshot()
	assert.Equal(t, model.RunStateIdle, snap.State)
	assert.Equal(t, 0, snap.Cursor)
	assert.False(t, snap.WasCancelled)
	assert.Equal(t, []model.RecipientStatus{model.RecipientStatusPending}, statusList(snap))
}

func TestSupervisorRecordsSettledRun(t *testing.T) {
	composer := newScriptedComposer()
	recorder := newCapturingRecorder()
	s := NewSupervisor(composer, WithDelay(time.Millisecond), WithRecorder(recorder))

	snap, err := s.Start(context.Background(), testRecipients()[:2], "Hi [name]")
	require.NoError(t, err)

	first := composer.next(t)
	first.reply <- composeReply{outcome: model.OutcomeSent}
	second := composer.next(t)
	second.reply <- composeReply{outcome: model.OutcomeDismissed}
	waitDone(t, s)

	select {
	case report := <-recorder.reports:
		assert.Equal(t, snap.RunID, report.RunID)
		assert.False(t, report.WasCancelled)
		require.Len(t, report.Items, 2)
		assert.Equal(t, model.RecipientStatusSent, report.Items[0].Status)
		assert.Equal(t, model.RecipientStatusCancelled, report.Items[1].Status)
		sent, cancelled, failed := report.Counts()
		assert.Equal(t, 1, sent)
		assert.Equal(t, 1, cancelled)
		assert.Equal(t, 0, failed)
	case <-time.After(2 * time.Second):
		t.Fatal("run report was never recorded")
	}
}

func TestSupervisorMetrics(t *testing.T) {
	composer := newScriptedComposer()
	s := NewSupervisor(composer, WithDelay(time.Millisecond))

	_, err := s.Start(context.Background(), testRecipients()[:1], "Hi [name]")
	require.NoError(t, err)
	call := composer.next(t)
	call.reply <- composeReply{outcome: model.OutcomeSent}
	waitDone(t, s)

	stats := s.Metrics().GetStats()
	assert.Equal(t, int64(1), stats["runs_started"])
	assert.Equal(t, int64(1), stats["runs_settled"])
	assert.Equal(t, int64(1), stats["items_sent"])
}
