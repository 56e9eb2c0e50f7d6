// Package send drives one-at-a-time, user-confirmed message sends across a
// fixed recipient snapshot.
//
// The underlying capability is a modal, user-attended composer, not a batch
// API: exactly one composer invocation is in flight at any moment, recipients
// are processed strictly in snapshot order, and a short pause separates
// consecutive invocations so status output can render between popups.
package send

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/afshinator/BatchSMS/internal/model"
	"github.com/afshinator/BatchSMS/pkg/logger"
	"github.com/afshinator/BatchSMS/pkg/prom"
	"github.com/google/uuid"
)

// DefaultStepDelay paces consecutive composer invocations. Purely for the
// status UI between popups; never zero so two composers can't stack.
const DefaultStepDelay = 500 * time.Millisecond

var (
	ErrRunActive    = errors.New("a run is already active")
	ErrNotRunning   = errors.New("no run is active")
	ErrNoRecipients = errors.New("run needs at least one recipient")
	ErrEmptyMessage = errors.New("run needs a message template")
)

// Composer is the external, user-attended collaborator that presents one
// message for the user to send or dismiss. The call blocks until the user
// acts; an error means the composer could not be opened at all.
type Composer interface {
	Compose(ctx context.Context, phone, text string) (model.ComposerOutcome, error)
}

// Recorder persists the report of a settled run. Optional.
type Recorder interface {
	Record(ctx context.Context, report model.RunReport) error
}

// ItemStatus is the live status row for one recipient of the active run.
type ItemStatus struct {
	Name   string                `json:"name"`
	Phone  string                `json:"phone"`
	Status model.RecipientStatus `json:"status"`
}

// Snapshot is a point-in-time copy of the supervisor's state.
type Snapshot struct {
	RunID        string         `json:"run_id"`
	State        model.RunState `json:"state"`
	Cursor       int            `json:"cursor"`
	Total        int            `json:"total"`
	WasCancelled bool           `json:"was_cancelled"`
	Statuses     []ItemStatus   `json:"statuses"`
}

// Supervisor is the sequential send state machine. A monotonically growing
// epoch stamps every scheduled step and every in-flight composer call;
// anything stamped with an old epoch is discarded on arrival, so a stale
// timer or a superseded composer invocation can never touch a newer run.
type Supervisor struct {
	composer Composer
	recorder Recorder
	delay    time.Duration
	metrics  *RunMetrics

	mu           sync.Mutex
	epoch        uint64
	runID        string
	recipients   []model.Recipient
	template     string
	cursor       int
	statuses     []ItemStatus
	state        model.RunState
	wasCancelled bool
	inFlight     bool
	timer        *time.Timer
	startedAt    time.Time
	done         chan struct{}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithDelay overrides the pacing delay between composer invocations.
func WithDelay(d time.Duration) Option {
	return func(s *Supervisor) { s.delay = d }
}

// WithRecorder persists a report when a run settles.
func WithRecorder(r Recorder) Option {
	return func(s *Supervisor) { s.recorder = r }
}

func NewSupervisor(composer Composer, opts ...Option) *Supervisor {
	s := &Supervisor{
		composer: composer,
		delay:    DefaultStepDelay,
		metrics:  NewRunMetrics(),
		state:    model.RunStateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins a new run over a snapshot of recipients. Valid from Idle or a
// terminal state only. Item 0 is attempted immediately; Start itself does
// not block on the composer.
func (s *Supervisor) Start(ctx context.Context, recipients []model.Recipient, template string) (Snapshot, error) {
	s.mu.Lock()
	if s.state == model.RunStateRunning {
		s.mu.Unlock()
		return Snapshot{}, ErrRunActive
	}
	if len(recipients) == 0 {
		s.mu.Unlock()
		return Snapshot{}, ErrNoRecipients
	}
	if template == "" {
		s.mu.Unlock()
		return Snapshot{}, ErrEmptyMessage
	}

	s.epoch++
	epoch := s.epoch
	s.runID = uuid.NewString()
	s.recipients = make([]model.Recipient, len(recipients))
	copy(s.recipients, recipients)
	s.template = template
	s.cursor = 0
	s.statuses = make([]ItemStatus, len(recipients))
	for i, r := range s.recipients {
		s.statuses[i] = ItemStatus{Name: r.Name, Phone: r.Phone, Status: model.RecipientStatusPending}
	}
	s.state = model.RunStateRunning
	s.wasCancelled = false
	s.inFlight = false
	s.startedAt = time.Now()
	s.done = make(chan struct{})
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.metrics.RecordRunStarted()
	prom.IncRunStarted()
	logger.Info("send: run started", "run_id", snap.RunID, "recipients", snap.Total)

	go s.step(ctx, epoch)
	return snap, nil
}

// Cancel stops the run cooperatively: every queued item is marked cancelled
// right away, while an in-flight composer invocation finishes with its true
// outcome before the run settles. Valid only while running.
func (s *Supervisor) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != model.RunStateRunning {
		return ErrNotRunning
	}

	s.wasCancelled = true
	for i := s.cursor; i < len(s.statuses); i++ {
		if s.statuses[i].Status == model.RecipientStatusPending {
			s.statuses[i].Status = model.RecipientStatusCancelled
		}
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	logger.Info("send: run cancel requested", "run_id", s.runID, "cursor", s.cursor)

	// Nothing mid-flight means nothing left to wait for.
	if !s.inFlight {
		s.settleLocked()
	}
	return nil
}

// Reset returns the supervisor to Idle with run-start defaults. Valid from
// Idle or a terminal state; an active run must be cancelled first.
func (s *Supervisor) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == model.RunStateRunning {
		return ErrRunActive
	}

	// Bump the epoch so any callback still owned by the old run is inert.
	s.epoch++
	s.cursor = 0
	for i := range s.statuses {
		s.statuses[i].Status = model.RecipientStatusPending
	}
	s.wasCancelled = false
	s.state = model.RunStateIdle
	return nil
}

// Snapshot returns a copy of the current run state.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Done returns a channel closed when the active run settles. Nil before the
// first Start.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Metrics exposes the in-process run counters.
func (s *Supervisor) Metrics() *RunMetrics {
	return s.metrics
}

// step processes the item at the cursor, then schedules itself for the next
// one. It runs on its own goroutine because the composer call blocks for as
// long as the user deliberates.
func (s *Supervisor) step(ctx context.Context, epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch || s.state != model.RunStateRunning {
		s.mu.Unlock()
		return
	}
	if s.wasCancelled || s.cursor >= len(s.recipients) {
		s.settleLocked()
		s.mu.Unlock()
		return
	}

	i := s.cursor
	recipient := s.recipients[i]
	s.statuses[i].Status = model.RecipientStatusSending
	s.inFlight = true
	text := model.Personalize(s.template, recipient.Name)
	s.mu.Unlock()

	started := time.Now()
	outcome, err := s.composer.Compose(ctx, recipient.Phone, text)
	elapsed := time.Since(started)

	s.mu.Lock()
	if epoch != s.epoch {
		// A reset or a new run superseded us while the composer was up.
		s.mu.Unlock()
		return
	}

	status := model.RecipientStatusError
	switch {
	case err != nil:
		logger.Error("send: composer invocation failed", "run_id", s.runID, "recipient", recipient.Name, "error", err)
	case outcome == model.OutcomeSent:
		status = model.RecipientStatusSent
	default:
		status = model.RecipientStatusCancelled
	}
	s.statuses[i].Status = status
	s.cursor = i + 1
	s.inFlight = false

	s.metrics.RecordItem(status, elapsed)
	prom.AddComposeDuration(elapsed.Seconds(), string(status))

	if s.wasCancelled || s.cursor >= len(s.recipients) {
		s.settleLocked()
		s.mu.Unlock()
		return
	}

	// Pause before the next composer pops so status output can render.
	s.timer = time.AfterFunc(s.delay, func() { s.step(ctx, epoch) })
	s.mu.Unlock()
}

// settleLocked moves the run into its terminal state. Caller holds the lock.
func (s *Supervisor) settleLocked() {
	if s.state != model.RunStateRunning {
		return
	}
	if s.wasCancelled {
		s.state = model.RunStateCancelled
	} else {
		s.state = model.RunStateCompleted
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	report := s.reportLocked()
	close(s.done)

	s.metrics.RecordRunSettled(time.Since(s.startedAt))
	prom.IncRunSettled(string(s.state))
	sent, cancelled, failed := report.Counts()
	logger.Info("send: run settled",
		"run_id", report.RunID,
		"state", s.state,
		"sent", sent,
		"cancelled", cancelled,
		"errors", failed)

	if s.recorder != nil {
		// Off the lock path; persistence failure must not disturb the run.
		go func() {
			if err := s.recorder.Record(context.Background(), report); err != nil {
				logger.Error("send: failed to record run report", "run_id", report.RunID, "error", err)
			}
		}()
	}
}

func (s *Supervisor) reportLocked() model.RunReport {
	items := make([]model.RunItemReport, len(s.statuses))
	for i, st := range s.statuses {
		items[i] = model.RunItemReport{
			Position: i,
			Name:     st.Name,
			Phone:    st.Phone,
			Status:   st.Status,
		}
	}
	return model.RunReport{
		RunID:        s.runID,
		StartedAt:    s.startedAt,
		FinishedAt:   time.Now(),
		WasCancelled: s.wasCancelled,
		Items:        items,
	}
}

func (s *Supervisor) snapshotLocked() Snapshot {
	statuses := make([]ItemStatus, len(s.statuses))
	copy(statuses, s.statuses)
	return Snapshot{
		RunID:        s.runID,
		State:        s.state,
		Cursor:       s.cursor,
		Total:        len(s.recipients),
		WasCancelled: s.wasCancelled,
		Statuses:     statuses,
	}
}
