package model

import "time"

// RecipientStatus is the per-item lifecycle within a run. Transitions are
// append-only: pending -> sending -> one of the terminal statuses.
type RecipientStatus string

const (
	RecipientStatusPending   RecipientStatus = "pending"
	RecipientStatusSending   RecipientStatus = "sending"
	RecipientStatusSent      RecipientStatus = "sent"
	RecipientStatusCancelled RecipientStatus = "cancelled"
	RecipientStatusError     RecipientStatus = "error"
)

// Terminal reports whether the status can no longer change within the run.
func (s RecipientStatus) Terminal() bool {
	switch s {
	case RecipientStatusSent, RecipientStatusCancelled, RecipientStatusError:
		return true
	}
	return false
}

// RunState is the lifecycle state of one send sequence.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateCancelled RunState = "cancelled"
)

func (s RunState) Terminal() bool {
	return s == RunStateCompleted || s == RunStateCancelled
}

// ComposerOutcome is what the user-attended composer reports for a single
// invocation that did not fail outright.
type ComposerOutcome string

const (
	// OutcomeSent means the user sent the message from the composer.
	OutcomeSent ComposerOutcome = "sent"
	// OutcomeDismissed means the user backed out of the composer; the item
	// is recorded as cancelled.
	OutcomeDismissed ComposerOutcome = "dismissed"
)

// RunReport is the persisted record of one settled run.
type RunReport struct {
	RunID        string          `json:"run_id"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
	WasCancelled bool            `json:"was_cancelled"`
	Items        []RunItemReport `json:"items"`
}

// RunItemReport is the settled outcome for one recipient of a run.
type RunItemReport struct {
	Position int             `json:"position"`
	Name     string          `json:"name"`
	Phone    string          `json:"phone"`
	Status   RecipientStatus `json:"status"`
}

// RunFilter narrows run-history queries.
type RunFilter struct {
	From      *time.Time
	To        *time.Time
	Cancelled *bool
	Limit     int
	Offset    int
	Desc      bool
}

// Counts tallies items by terminal status for display.
func (r RunReport) Counts() (sent, cancelled, failed int) {
	for _, it := range r.Items {
		switch it.Status {
		case RecipientStatusSent:
			sent++
		case RecipientStatusCancelled:
			cancelled++
		case RecipientStatusError:
			failed++
		}
	}
	return sent, cancelled, failed
}
