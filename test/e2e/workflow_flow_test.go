package e2e

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/afshinator/BatchSMS/internal/appstate"
	"github.com/afshinator/BatchSMS/internal/handlers"
	"github.com/afshinator/BatchSMS/internal/ingest"
	"github.com/afshinator/BatchSMS/internal/model"
	"github.com/afshinator/BatchSMS/internal/prefs"
	"github.com/afshinator/BatchSMS/internal/repository"
	"github.com/afshinator/BatchSMS/internal/selection"
	"github.com/afshinator/BatchSMS/internal/send"
	"github.com/afshinator/BatchSMS/internal/services"
	xhttp "github.com/afshinator/BatchSMS/pkg/http"
	"github.com/afshinator/BatchSMS/test/fixtures"
	"github.com/afshinator/BatchSMS/test/helpers"
)

// scriptedComposer replays a fixed list of user decisions.
type scriptedComposer struct {
	outcomes []model.ComposerOutcome
	calls    int
	texts    []string
}

func (c *scriptedComposer) Compose(ctx context.Context, phone, text string) (model.ComposerOutcome, error) {
	c.texts = append(c.texts, text)
	outcome := model.OutcomeSent
	if c.calls < len(c.outcomes) {
		outcome = c.outcomes[c.calls]
	}
	c.calls++
	return outcome, nil
}

type TestEnvironment struct {
	RunRepo    *repository.RunRepository
	Service    *services.WorkflowService
	Handler    *handlers.WorkflowHandler
	Supervisor *send.Supervisor
	Composer   *scriptedComposer
}

func setupE2EEnvironment(t *testing.T, outcomes ...model.ComposerOutcome) *TestEnvironment {
	db := helpers.SetupTestDB(t)
	runRepo := repository.NewRunRepository(db)

	_, adapter := helpers.SetupTestRedis(t)
	prefsSvc := prefs.NewService(prefs.NewRedisStore(adapter, "prefs"))

	comp := &scriptedComposer{outcomes: outcomes}
	supervisor := send.NewSupervisor(comp,
		send.WithDelay(time.Millisecond),
		send.WithRecorder(runRepo),
	)

	svc := services.NewWorkflowService(
		appstate.New(),
		selection.NewSession(),
		prefsSvc,
		supervisor,
		runRepo,
		ingest.DefaultOptions(),
	)

	return &TestEnvironment{
		RunRepo:    runRepo,
		Service:    svc,
		Handler:    handlers.NewWorkflowHandler(svc),
		Supervisor: supervisor,
		Composer:   comp,
	}
}

func doJSON(h func(*xhttp.RequestCtx), method, path string, body any) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&fasthttp.Request{}, nil, nil)
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		b, _ := json.Marshal(body)
		ctx.Request.SetBody(b)
	}
	h(ctx)
	return ctx
}

func TestFullWorkflow(t *testing.T) {
	env := setupE2EEnvironment(t,
		model.OutcomeSent,
		model.OutcomeSent,
		model.OutcomeDismissed,
	)
	ctx := context.Background()

	// 1. Load the contact document.
	resp := doJSON(env.Handler.LoadDocument, "POST", "/api/v1/document", map[string]string{
		"file_name": "contacts.csv",
		"content":   fixtures.ContactsCSV,
	})
	require.Equal(t, 201, resp.Response.StatusCode(), string(resp.Response.Body()))

	// 2. Select everyone and finalize; the phoneless row drops out.
	resp = doJSON(env.Handler.SelectAll, "POST", "/api/v1/selection/all", nil)
	require.Equal(t, 200, resp.Response.StatusCode())
	resp = doJSON(env.Handler.FinalizeSelection, "POST", "/api/v1/selection/finalize", nil)
	require.Equal(t, 200, resp.Response.StatusCode())

	var finalized struct {
		Recipients []model.Recipient `json:"recipients"`
	}
	require.NoError(t, json.Unmarshal(resp.Response.Body(), &finalized))
	require.Len(t, finalized.Recipients, 3)

	// 3. Save templates and pick one.
	resp = doJSON(env.Handler.SaveMessages, "PUT", "/api/v1/messages", map[string]string{
		"message1": fixtures.TestMessages.Slot1,
		"message2": fixtures.TestMessages.Slot2,
	})
	require.Equal(t, 200, resp.Response.StatusCode())
	resp = doJSON(env.Handler.SelectSlot, "POST", "/api/v1/messages/select", map[string]string{"slot": "2"})
	require.Equal(t, 200, resp.Response.StatusCode())

	// 4. Start the run and wait for it to settle.
	resp = doJSON(env.Handler.StartRun, "POST", "/api/v1/runs", nil)
	require.Equal(t, 201, resp.Response.StatusCode(), string(resp.Response.Body()))

	var snap send.Snapshot
	require.NoError(t, json.Unmarshal(resp.Response.Body(), &snap))
	assert.Equal(t, 3, snap.Total)

	select {
	case <-env.Supervisor.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run did not settle")
	}

	final := env.Supervisor.Snapshot()
	assert.Equal(t, model.RunStateCompleted, final.State)
	assert.Equal(t, model.RecipientStatusSent, final.Statuses[0].Status)
	assert.Equal(t, model.RecipientStatusSent, final.Statuses[1].Status)
	assert.Equal(t, model.RecipientStatusCancelled, final.Statuses[2].Status)

	// Personalization used each recipient's first name.
	assert.Equal(t, "Hi Ann, please call us back.", env.Composer.texts[0])
	assert.Equal(t, "Hi Bo, please call us back.", env.Composer.texts[1])
	assert.Equal(t, "Hi Cy, please call us back.", env.Composer.texts[2])

	// 5. The settled run was recorded and is queryable over the API.
	require.Eventually(t, func() bool {
		_, total, err := env.RunRepo.List(ctx, model.RunFilter{})
		return err == nil && total == 1
	}, 2*time.Second, 10*time.Millisecond)

	report, err := env.RunRepo.Get(ctx, snap.RunID)
	require.NoError(t, err)
	assert.False(t, report.WasCancelled)
	sent, cancelled, failed := report.Counts()
	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, 0, failed)

	listCtx := doJSON(env.Handler.ListRuns, "GET", "/api/v1/runs", nil)
	assert.Equal(t, 200, listCtx.Response.StatusCode())
}

// gatedComposer holds every invocation open until the test releases it.
type gatedComposer struct {
	opened  chan struct{}
	release chan model.ComposerOutcome
}

func (c *gatedComposer) Compose(ctx context.Context, phone, text string) (model.ComposerOutcome, error) {
	c.opened <- struct{}{}
	return <-c.release, nil
}

func TestWorkflowCancelRun(t *testing.T) {
	db := helpers.SetupTestDB(t)
	runRepo := repository.NewRunRepository(db)
	_, adapter := helpers.SetupTestRedis(t)

	comp := &gatedComposer{
		opened:  make(chan struct{}),
		release: make(chan model.ComposerOutcome),
	}
	supervisor := send.NewSupervisor(comp,
		send.WithDelay(time.Millisecond),
		send.WithRecorder(runRepo),
	)
	svc := services.NewWorkflowService(
		appstate.New(),
		selection.NewSession(),
		prefs.NewService(prefs.NewRedisStore(adapter, "prefs")),
		supervisor,
		runRepo,
		ingest.DefaultOptions(),
	)

	ctx := context.Background()
	_, _, err := svc.LoadDocument(ctx, fixtures.ContactsCSV, "contacts.csv")
	require.NoError(t, err)
	require.NoError(t, svc.SelectAll())
	_, err = svc.FinalizeSelection(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.SaveMessages(ctx, fixtures.TestMessages))
	require.NoError(t, svc.SelectSlot(ctx, model.MessageSlot1))

	snap, err := svc.StartRun(ctx)
	require.NoError(t, err)
	require.Equal(t, model.RunStateRunning, snap.State)

	// Cancel while the first composer is open, then let the user finish it.
	<-comp.opened
	require.NoError(t, svc.CancelRun())
	comp.release <- model.OutcomeSent

	select {
	case <-supervisor.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run did not settle after cancel")
	}

	final := svc.RunStatus()
	assert.Equal(t, model.RunStateCancelled, final.State)
	assert.True(t, final.WasCancelled)
	assert.Equal(t, model.RecipientStatusSent, final.Statuses[0].Status)
	assert.Equal(t, model.RecipientStatusCancelled, final.Statuses[1].Status)
	assert.Equal(t, model.RecipientStatusCancelled, final.Statuses[2].Status)

	// The cancelled run is persisted too.
	require.Eventually(t, func() bool {
		report, err := runRepo.Get(ctx, snap.RunID)
		return err == nil && report.WasCancelled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkflowPrefsPersistAcrossServices(t *testing.T) {
	_, adapter := helpers.SetupTestRedis(t)
	store := prefs.NewRedisStore(adapter, "prefs")

	ctx := context.Background()
	first := prefs.NewService(store)
	require.NoError(t, first.SetPhoneTypePref(ctx, model.PhoneTypePriority))
	require.NoError(t, first.SaveMessages(ctx, fixtures.TestMessages))
	require.NoError(t, first.SetSelectedSlot(ctx, model.MessageSlot3))

	// A new service over the same store sees the same preferences, the way
	// a restarted process would.
	second := prefs.NewService(store)
	assert.Equal(t, model.PhoneTypePriority, second.PhoneTypePref(ctx))
	assert.Equal(t, fixtures.TestMessages, second.Messages(ctx))
	assert.Equal(t, "Hi [name], thanks for visiting.", second.ActiveMessage(ctx))
}
