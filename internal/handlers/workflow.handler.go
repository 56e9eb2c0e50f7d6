package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"

	"github.com/afshinator/BatchSMS/internal/ingest"
	"github.com/afshinator/BatchSMS/internal/model"
	"github.com/afshinator/BatchSMS/internal/selection"
	"github.com/afshinator/BatchSMS/internal/send"
	"github.com/afshinator/BatchSMS/internal/services"
	xhttp "github.com/afshinator/BatchSMS/pkg/http"
)

type WorkflowService interface {
	LoadDocument(ctx context.Context, text, fileName string) (*ingest.Document, string, error)
	Rows(ctx context.Context) ([]services.RowView, error)
	SelectAll() error
	SelectNone() error
	ToggleRow(i int) error
	TogglePhoneChoice(i int) error
	FinalizeSelection(ctx context.Context) ([]model.Recipient, error)
	ResetSelection() error
	PhonePref(ctx context.Context) model.PhoneType
	SetPhonePref(ctx context.Context, t model.PhoneType) error
	Messages(ctx context.Context) model.MessageSet
	SaveMessages(ctx context.Context, m model.MessageSet) error
	SelectedSlot(ctx context.Context) model.MessageSlot
	SelectSlot(ctx context.Context, slot model.MessageSlot) error
	StartRun(ctx context.Context) (send.Snapshot, error)
	CancelRun() error
	ResetRun() error
	RunStatus() send.Snapshot
	RunDetail(ctx context.Context, runID string) (*model.RunReport, error)
	RunHistory(ctx context.Context, f model.RunFilter) ([]*model.RunReport, int64, error)
}

type WorkflowHandler struct {
	svc WorkflowService
}

func NewWorkflowHandler(svc WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{
		svc: svc,
	}
}

func RegisterWorkflowRoutes(e *router.Group, h *WorkflowHandler) {
	e.POST("/document", h.LoadDocument)
	e.GET("/document", h.GetDocument)

	e.POST("/selection/all", h.SelectAll)
	e.POST("/selection/none", h.SelectNone)
	e.POST("/selection/rows/{index}/toggle", h.ToggleRow)
	e.POST("/selection/rows/{index}/phone", h.TogglePhoneChoice)
	e.POST("/selection/finalize", h.FinalizeSelection)
	e.POST("/selection/reset", h.ResetSelection)

	e.GET("/messages", h.GetMessages)
	e.PUT("/messages", h.SaveMessages)
	e.POST("/messages/select", h.SelectSlot)

	e.GET("/prefs/phone-type", h.GetPhonePref)
	e.PUT("/prefs/phone-type", h.SetPhonePref)

	e.POST("/runs", h.StartRun)
	e.GET("/runs/active", h.GetRunStatus)
	e.POST("/runs/cancel", h.CancelRun)
	e.POST("/runs/reset", h.ResetRun)
	e.GET("/runs", h.ListRuns)
	e.GET("/runs/{id}", h.GetRun)
}

type loadDocumentRequest struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

type documentResponse struct {
	DocumentID  string             `json:"document_id"`
	FileName    string             `json:"file_name"`
	SkippedRows int                `json:"skipped_rows"`
	Rows        []services.RowView `json:"rows"`
}

type recipientsResponse struct {
	Recipients []model.Recipient `json:"recipients"`
}

type messagesRequest struct {
	Message1 string `json:"message1"`
	Message2 string `json:"message2"`
	Message3 string `json:"message3"`
}

type messagesResponse struct {
	Message1     string `json:"message1"`
	Message2     string `json:"message2"`
	Message3     string `json:"message3"`
	SelectedSlot string `json:"selected_slot"`
}

type selectSlotRequest struct {
	Slot string `json:"slot"`
}

type phonePrefRequest struct {
	PhoneType string `json:"phone_type"`
}

type runListResponse struct {
	Items []*model.RunReport `json:"items"`
	Total int64              `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *WorkflowHandler) LoadDocument(ctx *xhttp.RequestCtx) {
	var req loadDocumentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	doc, docID, err := h.svc.LoadDocument(ctx, req.Content, req.FileName)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}

	rows, err := h.svc.Rows(ctx)
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 201, documentResponse{
		DocumentID:  docID,
		FileName:    doc.FileName,
		SkippedRows: doc.SkippedRows,
		Rows:        rows,
	})
}

func (h *WorkflowHandler) GetDocument(ctx *xhttp.RequestCtx) {
	rows, err := h.svc.Rows(ctx)
	if err != nil {
		if errors.Is(err, services.ErrNoDocument) {
			writeError(ctx, 404, err.Error())
			return
		}
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, map[string]any{"rows": rows})
}

func (h *WorkflowHandler) SelectAll(ctx *xhttp.RequestCtx) {
	h.selectionMutation(ctx, h.svc.SelectAll)
}

func (h *WorkflowHandler) SelectNone(ctx *xhttp.RequestCtx) {
	h.selectionMutation(ctx, h.svc.SelectNone)
}

func (h *WorkflowHandler) ToggleRow(ctx *xhttp.RequestCtx) {
	index, err := pathInt(ctx, "index")
	if err != nil {
		writeError(ctx, 400, "invalid row index")
		return
	}
	h.selectionMutation(ctx, func() error { return h.svc.ToggleRow(index) })
}

func (h *WorkflowHandler) TogglePhoneChoice(ctx *xhttp.RequestCtx) {
	index, err := pathInt(ctx, "index")
	if err != nil {
		writeError(ctx, 400, "invalid row index")
		return
	}
	h.selectionMutation(ctx, func() error { return h.svc.TogglePhoneChoice(index) })
}

func (h *WorkflowHandler) FinalizeSelection(ctx *xhttp.RequestCtx) {
	recipients, err := h.svc.FinalizeSelection(ctx)
	if err != nil {
		writeError(ctx, selectionStatus(err), err.Error())
		return
	}
	writeJSON(ctx, 200, recipientsResponse{Recipients: recipients})
}

func (h *WorkflowHandler) ResetSelection(ctx *xhttp.RequestCtx) {
	if err := h.svc.ResetSelection(); err != nil {
		writeError(ctx, selectionStatus(err), err.Error())
		return
	}
	writeJSON(ctx, 200, map[string]string{"status": "ok"})
}

func (h *WorkflowHandler) GetMessages(ctx *xhttp.RequestCtx) {
	set := h.svc.Messages(ctx)
	writeJSON(ctx, 200, messagesResponse{
		Message1:     set.Slot1,
		Message2:     set.Slot2,
		Message3:     set.Slot3,
		SelectedSlot: string(h.svc.SelectedSlot(ctx)),
	})
}

func (h *WorkflowHandler) SaveMessages(ctx *xhttp.RequestCtx) {
	var req messagesRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	set := model.MessageSet{
		Slot1: req.Message1,
		Slot2: req.Message2,
		Slot3: req.Message3,
	}
	if err := h.svc.SaveMessages(ctx, set); err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, map[string]string{"status": "ok"})
}

func (h *WorkflowHandler) SelectSlot(ctx *xhttp.RequestCtx) {
	var req selectSlotRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	slot, err := model.ParseMessageSlot(req.Slot)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	if err := h.svc.SelectSlot(ctx, slot); err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, map[string]string{"selected_slot": string(slot)})
}

func (h *WorkflowHandler) GetPhonePref(ctx *xhttp.RequestCtx) {
	writeJSON(ctx, 200, map[string]string{"phone_type": string(h.svc.PhonePref(ctx))})
}

func (h *WorkflowHandler) SetPhonePref(ctx *xhttp.RequestCtx) {
	var req phonePrefRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	t, err := model.ParsePhoneType(req.PhoneType)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	if err := h.svc.SetPhonePref(ctx, t); err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, map[string]string{"phone_type": string(t)})
}

func (h *WorkflowHandler) StartRun(ctx *xhttp.RequestCtx) {
	snap, err := h.svc.StartRun(context.Background())
	if err != nil {
		switch {
		case errors.Is(err, send.ErrRunActive):
			writeError(ctx, 409, err.Error())
		case errors.Is(err, services.ErrNoRecipients), errors.Is(err, services.ErrNoMessage):
			writeError(ctx, 422, err.Error())
		default:
			writeError(ctx, 400, err.Error())
		}
		return
	}
	writeJSON(ctx, 201, snap)
}

func (h *WorkflowHandler) GetRunStatus(ctx *xhttp.RequestCtx) {
	writeJSON(ctx, 200, h.svc.RunStatus())
}

func (h *WorkflowHandler) CancelRun(ctx *xhttp.RequestCtx) {
	if err := h.svc.CancelRun(); err != nil {
		writeError(ctx, 409, err.Error())
		return
	}
	writeJSON(ctx, 200, h.svc.RunStatus())
}

func (h *WorkflowHandler) ResetRun(ctx *xhttp.RequestCtx) {
	if err := h.svc.ResetRun(); err != nil {
		writeError(ctx, 409, err.Error())
		return
	}
	writeJSON(ctx, 200, h.svc.RunStatus())
}

func (h *WorkflowHandler) ListRuns(ctx *xhttp.RequestCtx) {
	var f model.RunFilter
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
	}
	if v := query(ctx, "cancelled"); v != "" {
		if b, e := strconv.ParseBool(v); e == nil {
			f.Cancelled = &b
		}
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Offset = n
		}
	}
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	items, total, err := h.svc.RunHistory(ctx, f)
	if err != nil {
		if errors.Is(err, services.ErrHistoryDisabled) {
			writeError(ctx, 501, err.Error())
			return
		}
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, runListResponse{Items: items, Total: total})
}

func (h *WorkflowHandler) GetRun(ctx *xhttp.RequestCtx) {
	runID, _ := ctx.UserValue("id").(string)
	report, err := h.svc.RunDetail(ctx, runID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrHistoryDisabled):
			writeError(ctx, 501, err.Error())
		default:
			writeError(ctx, 404, err.Error())
		}
		return
	}
	writeJSON(ctx, 200, report)
}

func (h *WorkflowHandler) selectionMutation(ctx *xhttp.RequestCtx, fn func() error) {
	if err := fn(); err != nil {
		writeError(ctx, selectionStatus(err), err.Error())
		return
	}
	rows, err := h.svc.Rows(ctx)
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, map[string]any{"rows": rows})
}

func selectionStatus(err error) int {
	switch {
	case errors.Is(err, selection.ErrNoDocument):
		return 404
	case errors.Is(err, selection.ErrRowOutOfRange):
		return 400
	case errors.Is(err, selection.ErrNotEditing),
		errors.Is(err, selection.ErrFinalized),
		errors.Is(err, selection.ErrNoRecipients):
		return 409
	default:
		return 400
	}
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func pathInt(ctx *xhttp.RequestCtx, name string) (int, error) {
	v, _ := ctx.UserValue(name).(string)
	return strconv.Atoi(v)
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
