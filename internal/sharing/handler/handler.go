// Package handler exposes the sharing pipeline over HTTP.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"haven/internal/sharing/anonymize"
	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/httputil"
	"haven/pkg/requestcontext"
)

// ExportService runs CE exports and serves their receipts.
type ExportService interface {
	Export(ctx context.Context, req models.ExportRequest) (*models.ExportResult, error)
	GetReceipt(ctx context.Context, id uuid.UUID) (*models.ExportReceipt, error)
	ListReceipts(ctx context.Context, cocID string) ([]*models.ExportReceipt, error)
}

// ImportService ingests partner payloads.
type ImportService interface {
	Import(ctx context.Context, payload []byte, opts models.ImportOptions) (*models.ImportResult, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error)
}

// RecipientExportService produces and manages anonymized recipient exports.
type RecipientExportService interface {
	ExportForRecipient(ctx context.Context, access models.AccessContext, req models.VspExportRequest) (*models.VspExportResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.VspExport, error)
	Approve(ctx context.Context, id uuid.UUID, approvedBy string) (*models.VspExport, error)
	Revoke(ctx context.Context, id uuid.UUID, revokedBy, reason string) (*models.VspExport, error)
	ShareHistory(ctx context.Context, recipient string) (*models.RecipientShareHistory, error)
}

type Handler struct {
	logger     *slog.Logger
	exports    ExportService
	imports    ImportService
	recipients RecipientExportService

	defaultFormat models.Format
	sourceSystem  string
}

type Option func(*Handler)

// WithDefaultFormat sets the export format used when a request names none.
func WithDefaultFormat(f models.Format) Option {
	return func(h *Handler) {
		h.defaultFormat = f
	}
}

// WithImportSourceSystem sets the source system recorded for imports that
// do not pass one.
func WithImportSourceSystem(name string) Option {
	return func(h *Handler) {
		h.sourceSystem = name
	}
}

func New(exports ExportService, imports ImportService, recipients RecipientExportService, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger:        logger,
		exports:       exports,
		imports:       imports,
		recipients:    recipients,
		defaultFormat: models.FormatCSV,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the /ce routes on r. Authentication and rate limiting are
// applied by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Route("/ce", func(r chi.Router) {
		r.Post("/exports", h.handleExport)
		r.Get("/exports", h.handleListReceipts)
		r.Get("/exports/{receiptID}", h.handleGetReceipt)

		r.Post("/imports", h.handleImport)
		r.Get("/imports/{jobID}", h.handleGetImportJob)

		r.Post("/vsp-exports", h.handleRecipientExport)
		r.Get("/vsp-exports/{exportID}", h.handleGetRecipientExport)
		r.Post("/vsp-exports/{exportID}/revoke", h.handleRevoke)
		r.Post("/vsp-exports/{exportID}/approve", h.handleApprove)
		r.Get("/vsp-exports/history/{recipient}", h.handleShareHistory)
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body exportRequest
	if !h.decode(w, r, &body) {
		return
	}
	req, err := body.toModel(requestcontext.Subject(ctx), h.defaultFormat)
	if err != nil {
		h.fail(ctx, w, "invalid export request", err)
		return
	}
	res, err := h.exports.Export(ctx, req)
	if err != nil {
		h.fail(ctx, w, "export failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, exportResponse{
		Receipt:  toReceiptResponse(res.Receipt),
		Artifact: encodeArtifact(res.Artifact),
	})
}

func (h *Handler) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r, "receiptID")
	if !ok {
		return
	}
	receipt, err := h.exports.GetReceipt(ctx, id)
	if err != nil {
		h.fail(ctx, w, "get export receipt failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReceiptResponse(receipt))
}

func (h *Handler) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	receipts, err := h.exports.ListReceipts(ctx, r.URL.Query().Get("coc_id"))
	if err != nil {
		h.fail(ctx, w, "list export receipts failed", err)
		return
	}
	out := make([]receiptResponse, 0, len(receipts))
	for _, rc := range receipts {
		out = append(out, toReceiptResponse(rc))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"receipts": out})
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	format, err := models.ParseImportFormat(q.Get("format"))
	if err != nil {
		h.fail(ctx, w, "invalid import request", err)
		return
	}
	delimiter, err := parseDelimiter(q.Get("delimiter"))
	if err != nil {
		h.fail(ctx, w, "invalid import request", err)
		return
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(ctx, w, "read import payload failed", dErrors.Wrap(err, dErrors.CodeBadRequest, "unable to read request body"))
		return
	}

	source := q.Get("source_system")
	if strings.TrimSpace(source) == "" {
		source = h.sourceSystem
	}
	res, err := h.imports.Import(ctx, payload, models.ImportOptions{
		Format:       format,
		SourceSystem: source,
		InitiatedBy:  requestcontext.Subject(ctx),
		Delimiter:    delimiter,
		FileName:     q.Get("file_name"),
	})
	if err != nil {
		if res != nil {
			// the job was recorded as FAILED; hand back its id with the error
			w.Header().Set("X-Import-Job-Id", res.JobID.String())
		}
		h.fail(ctx, w, "import failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toImportResponse(res))
}

func (h *Handler) handleGetImportJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r, "jobID")
	if !ok {
		return
	}
	job, err := h.imports.GetJob(ctx, id)
	if err != nil {
		h.fail(ctx, w, "get import job failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toImportJobResponse(job))
}

func (h *Handler) handleRecipientExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body vspExportRequest
	if !h.decode(w, r, &body) {
		return
	}
	req, err := body.toModel(requestcontext.Subject(ctx))
	if err != nil {
		h.fail(ctx, w, "invalid recipient export request", err)
		return
	}
	access := models.NewAccessContext(requestcontext.Roles(ctx), body.ExportReason, requestcontext.Now(ctx))
	res, err := h.recipients.ExportForRecipient(ctx, access, req)
	if err != nil {
		h.fail(ctx, w, "recipient export failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toVspResultResponse(res))
}

func (h *Handler) handleGetRecipientExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r, "exportID")
	if !ok {
		return
	}
	exp, err := h.recipients.Get(ctx, id)
	if err != nil {
		h.fail(ctx, w, "get recipient export failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVspExportResponse(*exp))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r, "exportID")
	if !ok {
		return
	}
	var body revokeRequest
	if !h.decode(w, r, &body) {
		return
	}
	exp, err := h.recipients.Revoke(ctx, id, requestcontext.Subject(ctx), body.Reason)
	if err != nil {
		h.fail(ctx, w, "revoke recipient export failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVspExportResponse(*exp))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r, "exportID")
	if !ok {
		return
	}
	access := models.NewAccessContext(requestcontext.Roles(ctx), "", requestcontext.Now(ctx))
	if !anonymize.CanApprove(access) {
		h.fail(ctx, w, "approve recipient export refused",
			dErrors.New(dErrors.CodeForbidden, "approval requires an administrative role"))
		return
	}
	exp, err := h.recipients.Approve(ctx, id, requestcontext.Subject(ctx))
	if err != nil {
		h.fail(ctx, w, "approve recipient export failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVspExportResponse(*exp))
}

func (h *Handler) handleShareHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	history, err := h.recipients.ShareHistory(ctx, chi.URLParam(r, "recipient"))
	if err != nil {
		h.fail(ctx, w, "share history failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toShareHistoryResponse(history))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// fail logs at a level matching the error class and writes the envelope.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err).HTTPStatus() >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"code", dErrors.CodeOf(err),
		"error", err,
	)
	httputil.WriteError(w, err)
}

func parseDelimiter(raw string) (rune, error) {
	switch strings.ToLower(raw) {
	case "":
		return 0, nil
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(raw) != 1 {
		return 0, dErrors.New(dErrors.CodeValidation, "delimiter must be a single character")
	}
	d, _ := utf8.DecodeRuneInString(raw)
	return d, nil
}

func encodeArtifact(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
