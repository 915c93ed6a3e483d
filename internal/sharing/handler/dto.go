package handler

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"

	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
)

type exportRequest struct {
	CocID           string   `json:"cocId"`
	EnrollmentIDs   []string `json:"enrollmentIds"`
	StartDate       string   `json:"startDate,omitempty"`
	EndDate         string   `json:"endDate,omitempty"`
	ExportType      string   `json:"exportType"`
	RequiredScopes  []string `json:"requiredScopes"`
	EncryptionKeyID string   `json:"encryptionKeyId"`
	Format          string   `json:"format,omitempty"`
}

func (r exportRequest) toModel(initiatedBy string, defaultFormat models.Format) (models.ExportRequest, error) {
	ids, err := parseIDs(r.EnrollmentIDs)
	if err != nil {
		return models.ExportRequest{}, err
	}
	window, err := parseWindow(r.StartDate, r.EndDate)
	if err != nil {
		return models.ExportRequest{}, err
	}
	scopes, err := parseScopeList(r.RequiredScopes)
	if err != nil {
		return models.ExportRequest{}, err
	}
	format := defaultFormat
	if strings.TrimSpace(r.Format) != "" {
		if format, err = models.ParseFormat(r.Format); err != nil {
			return models.ExportRequest{}, err
		}
	}
	exportType := models.ExportType(strings.ToUpper(strings.TrimSpace(r.ExportType)))
	if exportType == "" {
		exportType = models.ExportAllRecords
	}
	return models.ExportRequest{
		CocID:           r.CocID,
		EnrollmentIDs:   ids,
		Window:          window,
		ExportType:      exportType,
		RequiredScopes:  scopes,
		EncryptionKeyID: r.EncryptionKeyID,
		Format:          format,
		InitiatedBy:     initiatedBy,
	}, nil
}

type receiptResponse struct {
	ID              uuid.UUID `json:"id"`
	CocID           string    `json:"cocId"`
	ExportType      string    `json:"exportType"`
	Format          string    `json:"format"`
	FileName        string    `json:"fileName"`
	RecordCount     int       `json:"recordCount"`
	FileSize        int64     `json:"fileSize"`
	EncryptionKeyID string    `json:"encryptionKeyId"`
	InitiatedBy     string    `json:"initiatedBy"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toReceiptResponse(r *models.ExportReceipt) receiptResponse {
	return receiptResponse{
		ID:              r.ID,
		CocID:           r.CocID,
		ExportType:      string(r.ExportType),
		Format:          string(r.Format),
		FileName:        r.FileName,
		RecordCount:     r.RecordCount,
		FileSize:        r.FileSize,
		EncryptionKeyID: r.EncryptionKeyID,
		InitiatedBy:     r.InitiatedBy,
		CreatedAt:       r.CreatedAt,
	}
}

type exportResponse struct {
	Receipt  receiptResponse `json:"receipt"`
	Artifact string          `json:"artifact"`
}

type importResponse struct {
	JobID     uuid.UUID `json:"jobId"`
	Status    string    `json:"status"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Warnings  int       `json:"warnings"`
	ErrorLog  []string  `json:"errorLog"`
}

func toImportResponse(r *models.ImportResult) importResponse {
	log := r.ErrorLog
	if log == nil {
		log = []string{}
	}
	return importResponse{
		JobID:     r.JobID,
		Status:    string(r.Status),
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Warnings:  r.Warnings,
		ErrorLog:  log,
	}
}

type importJobResponse struct {
	ID            uuid.UUID  `json:"id"`
	SourceSystem  string     `json:"sourceSystem"`
	Format        string     `json:"format"`
	Status        string     `json:"status"`
	FileName      string     `json:"fileName,omitempty"`
	Attempted     int        `json:"attempted"`
	Succeeded     int        `json:"succeeded"`
	Failed        int        `json:"failed"`
	Warnings      int        `json:"warnings"`
	ErrorLog      []string   `json:"errorLog"`
	FailureReason string     `json:"failureReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

func toImportJobResponse(j *models.ImportJob) importJobResponse {
	log := j.ErrorLog
	if log == nil {
		log = []string{}
	}
	return importJobResponse{
		ID:            j.ID,
		SourceSystem:  j.SourceSystem,
		Format:        string(j.Format),
		Status:        string(j.Status),
		FileName:      j.FileName,
		Attempted:     j.Attempted,
		Succeeded:     j.Succeeded,
		Failed:        j.Failed,
		Warnings:      j.Warned,
		ErrorLog:      log,
		FailureReason: j.FailureReason,
		CreatedAt:     j.CreatedAt,
		CompletedAt:   j.CompletedAt,
	}
}

type vspExportRequest struct {
	RequestID            string   `json:"requestId,omitempty"`
	Recipient            string   `json:"recipient"`
	RecipientCategory    string   `json:"recipientCategory"`
	ConsentBasis         string   `json:"consentBasis"`
	CocID                string   `json:"cocId"`
	EnrollmentIDs        []string `json:"enrollmentIds"`
	StartDate            string   `json:"startDate,omitempty"`
	EndDate              string   `json:"endDate,omitempty"`
	ShareScopes          []string `json:"shareScopes"`
	EncryptionKeyID      string   `json:"encryptionKeyId"`
	ExpiryDays           int      `json:"expiryDays,omitempty"`
	ExportReason         string   `json:"exportReason,omitempty"`
	AdditionalRedactions []string `json:"additionalRedactions,omitempty"`
	DVRedaction          string   `json:"dvRedaction,omitempty"`
	RequireApproval      bool     `json:"requireApproval,omitempty"`
}

func (r vspExportRequest) toModel(initiatedBy string) (models.VspExportRequest, error) {
	var requestID uuid.UUID
	if r.RequestID != "" {
		id, err := uuid.Parse(r.RequestID)
		if err != nil {
			return models.VspExportRequest{}, dErrors.New(dErrors.CodeBadRequest, "invalid requestId")
		}
		requestID = id
	}
	ids, err := parseIDs(r.EnrollmentIDs)
	if err != nil {
		return models.VspExportRequest{}, err
	}
	window, err := parseWindow(r.StartDate, r.EndDate)
	if err != nil {
		return models.VspExportRequest{}, err
	}
	scopes, err := parseScopeList(r.ShareScopes)
	if err != nil {
		return models.VspExportRequest{}, err
	}
	flag, err := models.ParseDVRedactionFlag(r.DVRedaction)
	if err != nil {
		return models.VspExportRequest{}, err
	}
	return models.VspExportRequest{
		RequestID:            requestID,
		Recipient:            strings.TrimSpace(r.Recipient),
		Category:             models.ParseRecipientCategory(r.RecipientCategory),
		ConsentBasis:         r.ConsentBasis,
		CocID:                r.CocID,
		EnrollmentIDs:        ids,
		Window:               window,
		ShareScopes:          scopes,
		Format:               models.FormatCSV,
		EncryptionKeyID:      r.EncryptionKeyID,
		ExpiryDays:           r.ExpiryDays,
		InitiatedBy:          initiatedBy,
		ExportReason:         r.ExportReason,
		AdditionalRedactions: r.AdditionalRedactions,
		DVRedaction:          flag,
		RequireApproval:      r.RequireApproval,
	}, nil
}

type vspExportResponse struct {
	ExportID          uuid.UUID        `json:"exportId"`
	Recipient         string           `json:"recipient"`
	RecipientCategory string           `json:"recipientCategory"`
	Status            string           `json:"status"`
	CEHashKey         string           `json:"ceHashKey"`
	ExportedAt        time.Time        `json:"exportedAt"`
	ExpiresAt         time.Time        `json:"expiresAt"`
	ShareScopes       []string         `json:"shareScopes"`
	RevokedAt         *time.Time       `json:"revokedAt,omitempty"`
	RevokedBy         string           `json:"revokedBy,omitempty"`
	RevocationReason  string           `json:"revocationReason,omitempty"`
	AnonymizationTier string           `json:"anonymizationLevel,omitempty"`
	RedactionLevel    string           `json:"redactionLevel,omitempty"`
	FileName          string           `json:"fileName,omitempty"`
	RecordCount       *int             `json:"recordCount,omitempty"`
	Records           []map[string]any `json:"records,omitempty"`
	Artifact          string           `json:"artifact,omitempty"`
}

func toVspExportResponse(e models.VspExport) vspExportResponse {
	return vspExportResponse{
		ExportID:          e.ID,
		Recipient:         e.Recipient,
		RecipientCategory: string(e.Category),
		Status:            string(e.Status),
		CEHashKey:         e.CEHashKey,
		ExportedAt:        e.ExportedAt,
		ExpiresAt:         e.ExpiresAt,
		ShareScopes:       e.ShareScopes.Strings(),
		RevokedAt:         e.RevokedAt,
		RevokedBy:         e.RevokedBy,
		RevocationReason:  e.RevocationReason,
	}
}

func toVspResultResponse(r *models.VspExportResult) vspExportResponse {
	resp := toVspExportResponse(r.Export)
	count := r.RecordCount
	resp.AnonymizationTier = string(r.Level)
	resp.RedactionLevel = string(r.RedactionLevel)
	resp.FileName = r.FileName
	resp.RecordCount = &count
	resp.Records = r.Records
	resp.Artifact = base64.StdEncoding.EncodeToString(r.Artifact)
	return resp
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

type shareHistoryResponse struct {
	Recipient     string              `json:"recipient"`
	Total         int                 `json:"totalExports"`
	Active        int                 `json:"activeExports"`
	Revoked       int                 `json:"revokedExports"`
	Expired       int                 `json:"expiredExports"`
	Pending       int                 `json:"pendingExports"`
	FirstExportAt *time.Time          `json:"firstExportDate,omitempty"`
	LastExportAt  *time.Time          `json:"lastExportDate,omitempty"`
	Exports       []vspExportResponse `json:"exports"`
}

func toShareHistoryResponse(h *models.RecipientShareHistory) shareHistoryResponse {
	exports := make([]vspExportResponse, 0, len(h.Exports))
	for _, e := range h.Exports {
		exports = append(exports, toVspExportResponse(e))
	}
	return shareHistoryResponse{
		Recipient:     h.Recipient,
		Total:         h.Total,
		Active:        h.Active,
		Revoked:       h.Revoked,
		Expired:       h.Expired,
		Pending:       h.Pending,
		FirstExportAt: h.FirstExportAt,
		LastExportAt:  h.LastExportAt,
		Exports:       exports,
	}
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "invalid enrollment id: "+s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseWindow(start, end string) (models.DateRange, error) {
	var w models.DateRange
	if start != "" {
		t, err := models.ParseDate(start)
		if err != nil {
			return w, dErrors.New(dErrors.CodeBadRequest, "invalid startDate: "+start)
		}
		w.Start = &t
	}
	if end != "" {
		t, err := models.ParseDate(end)
		if err != nil {
			return w, dErrors.New(dErrors.CodeBadRequest, "invalid endDate: "+end)
		}
		w.End = &t
	}
	return w, nil
}

func parseScopeList(raw []string) (models.ScopeSet, error) {
	scopes := make([]models.ShareScope, 0, len(raw))
	for _, s := range raw {
		scopes = append(scopes, models.ShareScope(s))
	}
	return models.NewScopeSet(scopes...)
}
