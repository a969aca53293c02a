package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
	"github.com/rmaselli/smartFleet-app-sub002/internal/usecase"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type loginRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
	Login    string `json:"login"`
	Secret   string `json:"secret"`
}

type loginResponse struct {
	Token      string `json:"token"`
	ExpiresAt  string `json:"expires_at"`
	OperatorID string `json:"operator_id"`
	TenantID   string `json:"tenant_id"`
	Role       string `json:"role"`
}

type principalResponse struct {
	OperatorID string `json:"operator_id"`
	TenantID   string `json:"tenant_id,omitempty"`
	Role       string `json:"role,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	AdminKey   bool   `json:"admin_key,omitempty"`
}

type createSheetRequest struct {
	PlatformID string `json:"platform_id"`
	VehicleRef string `json:"vehicle_ref,omitempty"`
}

type transitionRequest struct {
	Target string `json:"target"`
}

type sheetResponse struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	OperatorID  string `json:"operator_id"`
	PlatformID  string `json:"platform_id"`
	VehicleRef  string `json:"vehicle_ref,omitempty"`
	State       string `json:"state"`
	CreatedAt   string `json:"created_at"`
	FinalizedAt string `json:"finalized_at,omitempty"`
	CancelledAt string `json:"cancelled_at,omitempty"`
	ClosedBy    string `json:"closed_by,omitempty"`
	Version     int64  `json:"version"`
}

type vehiclePhotoRequest struct {
	PhotoType string `json:"photo_type"`
	BlobRef   string `json:"blob_ref"`
}

type itemPhotoRequest struct {
	ItemCode         string `json:"item_code"`
	CheckDescription string `json:"check_description,omitempty"`
	Outcome          string `json:"outcome,omitempty"`
	BlobRef          string `json:"blob_ref,omitempty"`
}

type attachmentResponse struct {
	ID               string `json:"id"`
	SheetID          string `json:"sheet_id"`
	Kind             string `json:"kind"`
	PhotoType        string `json:"photo_type,omitempty"`
	ItemCode         string `json:"item_code,omitempty"`
	CheckDescription string `json:"check_description,omitempty"`
	Outcome          string `json:"outcome,omitempty"`
	BlobRef          string `json:"blob_ref,omitempty"`
	UploadedAt       string `json:"uploaded_at"`
	UploadedBy       string `json:"uploaded_by"`
}

type attachmentsResponse struct {
	VehiclePhotos []attachmentResponse `json:"vehicle_photos"`
	ItemPhotos    []attachmentResponse `json:"item_photos"`
}

type checklistStatusResponse struct {
	SheetID  string                 `json:"sheet_id"`
	Complete bool                   `json:"complete"`
	Required []domain.ChecklistItem `json:"required"`
	Missing  []domain.ChecklistItem `json:"missing"`
}

type platformResponse struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Items []domain.ChecklistItem `json:"items,omitempty"`
}

func (s *Server) handleLogin(c *gin.Context) {
	if !s.enforceLoginRateLimit(c) {
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	token, err := s.identity.Authenticate(c.Request.Context(), usecase.LoginInput{
		TenantID: req.TenantID,
		Login:    req.Login,
		Secret:   req.Secret,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{
		Token:      token.Value,
		ExpiresAt:  formatTime(token.ExpiresAt),
		OperatorID: token.Principal.OperatorID,
		TenantID:   token.Principal.TenantID,
		Role:       string(token.Principal.Role),
	})
}

func (s *Server) handleMe(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	out := principalResponse{
		OperatorID: principal.OperatorID,
		TenantID:   principal.TenantID,
		Role:       string(principal.Role),
		AdminKey:   principal.AdminKey,
	}
	if !principal.ExpiresAt.IsZero() {
		out.ExpiresAt = formatTime(principal.ExpiresAt)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleListPlatforms(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	platforms := s.catalog.Platforms()
	out := make([]platformResponse, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, platformResponse{ID: p.ID, Name: p.Name})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handlePlatformChecklist(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	platform, ok := s.catalog.Platform(c.Param("platform_id"))
	if !ok {
		writeError(c, domain.ErrUnknownPlatform)
		return
	}
	c.JSON(http.StatusOK, platformResponse{ID: platform.ID, Name: platform.Name, Items: platform.Items})
}

func (s *Server) handleCreateSheet(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	var req createSheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	sheet, err := s.sheets.Create(c.Request.Context(), principal, usecase.CreateSheetInput{
		PlatformID: req.PlatformID,
		VehicleRef: req.VehicleRef,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildSheetResponse(sheet))
}

func (s *Server) handleListSheets(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	in := usecase.ListSheetsInput{
		State:      c.Query("state"),
		PlatformID: c.Query("platform_id"),
		OperatorID: c.Query("operator_id"),
	}
	if raw := c.Query("include_cancelled"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "include_cancelled must be a boolean")
			return
		}
		in.IncludeCancelled = &include
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "limit must be a non-negative integer")
			return
		}
		in.Limit = limit
	}
	sheets, err := s.sheets.List(c.Request.Context(), principal, in)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]sheetResponse, 0, len(sheets))
	for _, sheet := range sheets {
		out = append(out, buildSheetResponse(sheet))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetSheet(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	sheet, err := s.sheets.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildSheetResponse(sheet))
}

func (s *Server) handleTransition(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	target := strings.TrimSpace(req.Target)
	if target == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "target is required")
		return
	}
	sheet, err := s.sheets.Transition(c.Request.Context(), principal, c.Param("id"), domain.SheetState(target))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildSheetResponse(sheet))
}

func (s *Server) handleChecklistStatus(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	status, err := s.sheets.ChecklistStatus(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, checklistStatusResponse{
		SheetID:  status.SheetID,
		Complete: status.Complete,
		Required: nonNilItems(status.Required),
		Missing:  nonNilItems(status.Missing),
	})
}

func (s *Server) handleListAttachments(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	vehicle, items, err := s.ledger.ListForSheet(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, attachmentsResponse{
		VehiclePhotos: buildAttachmentResponses(vehicle),
		ItemPhotos:    buildAttachmentResponses(items),
	})
}

func buildSheetResponse(sheet domain.Sheet) sheetResponse {
	out := sheetResponse{
		ID:         sheet.ID,
		TenantID:   sheet.TenantID,
		OperatorID: sheet.OperatorID,
		PlatformID: sheet.PlatformID,
		VehicleRef: sheet.VehicleRef,
		State:      string(sheet.State),
		CreatedAt:  formatTime(sheet.CreatedAt),
		ClosedBy:   sheet.ClosedBy,
		Version:    sheet.Version,
	}
	if sheet.FinalizedAt != nil {
		out.FinalizedAt = formatTime(*sheet.FinalizedAt)
	}
	if sheet.CancelledAt != nil {
		out.CancelledAt = formatTime(*sheet.CancelledAt)
	}
	return out
}

func buildAttachmentResponse(a domain.Attachment) attachmentResponse {
	return attachmentResponse{
		ID:               a.ID,
		SheetID:          a.SheetID,
		Kind:             string(a.Kind),
		PhotoType:        a.PhotoType,
		ItemCode:         a.ItemCode,
		CheckDescription: a.CheckDescription,
		Outcome:          string(a.Outcome),
		BlobRef:          a.BlobRef,
		UploadedAt:       formatTime(a.UploadedAt),
		UploadedBy:       a.UploadedBy,
	}
}

func buildAttachmentResponses(list []domain.Attachment) []attachmentResponse {
	out := make([]attachmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, buildAttachmentResponse(a))
	}
	return out
}

func nonNilItems(items []domain.ChecklistItem) []domain.ChecklistItem {
	if items == nil {
		return []domain.ChecklistItem{}
	}
	return items
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	var details map[string]any
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "INVALID_CREDENTIALS"
	case errors.Is(err, domain.ErrTokenExpired):
		status, code = http.StatusUnauthorized, "TOKEN_EXPIRED"
	case errors.Is(err, domain.ErrTokenInvalid):
		status, code = http.StatusUnauthorized, "TOKEN_INVALID"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrUnknownPlatform):
		status, code = http.StatusUnprocessableEntity, "UNKNOWN_PLATFORM"
	case errors.Is(err, domain.ErrUnknownItem):
		status, code = http.StatusUnprocessableEntity, "UNKNOWN_ITEM"
	case errors.Is(err, domain.ErrTerminalState):
		status, code = http.StatusConflict, "TERMINAL_STATE"
	case errors.Is(err, domain.ErrInvalidTransition):
		status, code = http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrIncompleteChecklist):
		status, code = http.StatusConflict, "INCOMPLETE_CHECKLIST"
		if incomplete, ok := domain.IsIncompleteChecklist(err); ok {
			missing := make([]string, 0, len(incomplete.Missing))
			for _, item := range incomplete.Missing {
				missing = append(missing, item.Code)
			}
			details = map[string]any{"missing_items": missing}
		}
	case errors.Is(err, domain.ErrConflict):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrInvalidArgument):
		status, code = http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrStoreUnavailable):
		status, code = http.StatusServiceUnavailable, "STORE_UNAVAILABLE"
	}
	message := err.Error()
	if status >= http.StatusInternalServerError {
		// Infrastructure detail stays in the log.
		if logger, ok := c.Get(loggerContextKey); ok {
			logger.(*zap.Logger).Error("request failed", zap.String("code", code), zap.Error(err))
		}
		message = http.StatusText(status)
	}
	c.JSON(status, errorResponse{Code: code, Message: message, Details: details})
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
