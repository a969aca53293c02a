package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
	"github.com/rmaselli/smartFleet-app-sub002/internal/usecase"
)

type adminOperatorRequest struct {
	TenantID    string `json:"tenant_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Login       string `json:"login"`
	Secret      string `json:"secret"`
	Role        string `json:"role,omitempty"`
}

type adminCredentialRequest struct {
	Secret string `json:"secret"`
}

type adminStatusRequest struct {
	Status string `json:"status"`
}

type operatorResponse struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	DisplayName string `json:"display_name,omitempty"`
	Login       string `json:"login"`
	Role        string `json:"role"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type auditEventResponse struct {
	ID            string         `json:"id"`
	Seq           int64          `json:"seq"`
	EventType     string         `json:"event_type"`
	ActorType     string         `json:"actor_type"`
	ActorID       string         `json:"actor_id,omitempty"`
	TargetType    string         `json:"target_type"`
	TargetID      string         `json:"target_id,omitempty"`
	Result        string         `json:"result"`
	ErrorCode     string         `json:"error_code,omitempty"`
	Payload       map[string]any `json:"payload"`
	PrevEventHash string         `json:"prev_event_hash"`
	EventHash     string         `json:"event_hash"`
	CreatedAt     string         `json:"created_at"`
}

type auditEventsResponse struct {
	TenantID   string               `json:"tenant_id"`
	ChainValid bool                 `json:"chain_valid"`
	ChainError string               `json:"chain_error,omitempty"`
	Events     []auditEventResponse `json:"events"`
}

func (s *Server) handleAdminCreateOperator(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	var req adminOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	op, err := s.admin.CreateOperator(c.Request.Context(), principal, usecase.CreateOperatorInput{
		TenantID:    req.TenantID,
		DisplayName: req.DisplayName,
		Login:       req.Login,
		Secret:      req.Secret,
		Role:        domain.Role(req.Role),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildOperatorResponse(op))
}

func (s *Server) handleAdminResetCredential(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	var req adminCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if err := s.admin.ResetCredential(c.Request.Context(), principal, c.Param("id"), req.Secret); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAdminSetStatus(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	var req adminStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	op, err := s.admin.SetOperatorStatus(c.Request.Context(), principal, c.Param("id"), domain.OperatorStatus(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildOperatorResponse(op))
}

func (s *Server) handleAdminDeleteSheet(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	if err := s.admin.DeleteSheet(c.Request.Context(), principal, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAdminAuditEvents(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		tenantID = principal.TenantID
	}
	events, err := s.admin.ListAuditEvents(c.Request.Context(), principal, tenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := auditEventsResponse{
		TenantID:   tenantID,
		ChainValid: true,
		Events:     make([]auditEventResponse, 0, len(events)),
	}
	if err := domain.VerifyAuditChain(tenantID, events); err != nil {
		out.ChainValid = false
		out.ChainError = err.Error()
	}
	for _, event := range events {
		out.Events = append(out.Events, auditEventResponse{
			ID:            event.ID,
			Seq:           event.Seq,
			EventType:     string(event.EventType),
			ActorType:     string(event.ActorType),
			ActorID:       event.ActorID,
			TargetType:    string(event.TargetType),
			TargetID:      event.TargetID,
			Result:        string(event.Result),
			ErrorCode:     event.ErrorCode,
			Payload:       event.Payload,
			PrevEventHash: event.PrevEventHash,
			EventHash:     event.EventHash,
			CreatedAt:     formatTime(event.CreatedAt),
		})
	}
	c.JSON(http.StatusOK, out)
}

func buildOperatorResponse(op domain.Operator) operatorResponse {
	return operatorResponse{
		ID:          op.ID,
		TenantID:    op.TenantID,
		DisplayName: op.DisplayName,
		Login:       op.Login,
		Role:        string(op.Role),
		Status:      string(op.Status),
		CreatedAt:   formatTime(op.CreatedAt),
		UpdatedAt:   formatTime(op.UpdatedAt),
	}
}
