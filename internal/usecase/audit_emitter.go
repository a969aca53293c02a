package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

type Clock func() time.Time

type AuditEmitter struct {
	Repo   AuditEventRepository
	Clock  Clock
	Logger *zap.Logger
}

func NewAuditEmitter(repo AuditEventRepository, clock Clock, logger *zap.Logger) *AuditEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditEmitter{
		Repo:   repo,
		Clock:  clock,
		Logger: logger,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if e == nil || e.Repo == nil {
		return domain.AuditEvent{}, errors.New("audit repository required")
	}
	if event.EventType == "" || event.TargetType == "" || event.Result == "" || event.ActorType == "" {
		return domain.AuditEvent{}, errors.New("audit event missing required fields")
	}
	if event.TenantID == "" {
		event.TenantID = domain.AuditSystemTenantID
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = e.now().UTC()
	} else {
		event.CreatedAt = event.CreatedAt.UTC()
	}
	return e.Repo.Append(ctx, event)
}

// record emits without failing the caller; the committed operation stands
// even when the audit append does not.
func (e *AuditEmitter) record(ctx context.Context, event domain.AuditEvent) {
	if e == nil || e.Repo == nil {
		return
	}
	if _, err := e.Emit(ctx, event); err != nil {
		e.Logger.Error("audit emit failed",
			zap.String("event_type", string(event.EventType)),
			zap.String("tenant_id", event.TenantID),
			zap.String("target_id", event.TargetID),
			zap.Error(err),
		)
	}
}

func (e *AuditEmitter) EmitLogin(ctx context.Context, tenantID, operatorID, login string, result domain.AuditResult, errorCode string) {
	actorType := domain.AuditActorOperator
	actorID := operatorID
	if operatorID == "" {
		actorType = domain.AuditActorAnonymous
		actorID = hashString(login)
	}
	payload := map[string]any{
		"login_hash": hashString(login),
	}
	if tenantID != "" {
		payload["tenant_id"] = tenantID
	}
	e.record(ctx, domain.AuditEvent{
		TenantID:   tenantID,
		ActorType:  actorType,
		ActorID:    actorID,
		EventType:  domain.AuditEventLogin,
		Payload:    payload,
		TargetType: domain.AuditTargetOperator,
		TargetID:   operatorID,
		Result:     result,
		ErrorCode:  errorCode,
	})
}

func (e *AuditEmitter) EmitSheetCreated(ctx context.Context, principal domain.Principal, sheet domain.Sheet) {
	e.record(ctx, domain.AuditEvent{
		TenantID:  sheet.TenantID,
		ActorType: actorTypeFor(principal),
		ActorID:   principal.OperatorID,
		EventType: domain.AuditEventSheetCreated,
		Payload: map[string]any{
			"platform_id": sheet.PlatformID,
			"vehicle_ref": sheet.VehicleRef,
		},
		TargetType: domain.AuditTargetSheet,
		TargetID:   sheet.ID,
		Result:     domain.AuditResultSuccess,
	})
}

func (e *AuditEmitter) EmitSheetTransitioned(ctx context.Context, principal domain.Principal, sheet domain.Sheet, from, target domain.SheetState, result domain.AuditResult, errorCode string) {
	e.record(ctx, domain.AuditEvent{
		TenantID:  sheet.TenantID,
		ActorType: actorTypeFor(principal),
		ActorID:   principal.OperatorID,
		EventType: domain.AuditEventSheetTransitioned,
		Payload: map[string]any{
			"from":   string(from),
			"target": string(target),
		},
		TargetType: domain.AuditTargetSheet,
		TargetID:   sheet.ID,
		Result:     result,
		ErrorCode:  errorCode,
	})
}

func (e *AuditEmitter) EmitAttachmentAdded(ctx context.Context, principal domain.Principal, attachment domain.Attachment) {
	payload := map[string]any{
		"sheet_id": attachment.SheetID,
		"kind":     string(attachment.Kind),
	}
	if attachment.ItemCode != "" {
		payload["item_code"] = attachment.ItemCode
		payload["outcome"] = string(attachment.Outcome)
	}
	if attachment.PhotoType != "" {
		payload["photo_type"] = attachment.PhotoType
	}
	e.record(ctx, domain.AuditEvent{
		TenantID:   attachment.TenantID,
		ActorType:  actorTypeFor(principal),
		ActorID:    principal.OperatorID,
		EventType:  domain.AuditEventAttachmentAdded,
		Payload:    payload,
		TargetType: domain.AuditTargetAttachment,
		TargetID:   attachment.ID,
		Result:     domain.AuditResultSuccess,
	})
}

func (e *AuditEmitter) EmitSheetAdminDeleted(ctx context.Context, principal domain.Principal, sheet domain.Sheet, attachments int) {
	e.record(ctx, domain.AuditEvent{
		TenantID:  sheet.TenantID,
		ActorType: actorTypeFor(principal),
		ActorID:   principal.OperatorID,
		EventType: domain.AuditEventSheetAdminDeleted,
		Payload: map[string]any{
			"state":       string(sheet.State),
			"operator_id": sheet.OperatorID,
			"attachments": attachments,
		},
		TargetType: domain.AuditTargetSheet,
		TargetID:   sheet.ID,
		Result:     domain.AuditResultSuccess,
	})
}

func (e *AuditEmitter) EmitOperatorEvent(ctx context.Context, principal domain.Principal, eventType domain.AuditEventType, op domain.Operator, payload map[string]any) {
	e.record(ctx, domain.AuditEvent{
		TenantID:   op.TenantID,
		ActorType:  actorTypeFor(principal),
		ActorID:    principal.OperatorID,
		EventType:  eventType,
		Payload:    payload,
		TargetType: domain.AuditTargetOperator,
		TargetID:   op.ID,
		Result:     domain.AuditResultSuccess,
	})
}

func (e *AuditEmitter) now() time.Time {
	if e != nil && e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func actorTypeFor(principal domain.Principal) domain.AuditActorType {
	if principal.AdminKey {
		return domain.AuditActorAdminAPIKey
	}
	if principal.OperatorID == "" {
		return domain.AuditActorSystem
	}
	return domain.AuditActorOperator
}

func hashString(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
