package domain

import "time"

const (
	// AuditSystemTenantID is the reserved tenant for events not bound to a tenant.
	AuditSystemTenantID = "__system__"
	AuditChainVersion   = "audit_chain_v1"
)

type AuditActorType string

const (
	AuditActorSystem      AuditActorType = "system"
	AuditActorAdminAPIKey AuditActorType = "admin_api_key"
	AuditActorOperator    AuditActorType = "operator"
	AuditActorAnonymous   AuditActorType = "anonymous"
)

type AuditEventType string

const (
	AuditEventLogin             AuditEventType = "auth.login"
	AuditEventSheetCreated      AuditEventType = "sheet.created"
	AuditEventSheetTransitioned AuditEventType = "sheet.transitioned"
	AuditEventAttachmentAdded   AuditEventType = "attachment.added"
	AuditEventSheetAdminDeleted AuditEventType = "sheet.admin_deleted"
	AuditEventOperatorCreated   AuditEventType = "operator.created"
	AuditEventCredentialReset   AuditEventType = "operator.credential_reset"
	AuditEventOperatorStatusSet AuditEventType = "operator.status_changed"
)

type AuditTargetType string

const (
	AuditTargetOperator   AuditTargetType = "operator"
	AuditTargetSheet      AuditTargetType = "sheet"
	AuditTargetAttachment AuditTargetType = "attachment"
)

type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
)

type AuditEvent struct {
	ID            string
	TenantID      string
	Seq           int64
	EventType     AuditEventType
	Payload       map[string]any
	PayloadHash   string
	ActorType     AuditActorType
	ActorID       string
	TargetType    AuditTargetType
	TargetID      string
	Result        AuditResult
	ErrorCode     string
	PrevEventHash string
	EventHash     string
	CreatedAt     time.Time
}
