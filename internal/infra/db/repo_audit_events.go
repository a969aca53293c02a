package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

type AuditEventRepository struct {
	db    *gorm.DB
	scope timeoutScope
}

func NewAuditEventRepository(db *gorm.DB, scope timeoutScope) *AuditEventRepository {
	return &AuditEventRepository{db: db, scope: scope}
}

func (r *AuditEventRepository) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if r.db == nil {
		return domain.AuditEvent{}, errDBUnavailable
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.CreatedAt = dbTime(event.CreatedAt)
	if event.EventType == "" {
		return domain.AuditEvent{}, errors.New("event_type is required")
	}
	if event.TenantID == "" {
		event.TenantID = domain.AuditSystemTenantID
	}
	ctx, cancel := r.scope.ctx(ctx)
	defer cancel()

	var out domain.AuditEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, prevHash, err := nextAuditSeq(ctx, tx, event.TenantID)
		if err != nil {
			return err
		}
		sealed, payloadJSON, err := domain.SealAuditEvent(event, seq, prevHash)
		if err != nil {
			return err
		}
		model := auditEventModelFromDomain(sealed, payloadJSON)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		out = sealed
		return nil
	})
	if err != nil {
		return domain.AuditEvent{}, storeError(err)
	}
	return out, nil
}

func (r *AuditEventRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.AuditEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if tenantID == "" {
		tenantID = domain.AuditSystemTenantID
	}
	ctx, cancel := r.scope.ctx(ctx)
	defer cancel()
	var models []AuditEventModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, storeError(err)
	}
	out := make([]domain.AuditEvent, 0, len(models))
	for _, model := range models {
		event, err := auditEventFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, nil
}

func auditEventModelFromDomain(event domain.AuditEvent, payloadJSON []byte) AuditEventModel {
	return AuditEventModel{
		ID:            event.ID,
		TenantID:      event.TenantID,
		Seq:           event.Seq,
		EventType:     string(event.EventType),
		PayloadJSON:   payloadJSON,
		PayloadHash:   event.PayloadHash,
		ActorType:     string(event.ActorType),
		ActorID:       stringPtrIfNotEmpty(event.ActorID),
		TargetType:    string(event.TargetType),
		TargetID:      stringPtrIfNotEmpty(event.TargetID),
		Result:        string(event.Result),
		ErrorCode:     stringPtrIfNotEmpty(event.ErrorCode),
		PrevEventHash: event.PrevEventHash,
		EventHash:     event.EventHash,
		CreatedAt:     event.CreatedAt.UTC(),
	}
}

// auditEventFromModel decodes the stored jsonb payload. Postgres reorders
// keys, which is harmless since the payload hash is taken over sorted keys.
func auditEventFromModel(model AuditEventModel) (domain.AuditEvent, error) {
	payload := map[string]any{}
	if len(model.PayloadJSON) > 0 {
		if err := json.Unmarshal(model.PayloadJSON, &payload); err != nil {
			return domain.AuditEvent{}, fmt.Errorf("decode audit payload seq %d: %w", model.Seq, err)
		}
	}
	return domain.AuditEvent{
		ID:            model.ID,
		TenantID:      model.TenantID,
		Seq:           model.Seq,
		EventType:     domain.AuditEventType(model.EventType),
		Payload:       payload,
		PayloadHash:   model.PayloadHash,
		ActorType:     domain.AuditActorType(model.ActorType),
		ActorID:       stringValue(model.ActorID),
		TargetType:    domain.AuditTargetType(model.TargetType),
		TargetID:      stringValue(model.TargetID),
		Result:        domain.AuditResult(model.Result),
		ErrorCode:     stringValue(model.ErrorCode),
		PrevEventHash: model.PrevEventHash,
		EventHash:     model.EventHash,
		CreatedAt:     model.CreatedAt.UTC(),
	}, nil
}

// nextAuditSeq reserves the next sequence number for tenantID. The
// tenant_audit_seq row stays locked until the surrounding transaction ends,
// which serializes appends per tenant.
func nextAuditSeq(ctx context.Context, tx *gorm.DB, tenantID string) (int64, string, error) {
	if err := tx.WithContext(ctx).Exec(
		"INSERT INTO tenant_audit_seq (tenant_id, seq) VALUES (?, 0) ON CONFLICT (tenant_id) DO NOTHING",
		tenantID,
	).Error; err != nil {
		return 0, "", err
	}

	var currentSeq int64
	if err := tx.WithContext(ctx).Raw(
		"SELECT seq FROM tenant_audit_seq WHERE tenant_id = ? FOR UPDATE",
		tenantID,
	).Scan(&currentSeq).Error; err != nil {
		return 0, "", err
	}
	nextSeq := currentSeq + 1
	if err := tx.WithContext(ctx).Exec(
		"UPDATE tenant_audit_seq SET seq = ? WHERE tenant_id = ?",
		nextSeq,
		tenantID,
	).Error; err != nil {
		return 0, "", err
	}

	prevHash := domain.ZeroAuditHash
	if currentSeq > 0 {
		var prev AuditEventModel
		if err := tx.WithContext(ctx).
			Where("tenant_id = ? AND seq = ?", tenantID, currentSeq).
			Take(&prev).Error; err != nil {
			return 0, "", err
		}
		prevHash = prev.EventHash
	}
	if prevHash == "" {
		return 0, "", fmt.Errorf("missing previous event hash for tenant %s", tenantID)
	}
	return nextSeq, prevHash, nil
}
