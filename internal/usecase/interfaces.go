package usecase

import (
	"context"
	"time"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

type OperatorRepository interface {
	// Create fails with domain.ErrConflict when (tenant, login) is taken.
	Create(ctx context.Context, op domain.Operator) error
	GetByID(ctx context.Context, operatorID string) (domain.Operator, error)
	// FindByLogin searches one tenant, or every tenant when tenantID is empty.
	FindByLogin(ctx context.Context, tenantID, login string) ([]domain.Operator, error)
	UpdateSecret(ctx context.Context, operatorID, secretHash string, at time.Time) error
	UpdateStatus(ctx context.Context, operatorID string, status domain.OperatorStatus, at time.Time) error
}

type SheetRepository interface {
	Create(ctx context.Context, sheet domain.Sheet) error
	Get(ctx context.Context, sheetID string) (domain.Sheet, error)
	List(ctx context.Context, filter domain.ListSheetsFilter) ([]domain.Sheet, error)
	// Delete removes the sheet and its attachments, returning how many
	// attachments went with it.
	Delete(ctx context.Context, sheetID string) (int, error)
	// WithSheetLocked runs fn while holding the sheet's exclusive lock. Writes
	// staged through LockedSheet are committed only when fn returns nil.
	WithSheetLocked(ctx context.Context, sheetID string, fn func(ctx context.Context, locked LockedSheet) error) error
}

type LockedSheet interface {
	Sheet() domain.Sheet
	Attachments(ctx context.Context) ([]domain.Attachment, error)
	AddAttachment(ctx context.Context, attachment domain.Attachment) error
	Save(ctx context.Context, sheet domain.Sheet) error
}

type AttachmentRepository interface {
	ListBySheet(ctx context.Context, sheetID string) ([]domain.Attachment, error)
}

type AuditEventRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
	ListByTenant(ctx context.Context, tenantID string) ([]domain.AuditEvent, error)
}

// Repositories bundles the store handles a service needs.
type Repositories struct {
	Operators   OperatorRepository
	Sheets      SheetRepository
	Attachments AttachmentRepository
	Audit       AuditEventRepository
}
