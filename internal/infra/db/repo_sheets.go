package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
	"github.com/rmaselli/smartFleet-app-sub002/internal/usecase"
)

type SheetRepository struct {
	db    *gorm.DB
	scope timeoutScope
}

func NewSheetRepository(db *gorm.DB, scope timeoutScope) *SheetRepository {
	return &SheetRepository{db: db, scope: scope}
}

func (r *SheetRepository) Create(ctx context.Context, sheet domain.Sheet) error {
	if r.db == nil {
		return errDBUnavailable
	}
	ctx, cancel := r.scope.ctx(ctx)
	defer cancel()
	model := sheetModelFromDomain(sheet)
	return storeError(r.db.WithContext(ctx).Create(&model).Error)
}

func (r *SheetRepository) Get(ctx context.Context, sheetID string) (domain.Sheet, error) {
	if r.db == nil {
		return domain.Sheet{}, errDBUnavailable
	}
	if !validID(sheetID) {
		return domain.Sheet{}, domain.ErrNotFound
	}
	ctx, cancel := r.scope.ctx(ctx)
	defer cancel()
	var model SheetModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", sheetID).Error; err != nil {
		return domain.Sheet{}, storeError(err)
	}
	return sheetFromModel(model), nil
}

func (r *SheetRepository) List(ctx context.Context, filter domain.ListSheetsFilter) ([]domain.Sheet, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	ctx, cancel := r.scope.ctx(ctx)
	defer cancel()
	query := r.db.WithContext(ctx).Where("tenant_id = ?", filter.TenantID)
	if filter.State != "" {
		query = query.Where("state = ?", string(filter.State))
	} else if !filter.IncludeCancelled {
		query = query.Where("state <> ?", string(domain.SheetCancelled))
	}
	if filter.PlatformID != "" {
		query = query.Where("platform_id = ?", filter.PlatformID)
	}
	if filter.OperatorID != "" {
		if !validID(filter.OperatorID) {
			return []domain.Sheet{}, nil
		}
		query = query.Where("operator_id = ?", filter.OperatorID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var models []SheetModel
	if err := query.Order("created_at DESC, id DESC").Find(&models).Error; err != nil {
		return nil, storeError(err)
	}
	out := make([]domain.Sheet, 0, len(models))
	for _, model := range models {
		out = append(out, sheetFromModel(model))
	}
	return out, nil
}

func (r *SheetRepository) Delete(ctx context.Context, sheetID string) (int, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	if !validID(sheetID) {
		return 0, domain.ErrNotFound
	}
	ctx, cancel := r.scope.ctx(ctx)
	defer cancel()
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model SheetModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", sheetID).Error; err != nil {
			return err
		}
		if err := tx.Model(&AttachmentModel{}).Where("sheet_id = ?", sheetID).Count(&removed).Error; err != nil {
			return err
		}
		return tx.Delete(&SheetModel{}, "id = ?", sheetID).Error
	})
	if err != nil {
		return 0, storeError(err)
	}
	return int(removed), nil
}

// WithSheetLocked holds SELECT ... FOR UPDATE on the sheet row for the
// duration of fn. Errors returned by fn roll the transaction back and are
// passed through untouched.
func (r *SheetRepository) WithSheetLocked(ctx context.Context, sheetID string, fn func(ctx context.Context, locked usecase.LockedSheet) error) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if !validID(sheetID) {
		return domain.ErrNotFound
	}
	ctx, cancel := r.scope.ctx(ctx)
	defer cancel()

	var fnErr error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model SheetModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", sheetID).Error; err != nil {
			return err
		}
		locked := &lockedSheet{tx: tx, sheet: sheetFromModel(model)}
		if err := fn(ctx, locked); err != nil {
			fnErr = err
			return err
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	return storeError(err)
}

type lockedSheet struct {
	tx    *gorm.DB
	sheet domain.Sheet
}

func (l *lockedSheet) Sheet() domain.Sheet {
	return l.sheet
}

func (l *lockedSheet) Attachments(ctx context.Context) ([]domain.Attachment, error) {
	var models []AttachmentModel
	if err := l.tx.WithContext(ctx).
		Where("sheet_id = ?", l.sheet.ID).
		Order("uploaded_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, storeError(err)
	}
	return attachmentsFromModels(models), nil
}

func (l *lockedSheet) AddAttachment(ctx context.Context, attachment domain.Attachment) error {
	if attachment.SheetID != l.sheet.ID {
		return fmt.Errorf("%w: attachment belongs to another sheet", domain.ErrInvalidArgument)
	}
	model := attachmentModelFromDomain(attachment)
	return storeError(l.tx.WithContext(ctx).Create(&model).Error)
}

func (l *lockedSheet) Save(ctx context.Context, sheet domain.Sheet) error {
	if sheet.ID != l.sheet.ID {
		return fmt.Errorf("%w: save of another sheet", domain.ErrInvalidArgument)
	}
	res := l.tx.WithContext(ctx).Model(&SheetModel{}).
		Where("id = ? AND version = ?", sheet.ID, l.sheet.Version).
		Updates(map[string]any{
			"state":        string(sheet.State),
			"finalized_at": dbTimePtr(sheet.FinalizedAt),
			"cancelled_at": dbTimePtr(sheet.CancelledAt),
			"closed_by":    sheet.ClosedBy,
			"version":      sheet.Version,
		})
	if res.Error != nil {
		return storeError(res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: sheet %s changed while locked", domain.ErrStoreUnavailable, sheet.ID)
	}
	l.sheet = sheet
	return nil
}

func sheetModelFromDomain(sheet domain.Sheet) SheetModel {
	return SheetModel{
		ID:          sheet.ID,
		TenantID:    sheet.TenantID,
		OperatorID:  sheet.OperatorID,
		PlatformID:  sheet.PlatformID,
		VehicleRef:  sheet.VehicleRef,
		State:       string(sheet.State),
		CreatedAt:   dbTime(sheet.CreatedAt),
		FinalizedAt: dbTimePtr(sheet.FinalizedAt),
		CancelledAt: dbTimePtr(sheet.CancelledAt),
		ClosedBy:    sheet.ClosedBy,
		Version:     sheet.Version,
	}
}

func sheetFromModel(model SheetModel) domain.Sheet {
	return domain.Sheet{
		ID:          model.ID,
		TenantID:    model.TenantID,
		OperatorID:  model.OperatorID,
		PlatformID:  model.PlatformID,
		VehicleRef:  model.VehicleRef,
		State:       domain.SheetState(model.State),
		CreatedAt:   model.CreatedAt.UTC(),
		FinalizedAt: dbTimePtr(model.FinalizedAt),
		CancelledAt: dbTimePtr(model.CancelledAt),
		ClosedBy:    model.ClosedBy,
		Version:     model.Version,
	}
}
