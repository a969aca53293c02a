package db

import (
	"context"

	"gorm.io/gorm"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

type AttachmentRepository struct {
	db    *gorm.DB
	scope timeoutScope
}

func NewAttachmentRepository(db *gorm.DB, scope timeoutScope) *AttachmentRepository {
	return &AttachmentRepository{db: db, scope: scope}
}

func (r *AttachmentRepository) ListBySheet(ctx context.Context, sheetID string) ([]domain.Attachment, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if !validID(sheetID) {
		return []domain.Attachment{}, nil
	}
	ctx, cancel := r.scope.ctx(ctx)
	defer cancel()
	var models []AttachmentModel
	if err := r.db.WithContext(ctx).
		Where("sheet_id = ?", sheetID).
		Order("uploaded_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, storeError(err)
	}
	return attachmentsFromModels(models), nil
}

func attachmentModelFromDomain(a domain.Attachment) AttachmentModel {
	return AttachmentModel{
		ID:               a.ID,
		TenantID:         a.TenantID,
		SheetID:          a.SheetID,
		Kind:             string(a.Kind),
		PhotoType:        a.PhotoType,
		ItemCode:         a.ItemCode,
		CheckDescription: a.CheckDescription,
		Outcome:          string(a.Outcome),
		BlobRef:          a.BlobRef,
		UploadedAt:       dbTime(a.UploadedAt),
		UploadedBy:       a.UploadedBy,
	}
}

func attachmentsFromModels(models []AttachmentModel) []domain.Attachment {
	out := make([]domain.Attachment, 0, len(models))
	for _, m := range models {
		out = append(out, domain.Attachment{
			ID:               m.ID,
			TenantID:         m.TenantID,
			SheetID:          m.SheetID,
			Kind:             domain.AttachmentKind(m.Kind),
			PhotoType:        m.PhotoType,
			ItemCode:         m.ItemCode,
			CheckDescription: m.CheckDescription,
			Outcome:          domain.CheckOutcome(m.Outcome),
			BlobRef:          m.BlobRef,
			UploadedAt:       m.UploadedAt.UTC(),
			UploadedBy:       m.UploadedBy,
		})
	}
	return out
}
