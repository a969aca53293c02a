package usecase

import (
	"context"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

// ChecklistEngine decides finalize eligibility from the platform catalog and
// the sheet's item-level attachments. It holds no state of its own.
type ChecklistEngine struct {
	Catalog domain.Catalog
}

func NewChecklistEngine(catalog domain.Catalog) *ChecklistEngine {
	return &ChecklistEngine{Catalog: catalog}
}

// MissingItems lists required items not yet covered, in catalog order.
func (e *ChecklistEngine) MissingItems(sheet domain.Sheet, attachments []domain.Attachment) ([]domain.ChecklistItem, error) {
	platform, ok := e.Catalog.Platform(sheet.PlatformID)
	if !ok {
		return nil, domain.ErrUnknownPlatform
	}
	covered := make(map[string]bool)
	for _, a := range attachments {
		if a.Kind != domain.AttachmentItem || a.SheetID != sheet.ID {
			continue
		}
		if a.BlobRef != "" {
			covered[a.ItemCode] = true
			continue
		}
		if _, seen := covered[a.ItemCode]; !seen {
			covered[a.ItemCode] = false
		}
	}
	missing := make([]domain.ChecklistItem, 0)
	for _, item := range platform.RequiredItems() {
		withPhoto, seen := covered[item.Code]
		if !seen || (item.RequiresPhoto && !withPhoto) {
			missing = append(missing, item)
		}
	}
	return missing, nil
}

// IsComplete reports whether the sheet may be finalized.
func (e *ChecklistEngine) IsComplete(sheet domain.Sheet, attachments []domain.Attachment) (bool, error) {
	missing, err := e.MissingItems(sheet, attachments)
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

type ChecklistStatus struct {
	SheetID  string
	Required []domain.ChecklistItem
	Missing  []domain.ChecklistItem
	Complete bool
}

// ChecklistStatus is the read-side view of a sheet's checklist progress.
func (s *SheetService) ChecklistStatus(ctx context.Context, principal domain.Principal, sheetID string) (ChecklistStatus, error) {
	sheet, err := s.Get(ctx, principal, sheetID)
	if err != nil {
		return ChecklistStatus{}, err
	}
	attachments, err := s.repos.Attachments.ListBySheet(ctx, sheet.ID)
	if err != nil {
		return ChecklistStatus{}, err
	}
	platform, ok := s.checklist.Catalog.Platform(sheet.PlatformID)
	if !ok {
		return ChecklistStatus{}, domain.ErrUnknownPlatform
	}
	missing, err := s.checklist.MissingItems(sheet, attachments)
	if err != nil {
		return ChecklistStatus{}, err
	}
	complete, err := s.checklist.IsComplete(sheet, attachments)
	if err != nil {
		return ChecklistStatus{}, err
	}
	return ChecklistStatus{
		SheetID:  sheet.ID,
		Required: platform.RequiredItems(),
		Missing:  missing,
		Complete: complete,
	}, nil
}
