package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

type CreateSheetInput struct {
	PlatformID string
	VehicleRef string
}

type ListSheetsInput struct {
	State      string
	PlatformID string
	OperatorID string
	// IncludeCancelled overrides the configured default when set.
	IncludeCancelled *bool
	Limit            int
}

type SheetService struct {
	deps      Deps
	repos     Repositories
	checklist *ChecklistEngine
}

func NewSheetService(deps Deps) *SheetService {
	deps = deps.withDefaults()
	return &SheetService{
		deps:      deps,
		repos:     deps.Repos,
		checklist: NewChecklistEngine(deps.Catalog),
	}
}

func (s *SheetService) Create(ctx context.Context, principal domain.Principal, in CreateSheetInput) (domain.Sheet, error) {
	if err := authorize(ctx, s.deps.Policy, principal, domain.ActionMutate, domain.Resource{
		TenantID: principal.TenantID,
		OwnerID:  principal.OperatorID,
	}); err != nil {
		return domain.Sheet{}, err
	}
	platformID := strings.TrimSpace(in.PlatformID)
	if _, ok := s.deps.Catalog.Platform(platformID); !ok {
		return domain.Sheet{}, domain.ErrUnknownPlatform
	}
	vehicleRef := strings.TrimSpace(in.VehicleRef)
	if len(vehicleRef) > maxRefLength {
		return domain.Sheet{}, fmt.Errorf("%w: vehicle_ref too long", domain.ErrInvalidArgument)
	}

	sheet := domain.Sheet{
		ID:         uuid.NewString(),
		TenantID:   principal.TenantID,
		OperatorID: principal.OperatorID,
		PlatformID: platformID,
		VehicleRef: vehicleRef,
		State:      domain.SheetOpen,
		CreatedAt:  s.deps.Clock().UTC(),
		Version:    1,
	}
	if err := s.repos.Sheets.Create(ctx, sheet); err != nil {
		return domain.Sheet{}, err
	}
	s.deps.Audit.EmitSheetCreated(ctx, principal, sheet)
	s.deps.Events.Publish(domain.SheetEvent{
		Type:       domain.SheetEventCreated,
		TenantID:   sheet.TenantID,
		SheetID:    sheet.ID,
		OperatorID: sheet.OperatorID,
		PlatformID: sheet.PlatformID,
		State:      sheet.State,
		OccurredAt: sheet.CreatedAt,
	})
	return sheet, nil
}

// Get returns NotFound for a missing sheet regardless of tenant, Forbidden when
// the sheet exists but the principal may not read it.
func (s *SheetService) Get(ctx context.Context, principal domain.Principal, sheetID string) (domain.Sheet, error) {
	sheet, err := s.repos.Sheets.Get(ctx, strings.TrimSpace(sheetID))
	if err != nil {
		return domain.Sheet{}, err
	}
	if err := authorize(ctx, s.deps.Policy, principal, domain.ActionRead, domain.SheetResource(sheet)); err != nil {
		return domain.Sheet{}, err
	}
	return sheet, nil
}

func (s *SheetService) List(ctx context.Context, principal domain.Principal, in ListSheetsInput) ([]domain.Sheet, error) {
	if err := authorize(ctx, s.deps.Policy, principal, domain.ActionRead, domain.Resource{TenantID: principal.TenantID}); err != nil {
		return nil, err
	}
	filter := domain.ListSheetsFilter{
		TenantID:         principal.TenantID,
		PlatformID:       strings.TrimSpace(in.PlatformID),
		OperatorID:       strings.TrimSpace(in.OperatorID),
		IncludeCancelled: s.deps.ListIncludeCancelled,
		Limit:            in.Limit,
	}
	if in.IncludeCancelled != nil {
		filter.IncludeCancelled = *in.IncludeCancelled
	}
	if strings.TrimSpace(in.State) != "" {
		state, ok := domain.ParseSheetState(in.State)
		if !ok {
			return nil, fmt.Errorf("%w: unknown state %q", domain.ErrInvalidArgument, in.State)
		}
		filter.State = state
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return s.repos.Sheets.List(ctx, filter)
}

// Transition moves an OPEN sheet to FINALIZED or CANCELLED under the sheet
// lock. Finalizing re-checks the checklist against the attachments visible
// inside the same lock.
func (s *SheetService) Transition(ctx context.Context, principal domain.Principal, sheetID string, target domain.SheetState) (domain.Sheet, error) {
	if parsed, ok := domain.ParseSheetState(string(target)); ok {
		target = parsed
	}
	var (
		before  domain.Sheet
		updated domain.Sheet
		touched bool
	)
	err := s.repos.Sheets.WithSheetLocked(ctx, strings.TrimSpace(sheetID), func(ctx context.Context, locked LockedSheet) error {
		sheet := locked.Sheet()
		if err := authorize(ctx, s.deps.Policy, principal, domain.ActionMutate, domain.SheetResource(sheet)); err != nil {
			return err
		}
		before = sheet
		touched = true
		if err := sheet.CheckTransition(target); err != nil {
			return err
		}
		if target == domain.SheetFinalized {
			attachments, err := locked.Attachments(ctx)
			if err != nil {
				return err
			}
			missing, err := s.checklist.MissingItems(sheet, attachments)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				return &domain.IncompleteChecklistError{SheetID: sheet.ID, Missing: missing}
			}
		}
		updated = sheet.Close(target, principal.OperatorID, s.deps.Clock())
		return locked.Save(ctx, updated)
	})
	if err != nil {
		if touched {
			if code := lifecycleErrorCode(err); code != "" {
				s.deps.Audit.EmitSheetTransitioned(ctx, principal, before, before.State, target, domain.AuditResultFailure, code)
			}
		}
		return domain.Sheet{}, err
	}

	s.deps.Audit.EmitSheetTransitioned(ctx, principal, updated, before.State, target, domain.AuditResultSuccess, "")
	event := domain.SheetEvent{
		Type:       domain.SheetEventFinalized,
		TenantID:   updated.TenantID,
		SheetID:    updated.ID,
		OperatorID: principal.OperatorID,
		PlatformID: updated.PlatformID,
		State:      updated.State,
	}
	if updated.FinalizedAt != nil {
		event.OccurredAt = *updated.FinalizedAt
	}
	if updated.State == domain.SheetCancelled {
		event.Type = domain.SheetEventCancelled
		event.OccurredAt = *updated.CancelledAt
	}
	s.deps.Events.Publish(event)
	return updated, nil
}

// AdminDelete removes a sheet and its attachments. It requires administer
// rights over the sheet's tenant.
func (s *SheetService) AdminDelete(ctx context.Context, principal domain.Principal, sheetID string) error {
	sheet, err := s.repos.Sheets.Get(ctx, strings.TrimSpace(sheetID))
	if err != nil {
		return err
	}
	if err := authorize(ctx, s.deps.Policy, principal, domain.ActionAdminister, domain.Resource{TenantID: sheet.TenantID}); err != nil {
		return err
	}
	removed, err := s.repos.Sheets.Delete(ctx, sheet.ID)
	if err != nil {
		return err
	}
	s.deps.Audit.EmitSheetAdminDeleted(ctx, principal, sheet, removed)
	s.deps.Events.Publish(domain.SheetEvent{
		Type:       domain.SheetEventDeleted,
		TenantID:   sheet.TenantID,
		SheetID:    sheet.ID,
		OperatorID: sheet.OperatorID,
		PlatformID: sheet.PlatformID,
		State:      sheet.State,
		OccurredAt: s.deps.Clock().UTC(),
	})
	return nil
}

func lifecycleErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrIncompleteChecklist):
		return "INCOMPLETE_CHECKLIST"
	case errors.Is(err, domain.ErrTerminalState):
		return "TERMINAL_STATE"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "INVALID_TRANSITION"
	}
	return ""
}
