package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
	"github.com/rmaselli/smartFleet-app-sub002/internal/usecase"
)

func TestFinalizeRequiresCompleteChecklist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o1 := f.operator(t, "T1", "o1", "pw-1", domain.RoleOperator)
	sheet := f.openSheet(t, o1)

	f.itemPhoto(t, o1, sheet.ID, "A", "blobs/a.jpg")
	_, err := f.sheets.Transition(ctx, o1, sheet.ID, domain.SheetFinalized)
	incomplete, ok := domain.IsIncompleteChecklist(err)
	if !ok {
		t.Fatalf("expected incomplete checklist, got %v", err)
	}
	if len(incomplete.Missing) != 1 || incomplete.Missing[0].Code != "B" {
		t.Fatalf("expected missing {B}, got %+v", incomplete.Missing)
	}

	f.itemPhoto(t, o1, sheet.ID, "B", "")
	finalized, err := f.sheets.Transition(ctx, o1, sheet.ID, domain.SheetFinalized)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finalized.State != domain.SheetFinalized || finalized.FinalizedAt == nil || finalized.ClosedBy != o1.OperatorID {
		t.Fatalf("unexpected finalized sheet %+v", finalized)
	}
	stored, err := f.sheets.Get(ctx, o1, sheet.ID)
	if err != nil || stored.State != domain.SheetFinalized {
		t.Fatalf("expected persisted FINALIZED, got %+v %v", stored, err)
	}
}

func TestRequiresPhotoItemNeedsBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o1 := f.operator(t, "T1", "o1", "pw-1", domain.RoleOperator)
	sheet := f.openSheet(t, o1)

	f.itemPhoto(t, o1, sheet.ID, "A", "")
	f.itemPhoto(t, o1, sheet.ID, "B", "")
	status, err := f.sheets.ChecklistStatus(ctx, o1, sheet.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Complete || len(status.Missing) != 1 || status.Missing[0].Code != "A" {
		t.Fatalf("expected A missing for lack of photo, got %+v", status)
	}
	if len(status.Required) != 2 {
		t.Fatalf("expected two required items, got %d", len(status.Required))
	}
	f.itemPhoto(t, o1, sheet.ID, "A", "blobs/a.jpg")
	if _, err := f.sheets.Transition(ctx, o1, sheet.ID, domain.SheetFinalized); err != nil {
		t.Fatalf("finalize: %v", err)
	}
}

func TestTerminalSheetsRejectEveryMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o1 := f.operator(t, "T1", "o1", "pw-1", domain.RoleOperator)

	cancelled := f.openSheet(t, o1)
	if _, err := f.sheets.Transition(ctx, o1, cancelled.ID, domain.SheetCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	finalized := f.openSheet(t, o1)
	f.itemPhoto(t, o1, finalized.ID, "A", "a.jpg")
	f.itemPhoto(t, o1, finalized.ID, "B", "")
	if _, err := f.sheets.Transition(ctx, o1, finalized.ID, domain.SheetFinalized); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	for _, id := range []string{cancelled.ID, finalized.ID} {
		for _, target := range []domain.SheetState{domain.SheetOpen, domain.SheetFinalized, domain.SheetCancelled, "BOGUS"} {
			if _, err := f.sheets.Transition(ctx, o1, id, target); !errors.Is(err, domain.ErrTerminalState) {
				t.Fatalf("transition %s to %s: expected terminal state, got %v", id, target, err)
			}
		}
		if _, err := f.ledger.AddVehiclePhoto(ctx, o1, id, usecase.VehiclePhotoInput{PhotoType: "front", BlobRef: "f.jpg"}); !errors.Is(err, domain.ErrTerminalState) {
			t.Fatalf("vehicle photo on %s: expected terminal state, got %v", id, err)
		}
		if _, err := f.ledger.AddItemPhoto(ctx, o1, id, usecase.ItemPhotoInput{ItemCode: "A", BlobRef: "a.jpg"}); !errors.Is(err, domain.ErrTerminalState) {
			t.Fatalf("item photo on %s: expected terminal state, got %v", id, err)
		}
		for _, in := range []usecase.VehiclePhotoInput{{}, {PhotoType: "front"}, {BlobRef: "f.jpg"}, {PhotoType: "roof", BlobRef: "f.jpg"}} {
			if _, err := f.ledger.AddVehiclePhoto(ctx, o1, id, in); !errors.Is(err, domain.ErrTerminalState) {
				t.Fatalf("vehicle photo %+v on %s: expected terminal state, got %v", in, id, err)
			}
		}
		for _, in := range []usecase.ItemPhotoInput{{}, {ItemCode: "A", Outcome: "maybe"}, {ItemCode: "Z"}, {ItemCode: "A", Photo: &usecase.PhotoUpload{}}} {
			if _, err := f.ledger.AddItemPhoto(ctx, o1, id, in); !errors.Is(err, domain.ErrTerminalState) {
				t.Fatalf("item photo %+v on %s: expected terminal state, got %v", in, id, err)
			}
		}
	}

	if _, err := f.ledger.AddVehiclePhoto(ctx, o1, "missing", usecase.VehiclePhotoInput{PhotoType: "front"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("vehicle photo on missing sheet: expected not found, got %v", err)
	}
	if _, err := f.ledger.AddItemPhoto(ctx, o1, "missing", usecase.ItemPhotoInput{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("item photo on missing sheet: expected not found, got %v", err)
	}
}

func TestInvalidTransitionFromOpen(t *testing.T) {
	f := newFixture(t)
	o1 := f.operator(t, "T1", "o1", "pw-1", domain.RoleOperator)
	sheet := f.openSheet(t, o1)
	for _, target := range []domain.SheetState{domain.SheetOpen, "ARCHIVED"} {
		if _, err := f.sheets.Transition(context.Background(), o1, sheet.ID, target); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("target %s: expected invalid transition, got %v", target, err)
		}
	}
}

func TestConcurrentFinalizeHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o1 := f.operator(t, "T1", "o1", "pw-1", domain.RoleOperator)
	sheet := f.openSheet(t, o1)
	f.itemPhoto(t, o1, sheet.ID, "A", "a.jpg")
	f.itemPhoto(t, o1, sheet.ID, "B", "")

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sheets.Transition(ctx, o1, sheet.ID, domain.SheetFinalized)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrTerminalState), errors.Is(err, domain.ErrInvalidTransition):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful finalize, got %d", wins)
	}
}

func TestFinalizeRacingItemPhotoIsSerialized(t *testing.T) {
	ctx := context.Background()
	// B completes the checklist; C is optional and lands after it is complete.
	for _, racing := range []string{"B", "C"} {
		for i := 0; i < 20; i++ {
			f := newFixture(t)
			o1 := f.operator(t, "T1", "o1", "pw-1", domain.RoleOperator)
			sheet := f.openSheet(t, o1)
			f.itemPhoto(t, o1, sheet.ID, "A", "a.jpg")
			if racing == "C" {
				f.itemPhoto(t, o1, sheet.ID, "B", "")
			}

			var wg sync.WaitGroup
			var finalizeErr, uploadErr error
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, finalizeErr = f.sheets.Transition(ctx, o1, sheet.ID, domain.SheetFinalized)
			}()
			go func() {
				defer wg.Done()
				_, uploadErr = f.ledger.AddItemPhoto(ctx, o1, sheet.ID, usecase.ItemPhotoInput{ItemCode: racing, Outcome: domain.OutcomePass})
			}()
			wg.Wait()

			got, err := f.sheets.Get(ctx, o1, sheet.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			_, items, err := f.ledger.ListForSheet(ctx, o1, sheet.ID)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			landed := false
			for _, it := range items {
				if it.ItemCode == racing {
					landed = true
				}
			}
			switch {
			case errors.Is(finalizeErr, domain.ErrIncompleteChecklist) && uploadErr == nil:
				if racing != "B" || got.State != domain.SheetOpen || !landed {
					t.Fatalf("%s: rejected finalize then upload, got state %s landed=%v", racing, got.State, landed)
				}
			case finalizeErr == nil && errors.Is(uploadErr, domain.ErrTerminalState):
				if racing != "C" || got.State != domain.SheetFinalized || landed {
					t.Fatalf("%s: finalize first then rejected upload, got state %s landed=%v", racing, got.State, landed)
				}
			case finalizeErr == nil && uploadErr == nil:
				if got.State != domain.SheetFinalized || !landed {
					t.Fatalf("%s: upload then finalize, got state %s landed=%v", racing, got.State, landed)
				}
			default:
				t.Fatalf("%s: mixed outcome finalize=%v upload=%v", racing, finalizeErr, uploadErr)
			}
		}
	}
}

func TestCrossTenantAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o1 := f.operator(t, "T1", "o1", "pw-1", domain.RoleOperator)
	o2 := f.operator(t, "T2", "o2", "pw-2", domain.RoleAdmin)
	sheet := f.openSheet(t, o1)

	if _, err := f.sheets.Get(ctx, o2, sheet.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden cross-tenant get, got %v", err)
	}
	if _, err := f.sheets.Get(ctx, o2, "does-not-exist"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for missing sheet, got %v", err)
	}
	if _, err := f.sheets.Get(ctx, o1, "does-not-exist"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found within tenant, got %v", err)
	}
	if _, err := f.sheets.Transition(ctx, o2, sheet.ID, domain.SheetCancelled); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden cross-tenant transition, got %v", err)
	}
	if _, _, err := f.ledger.ListForSheet(ctx, o2, sheet.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden cross-tenant listing, got %v", err)
	}
	if _, err := f.ledger.AddVehiclePhoto(ctx, o2, sheet.ID, usecase.VehiclePhotoInput{PhotoType: "front", BlobRef: "x"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden cross-tenant upload, got %v", err)
	}
	list, err := f.sheets.List(ctx, o2, usecase.ListSheetsInput{})
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty listing for other tenant, got %d %v", len(list), err)
	}
}

func TestOwnershipAndElevatedRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.operator(t, "T1", "owner", "pw", domain.RoleOperator)
	peer := f.operator(t, "T1", "peer", "pw", domain.RoleOperator)
	sup := f.operator(t, "T1", "sup", "pw", domain.RoleSupervisor)
	sheet := f.openSheet(t, owner)

	if _, err := f.sheets.Get(ctx, peer, sheet.ID); err != nil {
		t.Fatalf("expected same-tenant read, got %v", err)
	}
	if _, err := f.ledger.AddVehiclePhoto(ctx, peer, sheet.ID, usecase.VehiclePhotoInput{PhotoType: "front", BlobRef: "x"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected non-owner mutation to be forbidden, got %v", err)
	}
	if _, err := f.sheets.Transition(ctx, sup, sheet.ID, domain.SheetCancelled); err != nil {
		t.Fatalf("expected supervisor to cancel, got %v", err)
	}
}

func TestCreateUnknownPlatform(t *testing.T) {
	f := newFixture(t)
	o1 := f.operator(t, "T1", "o1", "pw", domain.RoleOperator)
	if _, err := f.sheets.Create(context.Background(), o1, usecase.CreateSheetInput{PlatformID: "boat"}); !errors.Is(err, domain.ErrUnknownPlatform) {
		t.Fatalf("expected unknown platform, got %v", err)
	}
	if _, err := f.sheets.Create(context.Background(), adminKey, usecase.CreateSheetInput{PlatformID: "P"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected admin key to be unable to open sheets, got %v", err)
	}
}

func TestListHonoursCancelledVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o1 := f.operator(t, "T1", "o1", "pw", domain.RoleOperator)
	open := f.openSheet(t, o1)
	gone := f.openSheet(t, o1)
	if _, err := f.sheets.Transition(ctx, o1, gone.ID, domain.SheetCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	list, err := f.sheets.List(ctx, o1, usecase.ListSheetsInput{})
	if err != nil || len(list) != 1 || list[0].ID != open.ID {
		t.Fatalf("expected cancelled hidden by default, got %v %v", list, err)
	}
	include := true
	list, _ = f.sheets.List(ctx, o1, usecase.ListSheetsInput{IncludeCancelled: &include})
	if len(list) != 2 || list[0].ID != gone.ID {
		t.Fatalf("expected newest first with cancelled included, got %+v", list)
	}
	list, _ = f.sheets.List(ctx, o1, usecase.ListSheetsInput{State: "cancelled"})
	if len(list) != 1 || list[0].ID != gone.ID {
		t.Fatalf("expected explicit state filter to return cancelled sheet, got %+v", list)
	}
	if _, err := f.sheets.List(ctx, o1, usecase.ListSheetsInput{State: "lost"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for unknown state, got %v", err)
	}

	deps := f.deps
	deps.ListIncludeCancelled = true
	list, _ = usecase.NewSheetService(deps).List(ctx, o1, usecase.ListSheetsInput{})
	if len(list) != 2 {
		t.Fatalf("expected configured default to include cancelled, got %d", len(list))
	}
}

func TestAdminDeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o1 := f.operator(t, "T1", "o1", "pw", domain.RoleOperator)
	tenantAdmin := f.operator(t, "T1", "boss", "pw", domain.RoleAdmin)
	sheet := f.openSheet(t, o1)
	f.itemPhoto(t, o1, sheet.ID, "A", "a.jpg")

	if err := f.admin.DeleteSheet(ctx, o1, sheet.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected operator delete to be forbidden, got %v", err)
	}
	if err := f.admin.DeleteSheet(ctx, tenantAdmin, sheet.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := f.sheets.Get(ctx, o1, sheet.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected deleted sheet to be gone, got %v", err)
	}
	remaining, _ := f.deps.Repos.Attachments.ListBySheet(ctx, sheet.ID)
	if len(remaining) != 0 {
		t.Fatalf("expected attachments removed, got %d", len(remaining))
	}
	got := f.events.types()
	if got[len(got)-1] != domain.SheetEventDeleted {
		t.Fatalf("expected deleted event last, got %v", got)
	}
}

func TestTransitionsAreAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o1 := f.operator(t, "T1", "o1", "pw", domain.RoleOperator)
	sheet := f.openSheet(t, o1)
	if _, err := f.sheets.Transition(ctx, o1, sheet.ID, domain.SheetFinalized); err == nil {
		t.Fatalf("expected incomplete checklist")
	}
	if _, err := f.sheets.Transition(ctx, o1, sheet.ID, domain.SheetCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	events, err := f.deps.Repos.Audit.ListByTenant(ctx, "T1")
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	var failures, successes int
	for _, e := range events {
		if e.EventType != domain.AuditEventSheetTransitioned {
			continue
		}
		if e.Result == domain.AuditResultFailure && e.ErrorCode == "INCOMPLETE_CHECKLIST" {
			failures++
		}
		if e.Result == domain.AuditResultSuccess {
			successes++
		}
	}
	if failures != 1 || successes != 1 {
		t.Fatalf("expected one failed and one successful transition audit, got %d/%d", failures, successes)
	}
	if err := usecase.VerifyTenantAuditChain(ctx, f.deps.Repos.Audit, "T1"); err != nil {
		t.Fatalf("verify chain: %v", err)
	}
}
