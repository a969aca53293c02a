//go:build integration
// +build integration

package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/auth/rbac"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/catalog"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/db/testdb"
	"github.com/rmaselli/smartFleet-app-sub002/internal/usecase"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dsn, cleanup := testdb.NewDatabase(t)
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		cleanup()
		t.Fatalf("open gorm: %v", err)
	}
	store := NewStoreFromDB(gdb, 5*time.Second, zap.NewNop())
	t.Cleanup(func() {
		_ = store.Close()
		cleanup()
	})
	return store
}

func seedSheet(t *testing.T, repo *SheetRepository, tenantID string, createdAt time.Time) domain.Sheet {
	t.Helper()
	sheet := domain.Sheet{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		OperatorID: uuid.NewString(),
		PlatformID: "moto",
		State:      domain.SheetOpen,
		CreatedAt:  createdAt,
		Version:    1,
	}
	if err := repo.Create(context.Background(), sheet); err != nil {
		t.Fatalf("create sheet: %v", err)
	}
	return sheet
}

func TestOperatorRepository_LoginUniquePerTenant(t *testing.T) {
	store := setupTestStore(t)
	repo := store.Repositories().Operators
	ctx := context.Background()
	now := time.Now().UTC()

	op := domain.Operator{
		ID:         uuid.NewString(),
		TenantID:   "t1",
		Login:      "Pilot",
		SecretHash: "hash",
		Role:       domain.RoleOperator,
		Status:     domain.OperatorActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.Create(ctx, op); err != nil {
		t.Fatalf("create operator: %v", err)
	}
	dup := op
	dup.ID = uuid.NewString()
	dup.Login = "pilot"
	if err := repo.Create(ctx, dup); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	other := dup
	other.TenantID = "t2"
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("same login in another tenant: %v", err)
	}

	found, err := repo.FindByLogin(ctx, "", "PILOT")
	if err != nil {
		t.Fatalf("find by login: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 candidates across tenants, got %d", len(found))
	}
	found, err = repo.FindByLogin(ctx, "t1", "pilot")
	if err != nil || len(found) != 1 || found[0].ID != op.ID {
		t.Fatalf("expected t1 operator, got %v err=%v", found, err)
	}

	if err := repo.UpdateStatus(ctx, op.ID, domain.OperatorInactive, now); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, err := repo.GetByID(ctx, op.ID)
	if err != nil {
		t.Fatalf("get operator: %v", err)
	}
	if got.Status != domain.OperatorInactive {
		t.Fatalf("expected inactive, got %s", got.Status)
	}
	if err := repo.UpdateSecret(ctx, uuid.NewString(), "x", now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := repo.GetByID(ctx, "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for malformed id, got %v", err)
	}
}

func TestSheetRepository_ListOrderingAndCancelledFilter(t *testing.T) {
	store := setupTestStore(t)
	repo := NewSheetRepository(store.DB, timeoutScope{timeout: time.Second})
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	first := seedSheet(t, repo, "t1", base)
	second := seedSheet(t, repo, "t1", base.Add(time.Minute))
	seedSheet(t, repo, "t2", base.Add(2*time.Minute))

	err := repo.WithSheetLocked(ctx, first.ID, func(ctx context.Context, locked usecase.LockedSheet) error {
		return locked.Save(ctx, locked.Sheet().Close(domain.SheetCancelled, "op", base.Add(time.Hour)))
	})
	if err != nil {
		t.Fatalf("cancel sheet: %v", err)
	}

	listed, err := repo.List(ctx, domain.ListSheetsFilter{TenantID: "t1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != second.ID {
		t.Fatalf("expected only the open sheet, got %+v", listed)
	}
	listed, err = repo.List(ctx, domain.ListSheetsFilter{TenantID: "t1", IncludeCancelled: true})
	if err != nil {
		t.Fatalf("list with cancelled: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != second.ID || listed[1].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", listed)
	}
	listed, err = repo.List(ctx, domain.ListSheetsFilter{TenantID: "t1", State: domain.SheetCancelled})
	if err != nil {
		t.Fatalf("list cancelled: %v", err)
	}
	if len(listed) != 1 || listed[0].CancelledAt == nil {
		t.Fatalf("expected cancelled sheet with timestamp, got %+v", listed)
	}
}

func TestSheetRepository_LockedFinalizeHasSingleWinner(t *testing.T) {
	store := setupTestStore(t)
	repo := NewSheetRepository(store.DB, timeoutScope{timeout: 5 * time.Second})
	sheet := seedSheet(t, repo, "t1", time.Now().UTC())

	const workers = 6
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.WithSheetLocked(context.Background(), sheet.ID, func(ctx context.Context, locked usecase.LockedSheet) error {
				current := locked.Sheet()
				if err := current.CheckTransition(domain.SheetFinalized); err != nil {
					return err
				}
				return locked.Save(ctx, current.Close(domain.SheetFinalized, "op", time.Now()))
			})
		}()
	}
	wg.Wait()
	close(results)

	wins, terminal := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrTerminalState):
			terminal++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || terminal != workers-1 {
		t.Fatalf("expected 1 win and %d terminal, got %d/%d", workers-1, wins, terminal)
	}
	got, err := repo.Get(context.Background(), sheet.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != domain.SheetFinalized || got.Version != 2 {
		t.Fatalf("expected finalized at version 2, got %s v%d", got.State, got.Version)
	}
}

const raceCatalog = `
platforms:
  - id: P
    name: Race platform
    items:
      - code: A
        description: Item A
        required: true
        requires_photo: true
      - code: B
        description: Item B
        required: true
`

func TestSheetRepository_FinalizeRacingLastItem(t *testing.T) {
	store := setupTestStore(t)
	snap, err := catalog.Parse([]byte(raceCatalog))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	deps := usecase.Deps{
		Repos:   store.Repositories(),
		Catalog: catalog.NewStore(snap),
		Policy:  rbac.NewAuthorizer(),
	}
	sheets := usecase.NewSheetService(deps)
	ledger := usecase.NewAttachmentLedger(deps)
	ctx := context.Background()
	op := domain.Principal{OperatorID: uuid.NewString(), TenantID: "t1", Role: domain.RoleOperator}

	for i := 0; i < 10; i++ {
		sheet, err := sheets.Create(ctx, op, usecase.CreateSheetInput{PlatformID: "P"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := ledger.AddItemPhoto(ctx, op, sheet.ID, usecase.ItemPhotoInput{ItemCode: "A", Outcome: domain.OutcomePass, BlobRef: "blob://a"}); err != nil {
			t.Fatalf("add A: %v", err)
		}

		var wg sync.WaitGroup
		var finalizeErr, uploadErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, finalizeErr = sheets.Transition(ctx, op, sheet.ID, domain.SheetFinalized)
		}()
		go func() {
			defer wg.Done()
			_, uploadErr = ledger.AddItemPhoto(ctx, op, sheet.ID, usecase.ItemPhotoInput{ItemCode: "B", Outcome: domain.OutcomePass})
		}()
		wg.Wait()

		got, err := sheets.Get(ctx, op, sheet.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		_, items, err := ledger.ListForSheet(ctx, op, sheet.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		switch {
		case errors.Is(finalizeErr, domain.ErrIncompleteChecklist) && uploadErr == nil:
			if got.State != domain.SheetOpen || len(items) != 2 {
				t.Fatalf("rejected finalize then upload: got %s with %d items", got.State, len(items))
			}
		case finalizeErr == nil && uploadErr == nil:
			if got.State != domain.SheetFinalized || len(items) != 2 {
				t.Fatalf("upload then finalize: got %s with %d items", got.State, len(items))
			}
		default:
			t.Fatalf("mixed outcome finalize=%v upload=%v", finalizeErr, uploadErr)
		}
	}
}

func TestSheetRepository_RollbackAndCascadeDelete(t *testing.T) {
	store := setupTestStore(t)
	repos := store.Repositories()
	sheets := NewSheetRepository(store.DB, timeoutScope{timeout: time.Second})
	ctx := context.Background()
	sheet := seedSheet(t, sheets, "t1", time.Now().UTC())

	boom := errors.New("boom")
	err := sheets.WithSheetLocked(ctx, sheet.ID, func(ctx context.Context, locked usecase.LockedSheet) error {
		if err := locked.AddAttachment(ctx, domain.Attachment{
			ID:         uuid.NewString(),
			TenantID:   "t1",
			SheetID:    sheet.ID,
			Kind:       domain.AttachmentVehicle,
			PhotoType:  "front",
			BlobRef:    "blob://a",
			UploadedAt: time.Now(),
			UploadedBy: "op",
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error to pass through, got %v", err)
	}
	listed, err := repos.Attachments.ListBySheet(ctx, sheet.ID)
	if err != nil {
		t.Fatalf("list attachments: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected rollback, found %d attachments", len(listed))
	}

	for i := 0; i < 2; i++ {
		err := sheets.WithSheetLocked(ctx, sheet.ID, func(ctx context.Context, locked usecase.LockedSheet) error {
			return locked.AddAttachment(ctx, domain.Attachment{
				ID:         uuid.NewString(),
				TenantID:   "t1",
				SheetID:    sheet.ID,
				Kind:       domain.AttachmentItem,
				ItemCode:   "front_light",
				Outcome:    domain.OutcomePass,
				UploadedAt: time.Now(),
				UploadedBy: "op",
			})
		})
		if err != nil {
			t.Fatalf("add attachment: %v", err)
		}
	}

	removed, err := sheets.Delete(ctx, sheet.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 attachments removed, got %d", removed)
	}
	if _, err := sheets.Get(ctx, sheet.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := sheets.Delete(ctx, sheet.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestAuditEventRepository_Append_HashChain(t *testing.T) {
	store := setupTestStore(t)
	repo := store.Repositories().Audit
	ctx := context.Background()
	tenantID := "t1"

	first, err := repo.Append(ctx, domain.AuditEvent{
		TenantID:   tenantID,
		ActorType:  domain.AuditActorOperator,
		ActorID:    "op-1",
		EventType:  domain.AuditEventSheetCreated,
		Payload:    map[string]any{"platform_id": "moto", "version": 1},
		TargetType: domain.AuditTargetSheet,
		TargetID:   "sheet-1",
		Result:     domain.AuditResultSuccess,
		CreatedAt:  time.Date(2026, 2, 1, 10, 0, 0, 123456789, time.UTC),
	})
	if err != nil {
		t.Fatalf("append first audit event: %v", err)
	}
	if first.Seq != 1 || first.PrevEventHash != domain.ZeroAuditHash {
		t.Fatalf("unexpected first link: seq=%d prev=%s", first.Seq, first.PrevEventHash)
	}

	second, err := repo.Append(ctx, domain.AuditEvent{
		TenantID:   tenantID,
		ActorType:  domain.AuditActorOperator,
		ActorID:    "op-1",
		EventType:  domain.AuditEventSheetTransitioned,
		Payload:    map[string]any{"from": "OPEN", "to": "FINALIZED"},
		TargetType: domain.AuditTargetSheet,
		TargetID:   "sheet-1",
		Result:     domain.AuditResultSuccess,
		CreatedAt:  time.Date(2026, 2, 1, 11, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("append second audit event: %v", err)
	}
	if second.Seq != 2 || second.PrevEventHash != first.EventHash {
		t.Fatalf("second event not linked: seq=%d prev=%s", second.Seq, second.PrevEventHash)
	}

	events, err := repo.ListByTenant(ctx, tenantID)
	if err != nil {
		t.Fatalf("list audit events: %v", err)
	}
	if err := domain.VerifyAuditChain(tenantID, events); err != nil {
		t.Fatalf("verify chain after reload: %v", err)
	}

	if err := store.DB.Exec("UPDATE audit_events SET result = 'failure' WHERE id = ?", first.ID).Error; err == nil {
		t.Fatal("expected append-only trigger to reject update")
	}
}
