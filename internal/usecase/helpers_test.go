package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/auth/password"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/auth/rbac"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/auth/token"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/catalog"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/memstore"
	"github.com/rmaselli/smartFleet-app-sub002/internal/usecase"
)

const testCatalog = `
platforms:
  - id: P
    name: Test platform
    items:
      - code: A
        description: Item A
        required: true
        requires_photo: true
      - code: B
        description: Item B
        required: true
        requires_photo: false
      - code: C
        description: Optional item
        required: false
`

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SheetEvent
}

func (p *recordingPublisher) Publish(event domain.SheetEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []domain.SheetEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.SheetEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	deps     usecase.Deps
	sheets   *usecase.SheetService
	ledger   *usecase.AttachmentLedger
	identity *usecase.IdentityService
	admin    *usecase.AdminService
	events   *recordingPublisher
	clock    *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	snap, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	codec, err := token.NewCodec("test-secret", "hojas-test")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	clock := &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
	events := &recordingPublisher{}
	deps := usecase.Deps{
		Repos:    memstore.New().Repositories(),
		Catalog:  catalog.NewStore(snap),
		Policy:   rbac.NewAuthorizer(),
		Hasher:   password.NewHasher(bcrypt.MinCost),
		Tokens:   codec,
		Events:   events,
		Clock:    clock.Now,
		TokenTTL: time.Hour,
	}
	return &fixture{
		deps:     deps,
		sheets:   usecase.NewSheetService(deps),
		ledger:   usecase.NewAttachmentLedger(deps),
		identity: usecase.NewIdentityService(deps),
		admin:    usecase.NewAdminService(deps),
		events:   events,
		clock:    clock,
	}
}

var adminKey = domain.Principal{OperatorID: domain.AdminKeySubject, AdminKey: true}

func (f *fixture) operator(t *testing.T, tenantID, login, secret string, role domain.Role) domain.Principal {
	t.Helper()
	op, err := f.admin.CreateOperator(context.Background(), adminKey, usecase.CreateOperatorInput{
		TenantID:    tenantID,
		DisplayName: login,
		Login:       login,
		Secret:      secret,
		Role:        role,
	})
	if err != nil {
		t.Fatalf("create operator %s: %v", login, err)
	}
	return domain.Principal{OperatorID: op.ID, TenantID: op.TenantID, Role: op.Role}
}

func (f *fixture) openSheet(t *testing.T, p domain.Principal) domain.Sheet {
	t.Helper()
	sheet, err := f.sheets.Create(context.Background(), p, usecase.CreateSheetInput{PlatformID: "P", VehicleRef: "ABC-123"})
	if err != nil {
		t.Fatalf("create sheet: %v", err)
	}
	return sheet
}

func (f *fixture) itemPhoto(t *testing.T, p domain.Principal, sheetID, code, blobRef string) domain.Attachment {
	t.Helper()
	a, err := f.ledger.AddItemPhoto(context.Background(), p, sheetID, usecase.ItemPhotoInput{
		ItemCode:         code,
		CheckDescription: "checked " + code,
		Outcome:          domain.OutcomePass,
		BlobRef:          blobRef,
	})
	if err != nil {
		t.Fatalf("add item photo %s: %v", code, err)
	}
	return a
}
