// Package memstore is the process-local store used when no Postgres DSN is
// configured and by tests. Each sheet has its own mutex so transitions and
// attachment writes on one sheet are serialized without blocking others.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
	"github.com/rmaselli/smartFleet-app-sub002/internal/usecase"
)

type Store struct {
	mu          sync.RWMutex
	operators   map[string]domain.Operator
	sheets      map[string]domain.Sheet
	attachments map[string][]domain.Attachment
	audit       map[string][]domain.AuditEvent

	locksMu    sync.Mutex
	sheetLocks map[string]*sync.Mutex
	auditMu    sync.Mutex
}

func New() *Store {
	return &Store{
		operators:   make(map[string]domain.Operator),
		sheets:      make(map[string]domain.Sheet),
		attachments: make(map[string][]domain.Attachment),
		audit:       make(map[string][]domain.AuditEvent),
		sheetLocks:  make(map[string]*sync.Mutex),
	}
}

func (s *Store) Repositories() usecase.Repositories {
	return usecase.Repositories{
		Operators:   &OperatorRepository{s: s},
		Sheets:      &SheetRepository{s: s},
		Attachments: &AttachmentRepository{s: s},
		Audit:       &AuditEventRepository{s: s},
	}
}

func (s *Store) sheetLock(sheetID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.sheetLocks[sheetID]
	if !ok {
		lock = &sync.Mutex{}
		s.sheetLocks[sheetID] = lock
	}
	return lock
}

// dropSheetLock forgets the mutex of a sheet that no longer exists. Sheet IDs
// are never reused, so a caller still holding the old mutex only sees
// NotFound.
func (s *Store) dropSheetLock(sheetID string) {
	s.locksMu.Lock()
	delete(s.sheetLocks, sheetID)
	s.locksMu.Unlock()
}

type OperatorRepository struct {
	s *Store
}

func (r *OperatorRepository) Create(_ context.Context, op domain.Operator) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.operators[op.ID]; exists {
		return fmt.Errorf("%w: operator id %s", domain.ErrConflict, op.ID)
	}
	for _, existing := range r.s.operators {
		if existing.TenantID == op.TenantID && strings.EqualFold(existing.Login, op.Login) {
			return fmt.Errorf("%w: login already registered", domain.ErrConflict)
		}
	}
	r.s.operators[op.ID] = op
	return nil
}

func (r *OperatorRepository) GetByID(_ context.Context, operatorID string) (domain.Operator, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	op, ok := r.s.operators[operatorID]
	if !ok {
		return domain.Operator{}, domain.ErrNotFound
	}
	return op, nil
}

func (r *OperatorRepository) FindByLogin(_ context.Context, tenantID, login string) ([]domain.Operator, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Operator
	for _, op := range r.s.operators {
		if tenantID != "" && op.TenantID != tenantID {
			continue
		}
		if strings.EqualFold(op.Login, login) {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *OperatorRepository) UpdateSecret(_ context.Context, operatorID, secretHash string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	op, ok := r.s.operators[operatorID]
	if !ok {
		return domain.ErrNotFound
	}
	op.SecretHash = secretHash
	op.UpdatedAt = at.UTC()
	r.s.operators[operatorID] = op
	return nil
}

func (r *OperatorRepository) UpdateStatus(_ context.Context, operatorID string, status domain.OperatorStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	op, ok := r.s.operators[operatorID]
	if !ok {
		return domain.ErrNotFound
	}
	op.Status = status
	op.UpdatedAt = at.UTC()
	r.s.operators[operatorID] = op
	return nil
}

type SheetRepository struct {
	s *Store
}

func (r *SheetRepository) Create(_ context.Context, sheet domain.Sheet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.sheets[sheet.ID]; exists {
		return fmt.Errorf("%w: sheet id %s", domain.ErrConflict, sheet.ID)
	}
	r.s.sheets[sheet.ID] = cloneSheet(sheet)
	return nil
}

func (r *SheetRepository) Get(_ context.Context, sheetID string) (domain.Sheet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sheet, ok := r.s.sheets[sheetID]
	if !ok {
		return domain.Sheet{}, domain.ErrNotFound
	}
	return cloneSheet(sheet), nil
}

func (r *SheetRepository) List(_ context.Context, filter domain.ListSheetsFilter) ([]domain.Sheet, error) {
	r.s.mu.RLock()
	out := make([]domain.Sheet, 0)
	for _, sheet := range r.s.sheets {
		if !matchesFilter(sheet, filter) {
			continue
		}
		out = append(out, cloneSheet(sheet))
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchesFilter(sheet domain.Sheet, filter domain.ListSheetsFilter) bool {
	if sheet.TenantID != filter.TenantID {
		return false
	}
	if filter.State != "" {
		if sheet.State != filter.State {
			return false
		}
	} else if sheet.State == domain.SheetCancelled && !filter.IncludeCancelled {
		return false
	}
	if filter.PlatformID != "" && sheet.PlatformID != filter.PlatformID {
		return false
	}
	if filter.OperatorID != "" && sheet.OperatorID != filter.OperatorID {
		return false
	}
	return true
}

func (r *SheetRepository) Delete(_ context.Context, sheetID string) (int, error) {
	lock := r.s.sheetLock(sheetID)
	lock.Lock()
	defer lock.Unlock()

	defer r.s.dropSheetLock(sheetID)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sheets[sheetID]; !ok {
		return 0, domain.ErrNotFound
	}
	removed := len(r.s.attachments[sheetID])
	delete(r.s.sheets, sheetID)
	delete(r.s.attachments, sheetID)
	return removed, nil
}

func (r *SheetRepository) WithSheetLocked(ctx context.Context, sheetID string, fn func(ctx context.Context, locked usecase.LockedSheet) error) error {
	lock := r.s.sheetLock(sheetID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	r.s.mu.RLock()
	sheet, ok := r.s.sheets[sheetID]
	r.s.mu.RUnlock()
	if !ok {
		r.s.dropSheetLock(sheetID)
		return domain.ErrNotFound
	}

	tx := &lockedSheet{s: r.s, sheet: cloneSheet(sheet)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// lockedSheet stages writes until the callback succeeds.
type lockedSheet struct {
	s       *Store
	sheet   domain.Sheet
	saved   *domain.Sheet
	pending []domain.Attachment
}

func (l *lockedSheet) Sheet() domain.Sheet {
	if l.saved != nil {
		return cloneSheet(*l.saved)
	}
	return cloneSheet(l.sheet)
}

func (l *lockedSheet) Attachments(_ context.Context) ([]domain.Attachment, error) {
	l.s.mu.RLock()
	committed := l.s.attachments[l.sheet.ID]
	out := make([]domain.Attachment, 0, len(committed)+len(l.pending))
	out = append(out, committed...)
	l.s.mu.RUnlock()
	out = append(out, l.pending...)
	domain.SortAttachments(out)
	return out, nil
}

func (l *lockedSheet) AddAttachment(_ context.Context, attachment domain.Attachment) error {
	if attachment.SheetID != l.sheet.ID {
		return fmt.Errorf("%w: attachment belongs to another sheet", domain.ErrInvalidArgument)
	}
	l.pending = append(l.pending, attachment)
	return nil
}

func (l *lockedSheet) Save(_ context.Context, sheet domain.Sheet) error {
	if sheet.ID != l.sheet.ID {
		return fmt.Errorf("%w: save of another sheet", domain.ErrInvalidArgument)
	}
	cloned := cloneSheet(sheet)
	l.saved = &cloned
	return nil
}

func (l *lockedSheet) commit() {
	if l.saved == nil && len(l.pending) == 0 {
		return
	}
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if l.saved != nil {
		l.s.sheets[l.sheet.ID] = *l.saved
	}
	if len(l.pending) > 0 {
		l.s.attachments[l.sheet.ID] = append(l.s.attachments[l.sheet.ID], l.pending...)
	}
}

type AttachmentRepository struct {
	s *Store
}

func (r *AttachmentRepository) ListBySheet(_ context.Context, sheetID string) ([]domain.Attachment, error) {
	r.s.mu.RLock()
	list := r.s.attachments[sheetID]
	out := make([]domain.Attachment, len(list))
	copy(out, list)
	r.s.mu.RUnlock()
	domain.SortAttachments(out)
	return out, nil
}

type AuditEventRepository struct {
	s *Store
}

func (r *AuditEventRepository) Append(_ context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if event.TenantID == "" {
		event.TenantID = domain.AuditSystemTenantID
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	r.s.auditMu.Lock()
	defer r.s.auditMu.Unlock()
	chain := r.s.audit[event.TenantID]
	prevHash := domain.ZeroAuditHash
	if len(chain) > 0 {
		prevHash = chain[len(chain)-1].EventHash
	}
	sealed, _, err := domain.SealAuditEvent(event, int64(len(chain))+1, prevHash)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	r.s.audit[event.TenantID] = append(chain, sealed)
	return sealed, nil
}

func (r *AuditEventRepository) ListByTenant(_ context.Context, tenantID string) ([]domain.AuditEvent, error) {
	if tenantID == "" {
		tenantID = domain.AuditSystemTenantID
	}
	r.s.auditMu.Lock()
	defer r.s.auditMu.Unlock()
	chain := r.s.audit[tenantID]
	out := make([]domain.AuditEvent, len(chain))
	copy(out, chain)
	return out, nil
}

func cloneSheet(sheet domain.Sheet) domain.Sheet {
	if sheet.FinalizedAt != nil {
		at := *sheet.FinalizedAt
		sheet.FinalizedAt = &at
	}
	if sheet.CancelledAt != nil {
		at := *sheet.CancelledAt
		sheet.CancelledAt = &at
	}
	return sheet
}
