package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

type CreateOperatorInput struct {
	TenantID    string
	DisplayName string
	Login       string
	Secret      string
	Role        domain.Role
}

// AdminService replaces direct data fixes with audited operations guarded by
// the administer permission.
type AdminService struct {
	deps   Deps
	repos  Repositories
	sheets *SheetService
}

func NewAdminService(deps Deps) *AdminService {
	deps = deps.withDefaults()
	return &AdminService{
		deps:   deps,
		repos:  deps.Repos,
		sheets: NewSheetService(deps),
	}
}

func (s *AdminService) CreateOperator(ctx context.Context, principal domain.Principal, in CreateOperatorInput) (domain.Operator, error) {
	tenantID := strings.TrimSpace(in.TenantID)
	if tenantID == "" && !principal.AdminKey {
		tenantID = principal.TenantID
	}
	login := strings.TrimSpace(in.Login)
	if tenantID == "" || login == "" || in.Secret == "" {
		return domain.Operator{}, fmt.Errorf("%w: tenant_id, login and secret are required", domain.ErrInvalidArgument)
	}
	role := in.Role
	if role == "" {
		role = domain.RoleOperator
	}
	if !role.Valid() {
		return domain.Operator{}, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidArgument, in.Role)
	}
	if err := authorize(ctx, s.deps.Policy, principal, domain.ActionAdminister, domain.Resource{TenantID: tenantID}); err != nil {
		return domain.Operator{}, err
	}
	digest, err := s.deps.Hasher.Hash(in.Secret)
	if err != nil {
		return domain.Operator{}, err
	}
	now := s.deps.Clock().UTC()
	op := domain.Operator{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Login:       login,
		SecretHash:  digest,
		Role:        role,
		Status:      domain.OperatorActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repos.Operators.Create(ctx, op); err != nil {
		return domain.Operator{}, err
	}
	s.deps.Audit.EmitOperatorEvent(ctx, principal, domain.AuditEventOperatorCreated, op, map[string]any{
		"role":       string(op.Role),
		"login_hash": hashString(op.Login),
	})
	return op, nil
}

func (s *AdminService) ResetCredential(ctx context.Context, principal domain.Principal, operatorID, newSecret string) error {
	if newSecret == "" {
		return fmt.Errorf("%w: secret is required", domain.ErrInvalidArgument)
	}
	op, err := s.authorizedOperator(ctx, principal, operatorID)
	if err != nil {
		return err
	}
	digest, err := s.deps.Hasher.Hash(newSecret)
	if err != nil {
		return err
	}
	if err := s.repos.Operators.UpdateSecret(ctx, op.ID, digest, s.deps.Clock().UTC()); err != nil {
		return err
	}
	s.deps.Audit.EmitOperatorEvent(ctx, principal, domain.AuditEventCredentialReset, op, nil)
	return nil
}

func (s *AdminService) SetOperatorStatus(ctx context.Context, principal domain.Principal, operatorID string, status domain.OperatorStatus) (domain.Operator, error) {
	status = domain.OperatorStatus(strings.ToUpper(strings.TrimSpace(string(status))))
	if !status.Valid() {
		return domain.Operator{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, status)
	}
	op, err := s.authorizedOperator(ctx, principal, operatorID)
	if err != nil {
		return domain.Operator{}, err
	}
	now := s.deps.Clock().UTC()
	if err := s.repos.Operators.UpdateStatus(ctx, op.ID, status, now); err != nil {
		return domain.Operator{}, err
	}
	previous := op.Status
	op.Status = status
	op.UpdatedAt = now
	s.deps.Audit.EmitOperatorEvent(ctx, principal, domain.AuditEventOperatorStatusSet, op, map[string]any{
		"from": string(previous),
		"to":   string(status),
	})
	return op, nil
}

func (s *AdminService) DeleteSheet(ctx context.Context, principal domain.Principal, sheetID string) error {
	return s.sheets.AdminDelete(ctx, principal, sheetID)
}

// ListAuditEvents returns a tenant's audit chain. Tenant admins are pinned to
// their own tenant.
func (s *AdminService) ListAuditEvents(ctx context.Context, principal domain.Principal, tenantID string) ([]domain.AuditEvent, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		tenantID = principal.TenantID
	}
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", domain.ErrInvalidArgument)
	}
	if err := authorize(ctx, s.deps.Policy, principal, domain.ActionAdminister, domain.Resource{TenantID: tenantID}); err != nil {
		return nil, err
	}
	return s.repos.Audit.ListByTenant(ctx, tenantID)
}

func (s *AdminService) authorizedOperator(ctx context.Context, principal domain.Principal, operatorID string) (domain.Operator, error) {
	op, err := s.repos.Operators.GetByID(ctx, strings.TrimSpace(operatorID))
	if err != nil {
		return domain.Operator{}, err
	}
	if err := authorize(ctx, s.deps.Policy, principal, domain.ActionAdminister, domain.Resource{TenantID: op.TenantID}); err != nil {
		return domain.Operator{}, err
	}
	return op, nil
}
