package usecase

import (
	"context"
	"errors"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

func VerifyTenantAuditChain(ctx context.Context, repo AuditEventRepository, tenantID string) error {
	if repo == nil {
		return errors.New("audit repository required")
	}
	if tenantID == "" {
		tenantID = domain.AuditSystemTenantID
	}
	events, err := repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	return domain.VerifyAuditChain(tenantID, events)
}
