package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxRefLength     = 128
)

// Deps carries the collaborators shared by the sheet, attachment, identity
// and admin services.
type Deps struct {
	Repos    Repositories
	Catalog  domain.Catalog
	Policy   domain.AccessPolicy
	Hasher   domain.SecretHasher
	Tokens   domain.TokenCodec
	Events   domain.EventPublisher
	Blobs    domain.BlobStore
	Audit    *AuditEmitter
	Clock    Clock
	Logger   *zap.Logger
	TokenTTL time.Duration

	// ListIncludeCancelled is the default visibility of cancelled sheets
	// when a listing does not say otherwise.
	ListIncludeCancelled bool
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Audit == nil && d.Repos.Audit != nil {
		d.Audit = NewAuditEmitter(d.Repos.Audit, d.Clock, d.Logger)
	}
	if d.Events == nil {
		d.Events = noopPublisher{}
	}
	if d.TokenTTL <= 0 {
		d.TokenTTL = 12 * time.Hour
	}
	return d
}

func authorize(ctx context.Context, policy domain.AccessPolicy, principal domain.Principal, action domain.Action, resource domain.Resource) error {
	allowed, err := policy.Allow(ctx, principal, action, resource)
	if err != nil {
		return err
	}
	if !allowed {
		return domain.ErrForbidden
	}
	return nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(domain.SheetEvent) {}

func (noopPublisher) Close() error { return nil }
