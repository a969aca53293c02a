package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

type LoginInput struct {
	// TenantID is optional; an empty tenant resolves the login across tenants
	// and only succeeds when exactly one operator carries it.
	TenantID string
	Login    string
	Secret   string
}

type IdentityService struct {
	deps Deps

	dummyOnce   sync.Once
	dummyDigest string
}

func NewIdentityService(deps Deps) *IdentityService {
	return &IdentityService{deps: deps.withDefaults()}
}

func (s *IdentityService) Authenticate(ctx context.Context, in LoginInput) (domain.Token, error) {
	tenantID := strings.TrimSpace(in.TenantID)
	login := strings.TrimSpace(in.Login)
	if login == "" || in.Secret == "" {
		s.burnVerify(in.Secret)
		s.deps.Audit.EmitLogin(ctx, tenantID, "", login, domain.AuditResultFailure, "INVALID_CREDENTIALS")
		return domain.Token{}, domain.ErrInvalidCredentials
	}

	candidates, err := s.deps.Repos.Operators.FindByLogin(ctx, tenantID, login)
	if err != nil {
		return domain.Token{}, err
	}
	if len(candidates) != 1 {
		if len(candidates) > 1 {
			s.deps.Logger.Info("ambiguous login without tenant", zap.Int("matches", len(candidates)))
		}
		s.burnVerify(in.Secret)
		s.deps.Audit.EmitLogin(ctx, tenantID, "", login, domain.AuditResultFailure, "INVALID_CREDENTIALS")
		return domain.Token{}, domain.ErrInvalidCredentials
	}
	op := candidates[0]
	matched := s.deps.Hasher.Verify(in.Secret, op.SecretHash)
	if op.Status != domain.OperatorActive || !matched {
		s.deps.Audit.EmitLogin(ctx, op.TenantID, "", login, domain.AuditResultFailure, "INVALID_CREDENTIALS")
		return domain.Token{}, domain.ErrInvalidCredentials
	}

	expiresAt := s.deps.Clock().UTC().Add(s.deps.TokenTTL)
	value, err := s.deps.Tokens.Issue(domain.TokenClaims{
		OperatorID: op.ID,
		TenantID:   op.TenantID,
		Role:       op.Role,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		return domain.Token{}, err
	}
	s.deps.Audit.EmitLogin(ctx, op.TenantID, op.ID, login, domain.AuditResultSuccess, "")
	return domain.Token{
		Value:     value,
		ExpiresAt: expiresAt,
		Principal: domain.Principal{
			OperatorID: op.ID,
			TenantID:   op.TenantID,
			Role:       op.Role,
			ExpiresAt:  expiresAt,
		},
	}, nil
}

// burnVerify spends one hash comparison so a rejected login without a
// matching operator costs about as much as a wrong secret.
func (s *IdentityService) burnVerify(secret string) {
	s.dummyOnce.Do(func() {
		digest, err := s.deps.Hasher.Hash("hojas-unknown-operator")
		if err != nil {
			s.deps.Logger.Warn("dummy digest unavailable", zap.Error(err))
			return
		}
		s.dummyDigest = digest
	})
	if s.dummyDigest != "" {
		_ = s.deps.Hasher.Verify(secret, s.dummyDigest)
	}
}

// Validate verifies a bearer token without touching the store.
func (s *IdentityService) Validate(_ context.Context, bearerToken string) (domain.Principal, error) {
	raw := strings.TrimSpace(bearerToken)
	if raw == "" {
		return domain.Principal{}, domain.ErrTokenInvalid
	}
	claims, err := s.deps.Tokens.Parse(raw)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			return domain.Principal{}, domain.ErrTokenExpired
		}
		return domain.Principal{}, domain.ErrTokenInvalid
	}
	return domain.Principal{
		OperatorID: claims.OperatorID,
		TenantID:   claims.TenantID,
		Role:       claims.Role,
		ExpiresAt:  claims.ExpiresAt,
	}, nil
}

var _ domain.Authenticator = (*IdentityService)(nil)
