package rbac

import (
	"context"
	"errors"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

type AuthzError struct {
	Code string
	Err  error
}

func (e *AuthzError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code
}

func (e *AuthzError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Authorizer is the static sheet access policy: tenants are isolated, owners
// and elevated roles mutate, admins (or the admin key) administer.
type Authorizer struct{}

func NewAuthorizer() *Authorizer {
	return &Authorizer{}
}

func (a *Authorizer) Require(principal domain.Principal, action domain.Action, resource domain.Resource) error {
	if principal.AdminKey {
		if action == domain.ActionAdminister {
			return nil
		}
		return &AuthzError{Code: "ADMIN_KEY_SCOPE", Err: domain.ErrForbidden}
	}
	if principal.OperatorID == "" {
		return domain.ErrUnauthorized
	}
	if principal.TenantID == "" || principal.TenantID != resource.TenantID {
		return &AuthzError{Code: "TENANT_MISMATCH", Err: domain.ErrForbidden}
	}
	switch action {
	case domain.ActionRead:
		return nil
	case domain.ActionMutate:
		if principal.Role.Elevated() {
			return nil
		}
		if resource.OwnerID != "" && resource.OwnerID == principal.OperatorID {
			return nil
		}
		return &AuthzError{Code: "NOT_OWNER", Err: domain.ErrForbidden}
	case domain.ActionAdminister:
		if principal.Role == domain.RoleAdmin {
			return nil
		}
		return &AuthzError{Code: "MISSING_ROLE", Err: domain.ErrForbidden}
	}
	return &AuthzError{Code: "UNKNOWN_ACTION", Err: domain.ErrForbidden}
}

func (a *Authorizer) Allow(_ context.Context, principal domain.Principal, action domain.Action, resource domain.Resource) (bool, error) {
	err := a.Require(principal, action, resource)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, domain.ErrForbidden) {
		return false, nil
	}
	return false, err
}

func (a *Authorizer) CanRead(principal domain.Principal, sheet domain.Sheet) bool {
	return a.Require(principal, domain.ActionRead, domain.SheetResource(sheet)) == nil
}

func (a *Authorizer) CanMutate(principal domain.Principal, sheet domain.Sheet) bool {
	return a.Require(principal, domain.ActionMutate, domain.SheetResource(sheet)) == nil
}

func (a *Authorizer) CanAdminister(principal domain.Principal, tenantID string) bool {
	return a.Require(principal, domain.ActionAdminister, domain.Resource{TenantID: tenantID}) == nil
}

func IsAuthzError(err error) (*AuthzError, bool) {
	var authz *AuthzError
	if errors.As(err, &authz) {
		return authz, true
	}
	return nil, false
}

var _ domain.AccessPolicy = (*Authorizer)(nil)
