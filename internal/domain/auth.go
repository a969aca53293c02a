package domain

import (
	"context"
	"time"
)

type OperatorStatus string

const (
	OperatorActive   OperatorStatus = "ACTIVE"
	OperatorInactive OperatorStatus = "INACTIVE"
)

type Role string

const (
	RoleOperator   Role = "operator"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

// Elevated roles may mutate sheets they did not create.
func (r Role) Elevated() bool {
	return r == RoleSupervisor || r == RoleAdmin
}

func (r Role) Valid() bool {
	switch r {
	case RoleOperator, RoleSupervisor, RoleAdmin:
		return true
	}
	return false
}

func (s OperatorStatus) Valid() bool {
	return s == OperatorActive || s == OperatorInactive
}

type Operator struct {
	ID          string
	TenantID    string
	DisplayName string
	Login       string
	SecretHash  string
	Role        Role
	Status      OperatorStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AdminKeySubject identifies the principal synthesized from the admin API key.
const AdminKeySubject = "admin-key"

type Principal struct {
	OperatorID string
	TenantID   string
	Role       Role
	ExpiresAt  time.Time
	// AdminKey is set only for requests authenticated with the admin API key;
	// such principals are not bound to a tenant.
	AdminKey bool
}

type TokenClaims struct {
	OperatorID string
	TenantID   string
	Role       Role
	ExpiresAt  time.Time
}

type Token struct {
	Value     string
	ExpiresAt time.Time
	Principal Principal
}

type TokenCodec interface {
	Issue(claims TokenClaims) (string, error)
	Parse(token string) (TokenClaims, error)
}

type SecretHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) bool
}

type Authenticator interface {
	Validate(ctx context.Context, bearerToken string) (Principal, error)
}

type Action string

const (
	ActionRead       Action = "read"
	ActionMutate     Action = "mutate"
	ActionAdminister Action = "administer"
)

// Resource is what an access decision is made against. OwnerID is empty for
// tenant-level decisions such as administration.
type Resource struct {
	TenantID string
	OwnerID  string
}

func SheetResource(sheet Sheet) Resource {
	return Resource{TenantID: sheet.TenantID, OwnerID: sheet.OperatorID}
}

type AccessPolicy interface {
	Allow(ctx context.Context, principal Principal, action Action, resource Resource) (bool, error)
}

type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}
