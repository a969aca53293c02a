// Package policyopa evaluates sheet access decisions with an embedded Rego
// module. It mirrors the static rbac policy and is selected with POLICY_MODE=opa.
package policyopa

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const defaultQuery = "data.hojas.access.allow"

//go:embed access.rego
var accessModule string

type Engine struct {
	query rego.PreparedEvalQuery
}

func NewEngine(ctx context.Context) (*Engine, error) {
	return NewEngineFromModule(ctx, "access.rego", accessModule)
}

func NewEngineFromModule(ctx context.Context, name, source string) (*Engine, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	r := rego.New(
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		rego.Module(name, source),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare access policy: %w", err)
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Engine{query: prepared}, nil
}

type accessInput struct {
	Action    string         `json:"action"`
	Principal principalInput `json:"principal"`
	Resource  resourceInput  `json:"resource"`
}

type principalInput struct {
	OperatorID string `json:"operator_id"`
	TenantID   string `json:"tenant_id"`
	Role       string `json:"role"`
	AdminKey   bool   `json:"admin_key"`
}

type resourceInput struct {
	TenantID string `json:"tenant_id"`
	OwnerID  string `json:"owner_id"`
}

func (e *Engine) Allow(ctx context.Context, principal domain.Principal, action domain.Action, resource domain.Resource) (bool, error) {
	if e == nil {
		return false, errors.New("policy engine is nil")
	}
	if !principal.AdminKey && principal.OperatorID == "" {
		return false, domain.ErrUnauthorized
	}
	input := accessInput{
		Action: string(action),
		Principal: principalInput{
			OperatorID: principal.OperatorID,
			TenantID:   principal.TenantID,
			Role:       string(principal.Role),
			AdminKey:   principal.AdminKey,
		},
		Resource: resourceInput{
			TenantID: resource.TenantID,
			OwnerID:  resource.OwnerID,
		},
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, errors.New("empty policy result")
	}
	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}
	return allowed, nil
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("policy compiler is nil")
	}
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}

var _ domain.AccessPolicy = (*Engine)(nil)
