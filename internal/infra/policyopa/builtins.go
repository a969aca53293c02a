package policyopa

import "github.com/open-policy-agent/opa/ast"

// The access module only compares strings and looks up set members.
var allowedBuiltins = map[string]struct{}{
	"count":  {},
	"eq":     {},
	"equal":  {},
	"lower":  {},
	"neq":    {},
	"trim":   {},
	"upper":  {},
	"assign": {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(allowedBuiltins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; !ok {
			continue
		}
		allowed = append(allowed, builtin)
	}
	return allowed
}
