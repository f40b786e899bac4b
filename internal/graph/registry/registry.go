// Package registry validates the open constraint-type enum. Tenants register
// new constraint categories at runtime instead of recompiling; a registered
// type may carry an optional CEL predicate that further gates applicability
// beyond the constraint's own filter sets.
package registry

import (
	"sync"

	"github.com/google/cel-go/cel"

	"riskgraph/internal/graph/models"
	dErrors "riskgraph/pkg/domain-errors"
)

// TypeSpec describes one registrable constraint category.
type TypeSpec struct {
	Type        models.ConstraintType `json:"type"`
	Description string                `json:"description,omitempty"`
	// Expression is an optional CEL predicate over the entity. Variables:
	// entity_type, country, category, subcategory (string), criticality (int),
	// tags (list of string). Empty means the type applies structurally.
	Expression string `json:"expression,omitempty"`
}

type compiledType struct {
	spec TypeSpec
	prg  cel.Program
}

// Registry holds the known constraint types for one tenant universe.
// Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	env   *cel.Env
	types map[models.ConstraintType]*compiledType
}

// New builds a registry pre-loaded with the built-in constraint categories.
func New() (*Registry, error) {
	env, err := cel.NewEnv(
		cel.Variable("entity_type", cel.StringType),
		cel.Variable("country", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("subcategory", cel.StringType),
		cel.Variable("criticality", cel.IntType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "constraint registry environment")
	}

	r := &Registry{
		env:   env,
		types: make(map[models.ConstraintType]*compiledType),
	}
	for _, t := range builtinTypes {
		if err := r.Register(TypeSpec{Type: t}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// builtinTypes seeds the registry; tenants extend it at runtime.
var builtinTypes = []models.ConstraintType{
	models.ConstraintPolicy,
	models.ConstraintRegulation,
	models.ConstraintCompliance,
	models.ConstraintSanction,
	models.ConstraintContract,
	models.ConstraintLicense,
	models.ConstraintCustom,
	"embargo",
	"export_control",
	"data_protection",
	"kyc",
	"aml",
	"esg",
	"security_clearance",
	"trade_restriction",
}

// Register adds (or replaces) a constraint type, compiling its predicate.
func (r *Registry) Register(spec TypeSpec) error {
	if spec.Type == "" {
		return dErrors.New(dErrors.CodeValidation, "constraint type is required")
	}

	ct := &compiledType{spec: spec}
	if spec.Expression != "" {
		ast, iss := r.env.Compile(spec.Expression)
		if iss != nil && iss.Err() != nil {
			return dErrors.Wrap(iss.Err(), dErrors.CodeValidation, "invalid constraint type predicate")
		}
		if ast.OutputType() != cel.BoolType {
			return dErrors.New(dErrors.CodeValidation, "constraint type predicate must evaluate to bool")
		}
		prg, err := r.env.Program(ast)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "constraint type predicate compilation failed")
		}
		ct.prg = prg
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[spec.Type] = ct
	return nil
}

// Known reports whether the type has been registered.
func (r *Registry) Known(t models.ConstraintType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[t]
	return ok
}

// List returns the registered type specs in no particular order.
func (r *Registry) List() []TypeSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TypeSpec, 0, len(r.types))
	for _, ct := range r.types {
		out = append(out, ct.spec)
	}
	return out
}

// Matches evaluates the type's predicate against the entity. Types without a
// predicate match unconditionally. Evaluation errors fail closed (no match).
func (r *Registry) Matches(t models.ConstraintType, e *models.Entity) (bool, error) {
	r.mu.RLock()
	ct, ok := r.types[t]
	r.mu.RUnlock()
	if !ok {
		return false, dErrors.Newf(dErrors.CodeValidation, "unregistered constraint type: %q", t)
	}
	if ct.prg == nil {
		return true, nil
	}

	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	out, _, err := ct.prg.Eval(map[string]any{
		"entity_type": string(e.Type),
		"country":     e.CountryCode,
		"category":    e.Category,
		"subcategory": e.Subcategory,
		"criticality": int64(e.Criticality),
		"tags":        tags,
	})
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeCalculation, "constraint type predicate evaluation")
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, dErrors.New(dErrors.CodeCalculation, "constraint type predicate returned non-bool")
	}
	return matched, nil
}
