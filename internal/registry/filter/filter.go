// Package filter provides AIP-160 filter expression parsing for module
// registry listings. Registry records live in contract key-value state,
// so expressions translate to an in-memory predicate rather than SQL.
package filter

import (
	"fmt"
	"strings"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Fields a module listing can filter on.
var declaredFields = []string{"namespace", "name", "version", "status"}

// Predicate evaluates a parsed filter against one record's fields.
type Predicate func(fields map[string]string) bool

// Declarations returns the field declarations for module filtering.
func Declarations() (*filtering.Declarations, error) {
	opts := []filtering.DeclarationOption{filtering.DeclareStandardFunctions()}
	for _, field := range declaredFields {
		opts = append(opts, filtering.DeclareIdent(field, filtering.TypeString))
	}
	return filtering.NewDeclarations(opts...)
}

// Parse parses an AIP-160 filter expression into a predicate. An empty
// filter matches every record.
func Parse(filterStr string) (Predicate, error) {
	if strings.TrimSpace(filterStr) == "" {
		return func(map[string]string) bool { return true }, nil
	}

	decls, err := Declarations()
	if err != nil {
		return nil, fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}
	return translateExpr(parsed.CheckedExpr.Expr)
}

func translateExpr(e *expr.Expr) (Predicate, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return translateCall(kind.CallExpr)
	default:
		return nil, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func translateCall(call *expr.Expr_Call) (Predicate, error) {
	switch call.Function {
	case "_&&_", "AND":
		return translateLogical(call.Args, true)
	case "_||_", "OR":
		return translateLogical(call.Args, false)
	case "_==_", "=":
		return translateComparison(call.Args, false)
	case "_!=_", "!=":
		return translateComparison(call.Args, true)
	default:
		return nil, fmt.Errorf("unsupported function: %s", call.Function)
	}
}

func translateLogical(args []*expr.Expr, and bool) (Predicate, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("logical operator requires 2 arguments")
	}
	left, err := translateExpr(args[0])
	if err != nil {
		return nil, err
	}
	right, err := translateExpr(args[1])
	if err != nil {
		return nil, err
	}
	if and {
		return func(fields map[string]string) bool {
			return left(fields) && right(fields)
		}, nil
	}
	return func(fields map[string]string) bool {
		return left(fields) || right(fields)
	}, nil
}

func translateComparison(args []*expr.Expr, negate bool) (Predicate, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("comparison requires 2 arguments")
	}
	field, err := extractFieldName(args[0])
	if err != nil {
		return nil, err
	}
	known := false
	for _, declared := range declaredFields {
		if field == declared {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown field: %s", field)
	}
	value, err := extractStringValue(args[1])
	if err != nil {
		return nil, err
	}
	return func(fields map[string]string) bool {
		return (fields[field] == value) != negate
	}, nil
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func extractStringValue(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}
	constExpr, ok := e.ExprKind.(*expr.Expr_ConstExpr)
	if !ok {
		return "", fmt.Errorf("expected constant, got %T", e.ExprKind)
	}
	strVal, ok := constExpr.ConstExpr.ConstantKind.(*expr.Constant_StringValue)
	if !ok {
		return "", fmt.Errorf("expected string constant, got %T", constExpr.ConstExpr.ConstantKind)
	}
	return strVal.StringValue, nil
}
