package internal

import (
	"fmt"
	"math"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// Expression evaluation against a record. The grammar is expr-lang's, but
// name resolution is restricted: an identifier must be a key of the
// record or a member of the fixed numeric namespace below. Nothing else
// resolves, so expressions can never reach process state.

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func unaryMath(name string, fn func(float64) float64) func(...any) (any, error) {
	return func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
		}
		f, err := toFloat(args[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return fn(f), nil
	}
}

// numericNamespace is the fixed whitelist available to every expression,
// independent of record content.
func numericNamespace() map[string]any {
	return map[string]any{
		"pi":    math.Pi,
		"e":     math.E,
		"abs":   unaryMath("abs", math.Abs),
		"sqrt":  unaryMath("sqrt", math.Sqrt),
		"exp":   unaryMath("exp", math.Exp),
		"log":   unaryMath("log", math.Log),
		"log10": unaryMath("log10", math.Log10),
		"floor": unaryMath("floor", math.Floor),
		"ceil":  unaryMath("ceil", math.Ceil),
		"round": unaryMath("round", math.Round),
		"pow": func(args ...any) (any, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("pow expects 2 arguments, got %d", len(args))
			}
			x, err := toFloat(args[0])
			if err != nil {
				return nil, fmt.Errorf("pow: %w", err)
			}
			y, err := toFloat(args[1])
			if err != nil {
				return nil, fmt.Errorf("pow: %w", err)
			}
			return math.Pow(x, y), nil
		},
	}
}

type identCollector struct {
	names map[string]struct{}
}

func (c *identCollector) Visit(node *ast.Node) {
	if n, ok := (*node).(*ast.IdentifierNode); ok {
		c.names[n.Value] = struct{}{}
	}
}

// Expression is a compiled record expression, reusable across records.
// Compile once per batch operation, run per record.
type Expression struct {
	source  string
	program *vm.Program
	idents  []string
}

// CompileExpression parses and compiles source and records the
// identifiers that must resolve against each record.
func CompileExpression(source string) (*Expression, error) {
	tree, err := parser.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", source, err)
	}
	collector := &identCollector{names: make(map[string]struct{})}
	ast.Walk(&tree.Node, collector)

	program, err := expr.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", source, err)
	}

	idents := make([]string, 0, len(collector.names))
	for name := range collector.names {
		idents = append(idents, name)
	}
	sort.Strings(idents)

	return &Expression{source: source, program: program, idents: idents}, nil
}

// Run evaluates the expression against one record. Identifiers resolve
// against the numeric namespace first and the record's keys second
// (record data shadows the namespace); an identifier matching neither is
// ErrUnknownName. Record values are materialized through Get, so lazy
// placeholders participate transparently.
func (e *Expression) Run(r *Record) (any, error) {
	env := numericNamespace()
	for _, name := range e.idents {
		if r.Contains(name) {
			val, err := r.Get(name)
			if err != nil {
				return nil, err
			}
			env[name] = val
			continue
		}
		if _, ok := env[name]; !ok {
			return nil, fmt.Errorf("%w: %q in %q", ErrUnknownName, name, e.source)
		}
	}
	out, err := expr.Run(e.program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", e.source, err)
	}
	return out, nil
}

// Evaluate compiles and runs a small expression against the record's own
// keys plus the fixed numeric namespace. It never has access to external
// process state.
func (r *Record) Evaluate(source string) (any, error) {
	e, err := CompileExpression(source)
	if err != nil {
		return nil, err
	}
	return e.Run(r)
}
