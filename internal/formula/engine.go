package formula

import (
	"math"
	"sort"
	"strings"
	"sync"

	"main/pkg/exception"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
	"github.com/yanun0323/errors"
)

const (
	bidSuffix = "_bid"
	askSuffix = "_ask"
)

// Engine evaluates derived-rate formulas. Expressions reference dependency
// fields as SYMBOL_bid / SYMBOL_ask plus named helper constants. Programs
// are compiled once per expression text and cached.
type Engine struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// NewEngine allocates an engine with an empty program cache.
func NewEngine() *Engine {
	return &Engine{programs: make(map[string]*vm.Program)}
}

// MissingError names the unresolved tokens of a formula for diagnostics.
type MissingError struct {
	Symbols []string
	Consts  []string
}

func (e *MissingError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Symbols) > 0 {
		parts = append(parts, "symbols: "+strings.Join(e.Symbols, ","))
	}
	if len(e.Consts) > 0 {
		parts = append(parts, "constants: "+strings.Join(e.Consts, ","))
	}
	return "formula: unresolved tokens, " + strings.Join(parts, "; ")
}

func (e *MissingError) Unwrap() error {
	return exception.ErrFormulaMissingTokens
}

// Validate checks that every SYMBOL_bid/_ask token is satisfiable by the
// dependency set and every helper token is present in consts. Missing
// tokens are reported as named sets.
func (eng *Engine) Validate(expression string, dependsOn []string, consts map[string]float64) error {
	tokens, err := referencedIdents(expression)
	if err != nil {
		return err
	}

	deps := make(map[string]struct{}, len(dependsOn))
	for _, d := range dependsOn {
		deps[d] = struct{}{}
	}

	missing := &MissingError{}
	for token := range tokens {
		if symbol, ok := symbolOfToken(token); ok {
			if _, found := deps[symbol]; !found {
				missing.Symbols = append(missing.Symbols, symbol)
			}
			continue
		}
		if _, found := consts[token]; !found {
			missing.Consts = append(missing.Consts, token)
		}
	}
	if len(missing.Symbols) > 0 || len(missing.Consts) > 0 {
		sort.Strings(missing.Symbols)
		sort.Strings(missing.Consts)
		return missing
	}
	return nil
}

// Eval evaluates the expression against the supplied values and returns a
// single finite decimal result.
func (eng *Engine) Eval(expression string, values map[string]float64) (float64, error) {
	if eng == nil {
		return 0, exception.ErrNilInstance
	}
	program, err := eng.compile(expression)
	if err != nil {
		return 0, err
	}

	env := make(map[string]any, len(values))
	for k, v := range values {
		env[k] = v
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return 0, errors.Wrap(err, "run formula")
	}

	result, ok := asFloat(out)
	if !ok {
		return 0, exception.ErrFormulaNotNumeric
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, exception.ErrFormulaNotFinite
	}
	return result, nil
}

func (eng *Engine) compile(expression string) (*vm.Program, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, exception.ErrFormulaEmpty
	}

	eng.mu.RLock()
	program := eng.programs[expression]
	eng.mu.RUnlock()
	if program != nil {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, errors.Wrap(err, "compile formula").With("expression", expression)
	}

	eng.mu.Lock()
	eng.programs[expression] = program
	eng.mu.Unlock()
	return program, nil
}

// symbolOfToken strips the _bid/_ask suffix, reporting whether the token
// is a dependency field reference.
func symbolOfToken(token string) (string, bool) {
	if s, ok := strings.CutSuffix(token, bidSuffix); ok && s != "" {
		return s, true
	}
	if s, ok := strings.CutSuffix(token, askSuffix); ok && s != "" {
		return s, true
	}
	return "", false
}

// referencedIdents parses the expression and collects identifier tokens.
func referencedIdents(expression string) (map[string]struct{}, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, exception.ErrFormulaEmpty
	}
	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, errors.Wrap(err, "parse formula").With("expression", expression)
	}
	collector := &identCollector{idents: make(map[string]struct{})}
	ast.Walk(&tree.Node, collector)
	return collector.idents, nil
}

type identCollector struct {
	idents map[string]struct{}
}

func (c *identCollector) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok {
		c.idents[id.Value] = struct{}{}
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
