package formula

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Expr is an Evaluator backed by expr-lang. Besides the language's own
// operators and builtins it provides exp, log, pow and sqrt.
type Expr struct{}

// NewExpr creates an expr-lang evaluator.
func NewExpr() *Expr {
	return &Expr{}
}

// Compile type-checks src against vars, each of which is a float64.
func (Expr) Compile(src string, vars []string) (Program, error) {
	env := make(map[string]any, len(vars))
	for _, name := range vars {
		env[name] = 0.0
	}
	opts := append([]expr.Option{expr.Env(env)}, mathFuncs...)
	prog, err := expr.Compile(src, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrCompile, src, err)
	}
	return &exprProgram{src: src, prog: prog}, nil
}

type exprProgram struct {
	src  string
	prog *vm.Program
}

func (p *exprProgram) Eval(scope *Scope) (float64, error) {
	out, err := expr.Run(p.prog, scope.env)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrEval, p.src, err)
	}
	v, ok := toFloat(out)
	if !ok {
		return 0, fmt.Errorf("%w: %q: result %T is not numeric", ErrEval, p.src, out)
	}
	return v, nil
}

func (p *exprProgram) String() string {
	return p.src
}

var mathFuncs = []expr.Option{
	unary("exp", math.Exp),
	unary("log", math.Log),
	unary("sqrt", math.Sqrt),
	expr.Function("pow", func(params ...any) (any, error) {
		if len(params) != 2 {
			return nil, fmt.Errorf("pow: want 2 arguments, got %d", len(params))
		}
		x, ok1 := toFloat(params[0])
		y, ok2 := toFloat(params[1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("pow: non-numeric argument")
		}
		return math.Pow(x, y), nil
	}),
}

func unary(name string, fn func(float64) float64) expr.Option {
	return expr.Function(name, func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("%s: want 1 argument, got %d", name, len(params))
		}
		x, ok := toFloat(params[0])
		if !ok {
			return nil, fmt.Errorf("%s: non-numeric argument %T", name, params[0])
		}
		return fn(x), nil
	})
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
