package formula

import (
	"errors"
	"math"
	"testing"
)

func TestExprEval(t *testing.T) {
	vars := []string{"conc", "dt", "imass", "ate", "current_load", "t", "k_elim"}
	tests := []struct {
		src  string
		want float64
	}{
		{"current_load + ate/imass - k_elim*current_load*dt", 0.5 + 2.0/4 - 0.1*0.5*10},
		{"current_load>0?0.9:0.0", 0.9},
		{"current_load > 0 ? 1 : 0", 1},
		{"exp(log(2))", 2},
		{"pow(conc, 2) + sqrt(16)", 9 + 4},
		{"dt > 5", 1},
		{"7", 7},
	}

	ev := NewExpr()
	scope := NewScope()
	scope.Bind("conc", 3)
	scope.Bind("dt", 10)
	scope.Bind("imass", 4)
	scope.Bind("ate", 2)
	scope.Bind("current_load", 0.5)
	scope.Bind("t", 100)
	scope.Bind("k_elim", 0.1)

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			p, err := ev.Compile(tt.src, vars)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			got, err := p.Eval(scope)
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Eval(%q) = %v, want %v", tt.src, got, tt.want)
			}
			if p.String() != tt.src {
				t.Errorf("String = %q", p.String())
			}
		})
	}
}

func TestExprCompileErrors(t *testing.T) {
	ev := NewExpr()
	for _, src := range []string{"unknown_var + 1", "conc +"} {
		if _, err := ev.Compile(src, []string{"conc"}); !errors.Is(err, ErrCompile) {
			t.Errorf("Compile(%q) err = %v, want ErrCompile", src, err)
		}
	}
}

func TestExprNonNumericResult(t *testing.T) {
	p, err := NewExpr().Compile(`"text"`, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := p.Eval(NewScope()); !errors.Is(err, ErrEval) {
		t.Errorf("err = %v, want ErrEval", err)
	}
}

func TestEvalVariablesInOrder(t *testing.T) {
	ev := NewExpr()
	a, err := ev.Compile("x * 2", []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := ev.Compile("a + x", []string{"x", "a"})
	if err != nil {
		t.Fatal(err)
	}

	scope := NewScope()
	scope.Bind("x", 3)
	if err := EvalVariables(scope, []Variable{{"a", a}, {"b", b}}); err != nil {
		t.Fatalf("EvalVariables: %v", err)
	}
	if v, _ := scope.Value("b"); v != 9 {
		t.Errorf("b = %v, want 9", v)
	}
}
