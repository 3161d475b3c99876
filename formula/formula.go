// Package formula compiles and evaluates the arithmetic expressions used for
// contaminant load updates and impairment responses.
package formula

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrCompile is returned when an expression cannot be compiled.
	ErrCompile = errors.New("formula: compile failed")
	// ErrEval is returned when a compiled expression fails at run time.
	ErrEval = errors.New("formula: evaluation failed")
)

// Program is a compiled expression.
type Program interface {
	// Eval runs the program against the bindings in scope.
	Eval(scope *Scope) (float64, error)
	// String returns the source the program was compiled from.
	String() string
}

// Evaluator compiles expressions over a fixed set of variable names.
type Evaluator interface {
	Compile(src string, vars []string) (Program, error)
}

// Scope holds variable bindings for evaluation.
type Scope struct {
	env map[string]any
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{env: make(map[string]any)}
}

// Bind sets name to v, replacing any previous binding.
func (s *Scope) Bind(name string, v float64) {
	s.env[name] = v
}

// Value returns the binding for name.
func (s *Scope) Value(name string) (float64, bool) {
	v, ok := s.env[name]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Names returns the bound names in sorted order.
func (s *Scope) Names() []string {
	names := make([]string, 0, len(s.env))
	for k := range s.env {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Variable is a named intermediate computed before the main expression.
type Variable struct {
	Name    string
	Program Program
}

// EvalVariables evaluates vars in order, binding each result into scope so
// later variables and programs can refer to earlier ones.
func EvalVariables(scope *Scope, vars []Variable) error {
	for _, v := range vars {
		x, err := v.Program.Eval(scope)
		if err != nil {
			return fmt.Errorf("variable %s: %w", v.Name, err)
		}
		scope.Bind(v.Name, x)
	}
	return nil
}
