package rules

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/google/cel-go/cel"
)

var (
	andWord = regexp.MustCompile(`(?i)\bAND\b`)
	orWord  = regexp.MustCompile(`(?i)\bOR\b`)
	notWord = regexp.MustCompile(`(?i)\bNOT\b`)
)

// advisoryProgram is the compiled form of a rule's advisory logic string.
// Conditions are exposed as boolean variables c1..cN and condition1..conditionN.
type advisoryProgram struct {
	expression string
	program    cel.Program
	size       int
}

// CheckLogic reports whether expression compiles as advisory logic for a
// rule with n conditions.
func CheckLogic(expression string, n int) error {
	_, err := compileLogic(expression, n)
	return err
}

// compileLogic compiles an advisory logic expression for a rule with n
// conditions. Words AND, OR and NOT are accepted alongside &&, || and !.
func compileLogic(expression string, n int) (*advisoryProgram, error) {
	opts := make([]cel.EnvOption, 0, 2*n)
	for i := 1; i <= n; i++ {
		opts = append(opts,
			cel.Variable("c"+strconv.Itoa(i), cel.BoolType),
			cel.Variable("condition"+strconv.Itoa(i), cel.BoolType),
		)
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	normalized := notWord.ReplaceAllString(orWord.ReplaceAllString(andWord.ReplaceAllString(expression, "&&"), "||"), "!")
	ast, issues := env.Compile(normalized)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("logic expression must be boolean, got %s", ast.OutputType())
	}

	prog, err := env.Program(ast, cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return &advisoryProgram{expression: expression, program: prog, size: n}, nil
}

// eval returns the advisory verdict for per-condition results.
func (p *advisoryProgram) eval(results []bool) (bool, error) {
	vars := make(map[string]any, 2*len(results))
	for i, r := range results {
		vars["c"+strconv.Itoa(i+1)] = r
		vars["condition"+strconv.Itoa(i+1)] = r
	}
	out, _, err := p.program.Eval(vars)
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("logic expression produced %T", out.Value())
	}
	return b, nil
}
