package rules

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// CompiledRule is a validated rule ready to evaluate records. It is
// immutable and safe for concurrent use.
type CompiledRule struct {
	def        *RuleDefinition
	conditions []compiledCondition
	advisory   *advisoryProgram
	// AdvisoryErr is set when the advisory logic string does not compile.
	// It never prevents evaluation.
	AdvisoryErr error
}

// Compile validates def and prepares it for evaluation.
func Compile(def *RuleDefinition) (*CompiledRule, error) {
	if err := ValidateRule(def); err != nil {
		return nil, err
	}

	cr := &CompiledRule{
		def:        def.Clone(),
		conditions: make([]compiledCondition, len(def.Conditions)),
	}
	for i, c := range def.Conditions {
		cr.conditions[i] = compileCondition(i, c)
	}
	if def.Logic != "" {
		cr.advisory, cr.AdvisoryErr = compileLogic(def.Logic, len(def.Conditions))
	}
	return cr, nil
}

// Definition returns a copy of the compiled definition.
func (cr *CompiledRule) Definition() *RuleDefinition {
	return cr.def.Clone()
}

// Evaluate produces the verdict for a single record pair.
func (cr *CompiledRule) Evaluate(recordID string, pair RecordPair) *EvaluationResult {
	v := compose(cr.conditions, pair)
	res := &EvaluationResult{
		RuleID:           cr.def.ID,
		RecordID:         recordID,
		Passed:           v.passed,
		FailedConditions: v.failed,
		Diagnostics:      v.diagnostics,
	}

	if !v.passed {
		best := ExceptionNone
		for _, idx := range v.failed {
			best = higherPriority(best, classifyCheck(cr.conditions[idx].Condition, v.checks[idx]))
		}
		res.ExceptionType = best
	}

	if cr.advisory != nil {
		if advised, err := cr.advisory.eval(v.results); err == nil && advised != v.passed {
			res.AdvisoryMismatch = true
		}
	}
	return res
}

// RunOptions tunes a batch run.
type RunOptions struct {
	// Workers bounds concurrent record evaluations. Zero means GOMAXPROCS.
	Workers int
}

// Run evaluates records under rule. It is equivalent to Compile followed by
// CompiledRule.Run.
func Run(ctx context.Context, rule *RuleDefinition, records []RecordPair, opts RunOptions) (*BatchRunResult, error) {
	cr, err := Compile(rule)
	if err != nil {
		return nil, err
	}
	return cr.Run(ctx, records, opts)
}

// Run evaluates every record with a bounded pool of workers. Results are
// stored by input index, so their order matches records regardless of
// completion order. Cancellation is checked between records; a cancelled
// run returns the context error and no result.
func (cr *CompiledRule) Run(ctx context.Context, records []RecordPair, opts RunOptions) (*BatchRunResult, error) {
	start := time.Now()
	res := &BatchRunResult{
		RuleID:       cr.def.ID,
		RuleVersion:  cr.def.Version,
		TotalRecords: len(records),
		Results:      make([]*EvaluationResult, len(records)),
		StartedAt:    start,
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range records {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res.Results[i] = cr.Evaluate(recordID(records[i], i), records[i])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("rule %s run aborted: %w", cr.def.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rule %s run aborted: %w", cr.def.ID, err)
	}

	for _, r := range res.Results {
		if r.Passed {
			res.PassedRecords++
		} else {
			res.FailedRecords++
		}
	}
	res.Duration = time.Since(start)
	return res, nil
}

func recordID(pair RecordPair, index int) string {
	if pair.ID != "" {
		return pair.ID
	}
	return fmt.Sprintf("record-%d", index+1)
}
