// Package rules provides a minimal priority-ordered rule pipeline.
//
// A pipeline runs an ordered sequence of rules over a shared typed context.
// Rules are sorted by priority (stable, lower runs first). A rule can
// short-circuit the remainder of the pipeline by flagging the shared Outcome
// as matched or skipped.
package rules

import "sort"

// Outcome carries the shared short-circuit state for a pipeline run.
// Embed it (or a pointer to it) in the pipeline's context type.
type Outcome struct {
	// Matched is set by a rule that positively matched; later rules do not run.
	Matched bool
	// ShouldSkip is set by a rule that decided the subject must be skipped.
	ShouldSkip bool
	// SkipReason explains why ShouldSkip was set.
	SkipReason string
}

// Halted reports whether the pipeline should stop before the next rule.
func (o *Outcome) Halted() bool {
	return o.Matched || o.ShouldSkip
}

// Skip marks the outcome as skipped with the given reason.
func (o *Outcome) Skip(reason string) {
	o.ShouldSkip = true
	o.SkipReason = reason
}

// Rule is a single step in a pipeline over context type C.
type Rule[C any] interface {
	// Priority orders rules within the pipeline; lower runs first.
	Priority() int
	// Applies reports whether the rule is relevant for this context.
	Applies(c C) bool
	// Execute runs the rule. It may mutate the context, including the
	// shared Outcome flags.
	Execute(c C) error
}

// Haltable is implemented by pipeline contexts, normally by embedding Outcome.
type Haltable interface {
	Halted() bool
}

// Engine executes an ordered rule pipeline.
type Engine[C Haltable] struct {
	rules []Rule[C]
}

// NewEngine creates an engine from the given rules, stably sorted by priority.
func NewEngine[C Haltable](rs ...Rule[C]) *Engine[C] {
	sorted := make([]Rule[C], len(rs))
	copy(sorted, rs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &Engine[C]{rules: sorted}
}

// Run iterates the rules in priority order. Iteration stops as soon as the
// context reports Halted, or a rule returns an error.
func (e *Engine[C]) Run(c C) error {
	for _, r := range e.rules {
		if c.Halted() {
			return nil
		}
		if !r.Applies(c) {
			continue
		}
		if err := r.Execute(c); err != nil {
			return err
		}
	}
	return nil
}
