package rewrite

import (
	"errors"
	"fmt"

	"github.com/quarryql/quarry/internal/ir"
)

// A Rule is a local tree transformation that can be applied at a relational
// node. Apply returns the replacement node and whether anything changed; a
// rule that does not match returns its argument unchanged.
type Rule interface {
	Name() string
	Apply(rel ir.Relation) (ir.Relation, bool, error)
}

// GlobalRule marks rules that analyze the whole tree and are applied at the
// root only (dead-column elimination needs the full set of ancestors to
// know what is referenced).
type GlobalRule interface {
	Rule
	Global()
}

// DefaultMaxPasses caps the fixed-point loop. The cap guarantees
// termination in the presence of rule sets that could oscillate; reaching
// it stops rewriting without failing the compilation.
const DefaultMaxPasses = 10

// Options configures a rewrite run.
type Options struct {
	// Rules in declared priority order. Defaults to DefaultRules(nil).
	Rules []Rule

	// MaxPasses caps the fixed-point loop; zero means DefaultMaxPasses.
	MaxPasses int
}

// DefaultRules returns the standard rule list in priority order. protected
// lists the backend-declared columns that dead-column elimination must
// keep even when unreferenced (row markers and the like).
func DefaultRules(protected map[string]bool) []Rule {
	return []Rule{
		&simplifyPredicates{},
		&fuseProjections{},
		&pushdownFilter{},
		&pruneColumns{protected: protected},
	}
}

// RewriteLimitError reports that the fixed-point loop hit its pass cap
// before converging. It is advisory: the tree on the Result is valid and
// compilation proceeds with it.
type RewriteLimitError struct {
	Passes int
}

// Error implements the error interface.
func (e *RewriteLimitError) Error() string {
	return fmt.Sprintf("rewriting stopped after %d passes without converging", e.Passes)
}

// IsLimitExceeded reports whether err is (or wraps) a RewriteLimitError.
func IsLimitExceeded(err error) bool {
	var le *RewriteLimitError
	return errors.As(err, &le)
}

// Result is the outcome of a rewrite run.
type Result struct {
	// Root is the rewritten tree (the original root when nothing matched).
	Root ir.Relation

	// Passes is the number of whole passes executed.
	Passes int

	// Applied lists the names of rules that fired, in firing order.
	Applied []string

	// Converged is false when the pass cap stopped the loop early.
	Converged bool
}

// Limit returns the advisory cap error when the run did not converge,
// nil otherwise.
func (r *Result) Limit() error {
	if r.Converged {
		return nil
	}
	return &RewriteLimitError{Passes: r.Passes}
}

// Rewrite runs the fixed-point loop over root. Within one pass, each rule
// rewrites every matching site once, bottom-up, before the next rule runs;
// passes repeat until a full pass changes nothing or the cap is reached.
// The traversal order is fixed, so output is deterministic regardless of
// how the tree was built.
func Rewrite(root ir.Relation, opts Options) (*Result, error) {
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules(nil)
	}
	maxPasses := opts.MaxPasses
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}

	res := &Result{Root: root}
	for res.Passes < maxPasses {
		res.Passes++
		changedInPass := false
		for _, rule := range rules {
			var (
				next    ir.Relation
				changed bool
				err     error
			)
			if _, global := rule.(GlobalRule); global {
				next, changed, err = rule.Apply(res.Root)
			} else {
				next, changed, err = applyEverywhere(rule, res.Root)
			}
			if err != nil {
				return nil, fmt.Errorf("rewrite rule %s: %w", rule.Name(), err)
			}
			if changed {
				res.Root = next
				res.Applied = append(res.Applied, rule.Name())
				changedInPass = true
			}
		}
		if !changedInPass {
			res.Converged = true
			break
		}
	}
	return res, nil
}

// applyEverywhere walks rel bottom-up, rewriting children before parents
// and applying the rule once at each site.
func applyEverywhere(rule Rule, rel ir.Relation) (ir.Relation, bool, error) {
	inputs := ir.RelationInputs(rel)
	newInputs := make([]ir.Relation, len(inputs))
	childChanged := false
	for i, in := range inputs {
		sub, changed, err := applyEverywhere(rule, in)
		if err != nil {
			return nil, false, err
		}
		newInputs[i] = sub
		childChanged = childChanged || changed
	}

	cur := rel
	if childChanged {
		rebuilt, err := replaceInputs(rel, newInputs)
		if err != nil {
			return nil, false, err
		}
		cur = rebuilt
	}

	next, applied, err := rule.Apply(cur)
	if err != nil {
		return nil, false, err
	}
	if applied {
		cur = next
	}
	return cur, childChanged || applied, nil
}
