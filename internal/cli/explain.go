package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarryql/quarry/internal/ir"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	NoRewrite bool
}

// ExplainResult is the success payload of an explain run.
type ExplainResult struct {
	Before string   `json:"before"`
	After  string   `json:"after,omitempty"`
	Rules  []string `json:"rules,omitempty"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "explain <catalog-dir> <pipeline-file>",
		Short:         "Print the expression tree before and after rewriting",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoRewrite, "no-rewrite", false, "print only the constructed tree")

	return cmd
}

func runExplain(opts *ExplainOptions, catalogDir, pipelineFile string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	root, err := loadAndBuild(formatter, catalogDir, pipelineFile)
	if err != nil {
		return err
	}

	result := &ExplainResult{Before: formatRelation(root)}
	if !opts.NoRewrite {
		rewritten, rules, err := rewriteTree("", root)
		if err != nil {
			formatter.Error("E_REWRITE", err.Error(), nil)
			return WrapExitError(ExitFailure, "rewriting pipeline", err)
		}
		result.After = formatRelation(rewritten)
		result.Rules = rules
	}

	if formatter.Format == "json" {
		return formatter.Success("", result)
	}

	fmt.Fprintln(formatter.Writer, "Plan:")
	fmt.Fprint(formatter.Writer, result.Before)
	if result.After != "" {
		fmt.Fprintf(formatter.Writer, "\nRewritten (%s):\n", appliedSummary(result.Rules))
		fmt.Fprint(formatter.Writer, result.After)
	}
	return nil
}

func appliedSummary(rules []string) string {
	if len(rules) == 0 {
		return "no rules fired"
	}
	return strings.Join(rules, ", ")
}

// formatRelation renders a tree as indented lines, one node per line,
// children beneath their parent.
func formatRelation(rel ir.Relation) string {
	var b strings.Builder
	writeRelation(&b, rel, 0)
	return b.String()
}

func writeRelation(b *strings.Builder, rel ir.Relation, depth int) {
	indent := strings.Repeat("  ", depth)
	switch t := rel.(type) {
	case *ir.Table:
		fmt.Fprintf(b, "%sTable %s %s\n", indent, t.Name(), t.Schema())
	case *ir.Projection:
		fmt.Fprintf(b, "%sProjection [%s]\n", indent, namedValues(t.Exprs()))
		writeRelation(b, t.Input(), depth+1)
	case *ir.Filter:
		fmt.Fprintf(b, "%sFilter %s\n", indent, valueString(t.Predicate()))
		writeRelation(b, t.Input(), depth+1)
	case *ir.Aggregation:
		fmt.Fprintf(b, "%sAggregation group=[%s] aggs=[%s]\n", indent, namedValues(t.GroupBy()), namedValues(t.Aggs()))
		writeRelation(b, t.Input(), depth+1)
	case *ir.Join:
		if on := t.On(); on != nil {
			fmt.Fprintf(b, "%sJoin %s on %s\n", indent, t.JoinKind(), valueString(on))
		} else {
			fmt.Fprintf(b, "%sJoin %s\n", indent, t.JoinKind())
		}
		writeRelation(b, t.Left(), depth+1)
		writeRelation(b, t.Right(), depth+1)
	case *ir.SetOp:
		all := ""
		if t.All() {
			all = " all"
		}
		fmt.Fprintf(b, "%sSetOp %s%s\n", indent, t.SetKind(), all)
		writeRelation(b, t.Left(), depth+1)
		writeRelation(b, t.Right(), depth+1)
	case *ir.Sort:
		fmt.Fprintf(b, "%sSort %s\n", indent, sortKeyString(t.Keys()))
		writeRelation(b, t.Input(), depth+1)
	case *ir.Limit:
		fmt.Fprintf(b, "%sLimit count=%d offset=%d\n", indent, t.Count(), t.Offset())
		writeRelation(b, t.Input(), depth+1)
	default:
		fmt.Fprintf(b, "%s%T\n", indent, rel)
	}
}

func namedValues(nvs []ir.NamedValue) string {
	parts := make([]string, len(nvs))
	for i, nv := range nvs {
		parts[i] = nv.Name + "=" + valueString(nv.Value)
	}
	return strings.Join(parts, ", ")
}

func sortKeyString(keys []ir.SortKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		dir := "asc"
		if k.Desc {
			dir = "desc"
		}
		parts[i] = valueString(k.Expr) + " " + dir
	}
	return strings.Join(parts, ", ")
}

// valueString renders an expression in a compact prefix-free notation for
// diagnostics. It is not SQL and makes no quoting guarantees.
func valueString(v ir.Value) string {
	switch t := v.(type) {
	case *ir.Literal:
		if t.Value() == nil {
			return "null"
		}
		return fmt.Sprintf("%v", t.Value())
	case *ir.ColumnRef:
		return t.Name()
	case *ir.UnaryExpr:
		return fmt.Sprintf("%s(%s)", t.Op(), valueString(t.Operand()))
	case *ir.BinaryExpr:
		return fmt.Sprintf("(%s %s %s)", valueString(t.Left()), t.Op(), valueString(t.Right()))
	case *ir.AggCall:
		if t.Arg() == nil {
			return string(t.Func()) + "(*)"
		}
		return fmt.Sprintf("%s(%s)", t.Func(), valueString(t.Arg()))
	case *ir.WindowExpr:
		var b strings.Builder
		if t.Arg() == nil {
			fmt.Fprintf(&b, "%s(*) over(", t.Func())
		} else {
			fmt.Fprintf(&b, "%s(%s) over(", t.Func(), valueString(t.Arg()))
		}
		if pb := t.PartitionBy(); len(pb) > 0 {
			parts := make([]string, len(pb))
			for i, p := range pb {
				parts[i] = valueString(p)
			}
			fmt.Fprintf(&b, "partition by %s", strings.Join(parts, ", "))
		}
		if ob := t.OrderBy(); len(ob) > 0 {
			if len(t.PartitionBy()) > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "order by %s", sortKeyString(ob))
		}
		b.WriteByte(')')
		return b.String()
	default:
		return fmt.Sprintf("%T", v)
	}
}
