package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quarryql/quarry/internal/catalog"
	"github.com/quarryql/quarry/internal/datatype"
	"github.com/quarryql/quarry/internal/ir"
	"github.com/quarryql/quarry/internal/lower"
	"github.com/quarryql/quarry/internal/rewrite"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Dialect   string
	Output    string // output file path
	NoRewrite bool
}

// CompileResult is the success payload of a compile run.
type CompileResult struct {
	SQL     string         `json:"sql"`
	Dialect string         `json:"dialect"`
	Schema  []SchemaColumn `json:"schema"`
	Rules   []string       `json:"rules,omitempty"` // rewrite rules that fired
}

// SchemaColumn describes one output column of the compiled query.
type SchemaColumn struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <catalog-dir> <pipeline-file>",
		Short: "Compile a pipeline file to dialect SQL",
		Long: `Compile a YAML pipeline against a CUE table catalog.

The pipeline is built into an immutable expression tree, rewritten to a
fixed point, and lowered to SQL for the selected dialect. The rendered
SQL and the output schema are printed (or written with --output).`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Dialect, "dialect", "d", "ansi", "target SQL dialect")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().BoolVar(&opts.NoRewrite, "no-rewrite", false, "skip the rewrite passes")

	return cmd
}

func runCompile(opts *CompileOptions, catalogDir, pipelineFile string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	run := uuid.Must(uuid.NewV7()).String()
	slog.Info("compile starting",
		"run", run,
		"catalog", catalogDir,
		"pipeline", pipelineFile,
		"dialect", opts.Dialect)

	root, err := loadAndBuild(formatter, catalogDir, pipelineFile)
	if err != nil {
		return err
	}

	var rules []string
	if !opts.NoRewrite {
		root, rules, err = rewriteTree(run, root)
		if err != nil {
			formatter.Error("E_REWRITE", err.Error(), nil)
			return WrapExitError(ExitFailure, "rewriting pipeline", err)
		}
	}

	backend, ok := lower.Get(opts.Dialect)
	if !ok {
		msg := fmt.Sprintf("unknown dialect %q (available: %s)", opts.Dialect, strings.Join(lower.Names(), ", "))
		formatter.Error("E_DIALECT", msg, nil)
		return WrapExitError(ExitCommandError, "selecting dialect", errors.New(msg))
	}

	query, err := lower.Lower(root, backend)
	if err != nil {
		code := "E_LOWER"
		if lower.IsUnsupported(err) {
			code = "E_UNSUPPORTED"
		}
		formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitFailure, "lowering pipeline", err)
	}
	slog.Info("compile finished", "run", run, "dialect", query.Dialect, "columns", query.Schema.Len())

	result := &CompileResult{
		SQL:     query.SQL,
		Dialect: query.Dialect,
		Schema:  schemaColumns(query.Schema.Fields()),
		Rules:   rules,
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(query.SQL+"\n"), 0o644); err != nil {
			formatter.Error("E_WRITE", fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
		formatter.VerboseLog("Wrote SQL to %s", opts.Output)
	}

	return outputCompileSuccess(formatter, run, result)
}

// loadAndBuild loads the catalog, parses the pipeline file, and builds the
// expression tree. Load failures exit with ExitCommandError, construction
// failures with ExitFailure.
func loadAndBuild(formatter *OutputFormatter, catalogDir, pipelineFile string) (ir.Relation, error) {
	cat, err := catalog.LoadDir(catalogDir)
	if err != nil {
		var loadErr *catalog.LoadError
		if errors.As(err, &loadErr) {
			formatter.Error(loadErr.Code, loadErr.Message, nil)
		} else {
			formatter.Error("E_CATALOG", err.Error(), nil)
		}
		return nil, WrapExitError(ExitCommandError, "loading catalog", err)
	}
	formatter.VerboseLog("Loaded %d table(s) from %s", cat.Len(), catalogDir)

	data, err := os.ReadFile(pipelineFile)
	if err != nil {
		formatter.Error("E_PIPELINE", err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "reading pipeline file", err)
	}
	pipeline, err := ParsePipeline(data)
	if err != nil {
		formatter.Error("E_PIPELINE", err.Error(), nil)
		return nil, WrapExitError(ExitFailure, "parsing pipeline", err)
	}

	root, err := pipeline.Build(cat)
	if err != nil {
		formatter.Error("E_BUILD", err.Error(), nil)
		return nil, WrapExitError(ExitFailure, "building pipeline", err)
	}
	return root, nil
}

// rewriteTree runs the default rewrite passes and logs what fired. A pass
// cap overrun is advisory: the partially rewritten tree is still valid.
func rewriteTree(run string, root ir.Relation) (ir.Relation, []string, error) {
	res, err := rewrite.Rewrite(root, rewrite.Options{})
	if err != nil {
		return nil, nil, err
	}
	if lim := res.Limit(); lim != nil {
		slog.Warn("rewrite did not converge", "run", run, "passes", res.Passes)
	}
	slog.Debug("rewrite finished",
		"run", run,
		"passes", res.Passes,
		"rules", strings.Join(res.Applied, ","))
	return res.Root, res.Applied, nil
}

func schemaColumns(fields []datatype.Field) []SchemaColumn {
	cols := make([]SchemaColumn, len(fields))
	for i, f := range fields {
		cols[i] = SchemaColumn{Name: f.Name, Type: f.Type.Name(), Nullable: f.Nullable}
	}
	return cols
}

// outputCompileSuccess outputs the compiled query.
func outputCompileSuccess(formatter *OutputFormatter, run string, result *CompileResult) error {
	if formatter.Format == "json" {
		return formatter.Success(run, result)
	}

	fmt.Fprintln(formatter.Writer, result.SQL)
	fmt.Fprintf(formatter.Writer, "\n-- dialect: %s\n", result.Dialect)
	for _, col := range result.Schema {
		marker := ""
		if col.Nullable {
			marker = "?"
		}
		fmt.Fprintf(formatter.Writer, "-- %s: %s%s\n", col.Name, col.Type, marker)
	}
	return nil
}
