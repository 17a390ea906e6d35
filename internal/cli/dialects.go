package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarryql/quarry/internal/lower"
)

// DialectsResult is the success payload of the dialects command.
type DialectsResult struct {
	Dialects []string `json:"dialects"`
}

// NewDialectsCommand creates the dialects command.
func NewDialectsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dialects",
		Short: "List registered SQL dialects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:    rootOpts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   rootOpts.Verbose,
			}
			names := lower.Names()
			if formatter.Format == "json" {
				return formatter.Success("", &DialectsResult{Dialects: names})
			}
			for _, name := range names {
				fmt.Fprintln(formatter.Writer, name)
			}
			return nil
		},
	}
}
