package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type statsOutput struct {
	Shakes  int64 `json:"shakes"`
	Answers int   `json:"answers"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Show shake and answer counts",
		Args:          checkArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			shakes, err := a.counter.Count(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read shake count", err)
			}
			answers, err := a.store.Count(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to count answers", err)
			}

			out := formatter(rootOpts, cmd)
			if out.JSON() {
				return out.Success(statsOutput{Shakes: shakes, Answers: answers})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "shakes: %d\nanswers: %d\n", shakes, answers)
			return nil
		},
	}
}
