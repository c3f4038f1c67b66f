package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/magicball/internal/ball"
	"github.com/roach88/magicball/internal/history"
)

// shakeOutput is the JSON payload of the shake command.
type shakeOutput struct {
	ball.Result
	Display history.Item `json:"display"`
}

// NewShakeCommand creates the shake command.
func NewShakeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shake",
		Short: "Shake the ball for an answer",
		Long: `Ask the remote 8-ball API for an answer.

If the API is unreachable, slow or returns nothing usable, the answer is drawn
from the local answer pool instead. Remote answers are recorded in history.`,
		Args:          checkArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShake(rootOpts, cmd)
		},
	}
}

func runShake(rootOpts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.ball.Shake(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "shake cancelled", err)
	}

	out := formatter(rootOpts, cmd)
	item := history.Present(res.Decision, a.loc)
	out.VerboseLog("answer %s created %s", res.Decision.ID, item.Date)

	if out.JSON() {
		return out.Success(shakeOutput{Result: res, Display: item})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, item.Answer)
	fmt.Fprintf(w, "source: %s, shakes: %d\n", res.Source, res.Shakes)
	return nil
}
