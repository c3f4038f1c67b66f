package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/magicball/internal/decision"
	"github.com/roach88/magicball/internal/query"
)

// NewAnswersCommand creates the answers command group.
func NewAnswersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "answers",
		Short: "Manage the local answer pool",
		Long: `List, add and remove the answers stored locally.

The same collection backs history and the fallback answers used when the
remote API is unavailable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newAnswersListCommand(rootOpts))
	cmd.AddCommand(newAnswersAddCommand(rootOpts))
	cmd.AddCommand(newAnswersRemoveCommand(rootOpts))
	return cmd
}

func newAnswersListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored answers, newest first",
		Args:          checkArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ds, err := a.store.Fetch(cmd.Context(), query.All())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list answers", err)
			}

			out := formatter(rootOpts, cmd)
			if out.JSON() {
				return out.Success(ds)
			}
			w := cmd.OutOrStdout()
			if len(ds) == 0 {
				fmt.Fprintln(w, "No answers stored.")
				return nil
			}
			for _, d := range ds {
				fmt.Fprintf(w, "%s  %s\n", d.ID, d.Answer)
			}
			return nil
		},
	}
}

func newAnswersAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "add <answer>...",
		Short:         "Add an answer to the pool",
		Args:          checkArgs(cobra.MinimumNArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.factory.New(strings.Join(args, " "))
			if errors.Is(err, decision.ErrEmptyAnswer) {
				return WrapExitError(ExitCommandError, "invalid answer", err)
			}
			if err != nil {
				return WrapExitError(ExitFailure, "failed to create answer", err)
			}
			if err := a.store.Save(cmd.Context(), []decision.Decision{d}); err != nil {
				return WrapExitError(ExitFailure, "failed to save answer", err)
			}

			out := formatter(rootOpts, cmd)
			if out.JSON() {
				return out.Success(d)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s: %s\n", d.ID, d.Answer)
			return nil
		},
	}
}

func newAnswersRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <id>",
		Aliases:       []string{"rm"},
		Short:         "Remove an answer by id",
		Args:          checkArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			id := args[0]
			found, err := a.store.Fetch(cmd.Context(), query.All().Where(query.IDIn{IDs: []string{id}}))
			if err != nil {
				return WrapExitError(ExitFailure, "failed to look up answer", err)
			}
			if len(found) == 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("no answer with id %q", id))
			}
			if err := a.store.Remove(cmd.Context(), found[0]); err != nil {
				return WrapExitError(ExitFailure, "failed to remove answer", err)
			}

			out := formatter(rootOpts, cmd)
			if out.JSON() {
				return out.Success(found[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s: %s\n", found[0].ID, found[0].Answer)
			return nil
		},
	}
}
