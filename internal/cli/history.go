package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/magicball/internal/history"
	"github.com/roach88/magicball/internal/query"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	ByMonth   bool
	Ascending bool
	Contains  string
	Since     string // YYYY-MM-DD in the configured timezone
}

// sinceLayout is the accepted --since date format.
const sinceLayout = "2006-01-02"

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded answers",
		Long: `Show recorded answers, newest first.

Answers are upper-cased for display. With --by-month they are grouped into
calendar months of the configured timezone.`,
		Args:          checkArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.ByMonth, "by-month", false, "group answers by calendar month")
	cmd.Flags().BoolVar(&opts.Ascending, "asc", false, "oldest first")
	cmd.Flags().StringVar(&opts.Contains, "contains", "", "only answers containing this text (case-sensitive)")
	cmd.Flags().StringVar(&opts.Since, "since", "", "only answers created on or after this date (YYYY-MM-DD)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := opts.buildQuery(a.loc)
	if err != nil {
		return err
	}

	ds, err := a.store.Fetch(cmd.Context(), q)
	if err != nil {
		var verr *query.ValidationError
		if errors.As(err, &verr) {
			return WrapExitError(ExitCommandError, "invalid history filter", err)
		}
		return WrapExitError(ExitFailure, "failed to read history", err)
	}

	out := formatter(opts.RootOptions, cmd)
	w := cmd.OutOrStdout()

	if opts.ByMonth {
		sections := history.Sections(ds, a.loc, opts.Ascending)
		if out.JSON() {
			return out.Success(sections)
		}
		for i, sec := range sections {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintln(w, sec.Header)
			for _, item := range sec.Items {
				fmt.Fprintf(w, "  %s  %s\n", item.Date, item.Answer)
			}
		}
		return nil
	}

	items := make([]history.Item, 0, len(ds))
	for _, d := range ds {
		items = append(items, history.Present(d, a.loc))
	}
	if out.JSON() {
		return out.Success(items)
	}
	for _, item := range items {
		fmt.Fprintf(w, "%s  %s\n", item.Date, item.Answer)
	}
	return nil
}

// buildQuery builds the store query selected by the flags.
func (o *HistoryOptions) buildQuery(loc *time.Location) (query.Query, error) {
	var preds []query.Predicate
	if o.Contains != "" {
		preds = append(preds, query.AnswerContains{Substring: o.Contains})
	}
	if o.Since != "" {
		from, err := time.ParseInLocation(sinceLayout, o.Since, loc)
		if err != nil {
			return query.Query{}, WrapExitError(ExitCommandError, "invalid --since date", err)
		}
		preds = append(preds, query.CreatedBetween{From: from})
	}

	q := query.All()
	if len(preds) > 0 {
		q = q.Where(query.And{Predicates: preds})
	}
	if o.Ascending {
		q = q.OrderBy(query.Asc(query.FieldCreatedAt))
	}
	return q, nil
}
