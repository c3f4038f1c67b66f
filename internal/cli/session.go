package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/magicball/internal/decision"
	"github.com/roach88/magicball/internal/history"
	"github.com/roach88/magicball/internal/query"
	"github.com/roach88/magicball/internal/store"
)

// sessionEvent is one line of session output in JSON mode.
type sessionEvent struct {
	Event    string         `json:"event"`
	Count    int            `json:"count"`
	Inserted []int          `json:"inserted,omitempty"`
	Deleted  []int          `json:"deleted,omitempty"`
	Modified []int          `json:"modified,omitempty"`
	Items    []history.Item `json:"items,omitempty"`
	Answer   *history.Item  `json:"answer,omitempty"`
	Source   string         `json:"source,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// session runs the interactive loop over one live observer.
type session struct {
	app    *app
	obs    *store.Observer
	w      io.Writer
	asJSON bool
}

// NewSessionCommand creates the session command.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Interactive session with live history updates",
		Long: `Read commands from stdin, one per line, while observing the answer history.

Commands:
  list            print the current answers with their index
  add <answer>    add an answer
  rm <index>      remove the answer at index
  shake           shake the ball
  quit            end the session

Every change to the history is reported as the indexes inserted, deleted
and modified.`,
		Args:          checkArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(rootOpts, cmd)
		},
	}
}

func runSession(rootOpts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	s := &session{
		app:    a,
		obs:    a.store.Observe(query.All()),
		w:      cmd.OutOrStdout(),
		asJSON: rootOpts.Format == "json",
	}
	defer s.obs.Close()

	if err := s.obs.Observe(cmd.Context(), s.onChange); err != nil {
		return WrapExitError(ExitFailure, "failed to observe history", err)
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		if err := cmd.Context().Err(); err != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := s.exec(cmd, line); quit {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return WrapExitError(ExitFailure, "failed to read input", err)
	}
	return nil
}

// exec runs one command line and reports whether the session should end.
func (s *session) exec(cmd *cobra.Command, line string) bool {
	ctx := cmd.Context()
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "quit", "exit":
		return true

	case "list":
		ds := s.obs.Snapshot()
		items := make([]history.Item, 0, len(ds))
		for _, d := range ds {
			items = append(items, history.Present(d, s.app.loc))
		}
		if s.asJSON {
			s.emit(sessionEvent{Event: "list", Count: len(items), Items: items})
			return false
		}
		for i, item := range items {
			fmt.Fprintf(s.w, "%d  %s  %s\n", i, item.Date, item.Answer)
		}

	case "add":
		d, err := s.app.factory.New(rest)
		if err != nil {
			s.fail(err)
			return false
		}
		if err := s.app.store.Save(ctx, []decision.Decision{d}); err != nil {
			s.fail(err)
		}

	case "rm", "remove":
		i, err := strconv.Atoi(rest)
		if err != nil {
			s.fail(fmt.Errorf("rm: index must be a number, got %q", rest))
			return false
		}
		d, ok := s.obs.ItemAt(i)
		if !ok {
			s.fail(fmt.Errorf("rm: no answer at index %d", i))
			return false
		}
		if err := s.app.store.Remove(ctx, d); err != nil {
			s.fail(err)
		}

	case "shake":
		res, err := s.app.ball.Shake(ctx)
		if err != nil {
			s.fail(err)
			return false
		}
		item := history.Present(res.Decision, s.app.loc)
		if s.asJSON {
			s.emit(sessionEvent{Event: "shake", Count: s.obs.Count(), Answer: &item, Source: string(res.Source)})
			return false
		}
		fmt.Fprintf(s.w, "shake: %s (%s)\n", item.Answer, res.Source)

	default:
		s.fail(fmt.Errorf("unknown command %q", verb))
	}
	return false
}

// onChange reports observer notifications. It runs under the store write
// lock and must not mutate the store.
func (s *session) onChange(c store.Change) {
	switch c.Kind {
	case store.ChangeInitial:
		if s.asJSON {
			s.emit(sessionEvent{Event: "initial", Count: len(c.Decisions)})
			return
		}
		fmt.Fprintf(s.w, "initial: %d answers\n", len(c.Decisions))
	case store.ChangeModify:
		if s.asJSON {
			s.emit(sessionEvent{
				Event:    "modify",
				Count:    len(c.Decisions),
				Inserted: c.Inserted,
				Deleted:  c.Deleted,
				Modified: c.Modified,
			})
			return
		}
		fmt.Fprintf(s.w, "changed: inserted %v, deleted %v, modified %v (%d answers)\n",
			c.Inserted, c.Deleted, c.Modified, len(c.Decisions))
	case store.ChangeError:
		if s.asJSON {
			s.emit(sessionEvent{Event: "error", Error: c.Err.Error()})
			return
		}
		fmt.Fprintf(s.w, "observer stopped: %v\n", c.Err)
	}
}

func (s *session) fail(err error) {
	if s.asJSON {
		s.emit(sessionEvent{Event: "error", Count: s.obs.Count(), Error: err.Error()})
		return
	}
	fmt.Fprintf(s.w, "error: %v\n", err)
}

func (s *session) emit(ev sessionEvent) {
	_ = json.NewEncoder(s.w).Encode(ev)
}
