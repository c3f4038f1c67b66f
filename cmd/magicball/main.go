// Command magicball is a decision-making tool: shake the ball for an answer
// from the 8-ball API or from a local answer pool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/roach88/magicball/internal/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env if present; real environment variables win.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand(version)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		out := &cli.OutputFormatter{
			Format:    cmd.PersistentFlags().Lookup("format").Value.String(),
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
		}
		if fmtErr := out.Error(err); fmtErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	return cli.GetExitCode(err)
}
