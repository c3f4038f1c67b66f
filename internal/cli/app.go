package cli

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/magicball/internal/answer"
	"github.com/roach88/magicball/internal/ball"
	"github.com/roach88/magicball/internal/config"
	"github.com/roach88/magicball/internal/decision"
	"github.com/roach88/magicball/internal/remote"
	"github.com/roach88/magicball/internal/store"
	"github.com/roach88/magicball/internal/telemetry"
)

// app is the wired set of components a command works with.
type app struct {
	cfg      config.Config
	loc      *time.Location
	store    *store.Store
	factory  *decision.Factory
	counter  *answer.ShakeCounter
	ball     *ball.Ball
	shutdown telemetry.Shutdown
}

// openApp loads configuration, installs logging and telemetry, opens the
// store and seeds it on first launch. Callers must Close the result.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid timezone", err)
	}

	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	// Telemetry goes first so the store picks up the installed meter provider.
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     opts.Version,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to initialize telemetry", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		_ = shutdown(context.WithoutCancel(ctx))
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	a := &app{
		cfg:      cfg,
		loc:      loc,
		store:    st,
		factory:  decision.NewFactory(nil, nil),
		shutdown: shutdown,
	}

	// An empty presets list is an explicit choice and must not select the
	// built-in presets.
	presets := append([]string{}, cfg.Presets...)
	if _, err := answer.NewSeeder(st, a.factory, presets).Seed(ctx); err != nil {
		_ = a.Close()
		return nil, WrapExitError(ExitFailure, "failed to seed presets", err)
	}

	a.counter = answer.NewShakeCounter(st.Defaults())
	generator := answer.NewGenerator(st,
		answer.WithFactory(a.factory),
		answer.WithFallback(cfg.DefaultAnswer),
	)
	client := remote.New(cfg.API.BaseURL, cfg.API.Timeout.Std(),
		remote.WithQuestion(cfg.API.Question),
	)
	a.ball = ball.New(client, st, generator, a.counter,
		ball.WithTimeout(cfg.API.Timeout.Std()),
		ball.WithFactory(a.factory),
	)

	slog.Debug("magicball ready", "database", cfg.Database, "api", client.Endpoint())
	return a, nil
}

// Close releases the store and flushes telemetry.
func (a *app) Close() error {
	if a.ball != nil {
		a.ball.Cancel()
	}
	return errors.Join(
		a.store.Close(),
		a.shutdown(context.Background()),
	)
}
