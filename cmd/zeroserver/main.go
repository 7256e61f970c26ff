// Command zeroserver runs the self-play/optimization training coordinator:
// it accepts worker connections over TCP and drives them through the
// iteration loop described by internal/controller. Grounded on
// cmd/server/main.go's kong CLI, zerolog setup, and signal-driven shutdown.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"zeroserver/internal/config"
	"zeroserver/internal/controller"
	"zeroserver/internal/netserver"
	"zeroserver/internal/pool"
	"zeroserver/internal/statusview"
	"zeroserver/internal/trainlog"
)

// CLI is the command-line surface; most fields override the config file
// when set, the same two-layer precedence cmd/server/main.go uses for its
// own Config struct.
type CLI struct {
	Addr              string `kong:"default=':9999',help='Address to listen for worker connections on'"`
	Debug             bool   `kong:"help='Enable debug logging'"`
	ConfigFile        string `kong:"name='config',default='zeroserver.hcl',help='Path to an HCL config file'"`
	TrainingDirectory string `kong:"help='Training directory (overrides config file)'"`
	StartIteration    int    `kong:"help='First iteration to run (overrides config file)'"`
	EndIteration      int    `kong:"help='Last iteration to run (overrides config file)'"`
	GamesPerIteration int    `kong:"help='Self-play games to collect per iteration (overrides config file)'"`
	Seed              *int64 `kong:"help='Deterministic RNG seed (overrides config file)'"`
	TUI               bool   `kong:"name='tui',help='Show a live status dashboard alongside the stderr logs'"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("zeroserver"),
		kong.Description("Distributed self-play training coordinator"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	level := zerolog.InfoLevel
	if cli.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()

	cfg, err := config.LoadFile(cli.ConfigFile)
	kctx.FatalIfErrorf(err)
	applyCLIOverrides(&cfg, cli)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	initialModelIteration, err := config.ParseModelIteration(cfg.WeightFileName)
	kctx.FatalIfErrorf(err)

	trainLogger, err := trainlog.New(cfg.TrainingDirectory)
	kctx.FatalIfErrorf(err)
	defer trainLogger.Close()

	rng := cfg.NewRand()
	p := pool.New(cfg, trainLogger, rng, initialModelIteration)
	ctrl := controller.New(cfg, p, trainLogger, nil)

	if cli.TUI {
		statuses := make(chan controller.Status, 1)
		ctrl.Snapshot = func(s controller.Status) {
			select {
			case statuses <- s:
			default:
			}
		}
		go statusview.Run(statuses)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// runCtx is cancelled both by a signal and by ctrl.Run completing on its
	// own (end of EndIteration); errgroup's own cancellation only fires on
	// the first non-nil error, which a clean run never produces, so without
	// this RunKeepAlive would block forever and group.Wait would never
	// return.
	runCtx, cancelRun := context.WithCancel(sigCtx)
	defer cancelRun()

	srv := netserver.New(p, logger)

	group, gctx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return srv.Start(gctx, cli.Addr)
	})
	group.Go(func() error {
		return ctrl.RunKeepAlive(gctx)
	})
	group.Go(func() error {
		err := ctrl.Run(gctx)
		srv.Shutdown()
		cancelRun()
		return err
	})

	logger.Info().
		Str("addr", cli.Addr).
		Str("training_directory", cfg.TrainingDirectory).
		Int("start_iteration", cfg.StartIteration).
		Int("end_iteration", cfg.EndIteration).
		Int("games_per_iteration", cfg.GamesPerIteration).
		Msg("zeroserver starting")

	// RunKeepAlive returns ctx.Err() (context.Canceled) once runCtx is
	// cancelled, whether that cancellation came from a signal or from
	// ctrl.Run finishing normally, and ctrl.Run returns it too when a signal
	// stops it; srv.Start returns nil once Shutdown has closed its listener.
	// None of these is a failure worth exit 1.
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("zeroserver exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("zeroserver shutdown complete")
}

func applyCLIOverrides(cfg *config.Config, cli CLI) {
	if cli.TrainingDirectory != "" {
		cfg.TrainingDirectory = cli.TrainingDirectory
	}
	if cli.StartIteration != 0 {
		cfg.StartIteration = cli.StartIteration
	}
	if cli.EndIteration != 0 {
		cfg.EndIteration = cli.EndIteration
	}
	if cli.GamesPerIteration != 0 {
		cfg.GamesPerIteration = cli.GamesPerIteration
	}
	if cli.Seed != nil {
		cfg.Seed = *cli.Seed
		cfg.AutoSeed = false
	}
}
