// ABOUTME: Entry point for the lavago command
// ABOUTME: Searches, decodes and monitors audio nodes from the terminal
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/lavago/lavago/internal/config"
	"github.com/lavago/lavago/internal/log"
	"github.com/lavago/lavago/internal/version"
	"github.com/lavago/lavago/pkg/node"
)

const (
	flagConfigFilePath = "config"
	flagLogLevel       = "log-level"
	flagPacked         = "packed"
)

func main() {
	logger := log.NewPretty(os.Stderr, zerolog.InfoLevel)
	if err := godotenv.Load(); nil != err {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug().Msg(".env file was not found")
		} else {
			logger.Fatal().Err(err).Msg("Failed to load .env file")
		}
	}

	app := &cli.App{
		Name:    version.Product,
		Version: version.Version,
		Suggest: true,
		Usage:   "Lavalink node client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfigFilePath,
				Aliases: []string{"c"},
				Usage:   "Config file path (default: $" + config.EnvVar + ")",
			},
			&cli.StringFlag{
				Name:    flagLogLevel,
				Aliases: []string{"l"},
				Usage:   "Log level",
				Value:   "info",
			},
			&cli.BoolFlag{
				Name:  flagPacked,
				Usage: "Log one JSON object per line",
			},
		},
		Commands: []*cli.Command{
			searchCommand(),
			decodeCommand(),
			monitorCommand(),
			discoverCommand(),
			mockCommand(),
		},
	}

	if err := app.Run(os.Args); nil != err {
		if errors.Is(err, context.Canceled) {
			logger.Trace().Msg("Application was canceled")
			return
		}
		logger.Fatal().Err(err).Msg("Application exited with error")
	}
}

// newLogger builds the logger selected by the global flags.
func newLogger(cliCtx *cli.Context, w io.Writer) zerolog.Logger {
	level := log.ParseLevel(cliCtx.String(flagLogLevel))
	if cliCtx.Bool(flagPacked) {
		return log.NewPacked(w, level)
	}
	return log.NewPretty(w, level)
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(cliCtx *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
}

// openPool loads the config and registers every configured node. The
// returned logger uses the config's log level unless --log-level was given.
func openPool(cliCtx *cli.Context, logger zerolog.Logger, configure func(*node.Config)) (*node.Pool, zerolog.Logger, error) {
	path := cliCtx.String(flagConfigFilePath)
	if path != "" {
		logger.Debug().Str("config_file_path", path).Msg("Loading config from file")
	} else {
		logger.Debug().Msg("Loading config from environment variable")
	}
	cfg, err := config.Load(path)
	if nil != err {
		return nil, logger, fmt.Errorf("failed to load config: %w", err)
	}
	if !cliCtx.IsSet(flagLogLevel) {
		logger = logger.Level(cfg.Level(logger.GetLevel()))
	}

	pool := node.NewPool()
	for _, nc := range cfg.NodeConfigs(logger) {
		if configure != nil {
			configure(&nc)
		}
		if _, err := pool.Add(nc); nil != err {
			pool.Close()
			return nil, logger, fmt.Errorf("failed to add node: %w", err)
		}
	}
	return pool, logger, nil
}
