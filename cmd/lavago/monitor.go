// ABOUTME: monitor command
// ABOUTME: Shows live node statistics in a TUI or as streaming logs
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/lavago/lavago/internal/ui"
	"github.com/lavago/lavago/pkg/node"
)

const stateInterval = time.Second

func monitorCommand() *cli.Command {
	return &cli.Command{
		Name:    "monitor",
		Aliases: []string{"m"},
		Usage:   "Watch node statistics and player events",
		Action:  monitor,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-tui",
				Usage: "Disable TUI, use streaming logs instead",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Log file path in TUI mode",
				Value: "lavago.log",
			},
		},
	}
}

func monitor(cliCtx *cli.Context) error {
	ctx, cancel := signalContext(cliCtx)
	defer cancel()

	if cliCtx.Bool("no-tui") {
		return monitorLogs(ctx, cliCtx)
	}

	// TUI mode: log only to file
	f, err := os.OpenFile(cliCtx.String("log-file"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if nil != err {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()
	logger := newLogger(cliCtx, f)

	program := ui.Run()
	onStats, onEvent := ui.Feed(program)

	pool, logger, err := openPool(cliCtx, logger, func(c *node.Config) {
		c.Reconnect = true
		c.OnStats = onStats
		c.OnEvent = onEvent
	})
	if nil != err {
		return err
	}
	defer pool.Close()

	go reportStates(ctx, pool, program)
	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	if _, err := program.Run(); nil != err {
		return fmt.Errorf("TUI failed: %w", err)
	}
	return nil
}

// reportStates polls connection states, which nodes do not push.
func reportStates(ctx context.Context, pool *node.Pool, program *tea.Program) {
	ticker := time.NewTicker(stateInterval)
	defer ticker.Stop()
	for {
		for _, n := range pool.Nodes() {
			program.Send(ui.StateMsg{Node: n.Identifier(), Address: n.Address(), State: n.State()})
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func monitorLogs(ctx context.Context, cliCtx *cli.Context) error {
	logger := newLogger(cliCtx, os.Stdout)

	pool, logger, err := openPool(cliCtx, logger, func(c *node.Config) {
		c.Reconnect = true
		c.OnStats = func(s *node.Stats) { logStats(logger, s) }
		c.OnEvent = func(e node.Event) {
			ev := logger.Info().Str("node_id", e.Node.Identifier()).Str("guild_id", e.GuildID).Str("type", string(e.Type))
			if e.Track != nil {
				ev = ev.Str("track", e.Track.Title())
			}
			ev.Msg("Event")
		}
	})
	if nil != err {
		return err
	}
	defer pool.Close()

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := pool.WaitConnected(waitCtx); nil != err {
		logger.Warn().Err(err).Msg("Not every node connected")
	}

	<-ctx.Done()
	return nil
}

func logStats(logger zerolog.Logger, s *node.Stats) {
	ev := logger.Info().
		Str("node_id", s.Node.Identifier()).
		Dur("uptime", s.Uptime).
		Int("players", s.Players).
		Int("playing", s.PlayingPlayers).
		Float64("memory_usage", s.MemoryUsage()).
		Float64("lavalink_load", s.LavalinkLoad)
	if s.HasFrameStats() {
		ev = ev.Int64("frames_sent", s.FramesSent).Int64("frames_deficit", s.FramesDeficit)
	}
	ev.Msg("Stats")
}
