// ABOUTME: discover and mock commands
// ABOUTME: Find nodes over mDNS and run a local fake node for testing
package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lavago/lavago/internal/fakenode"
	"github.com/lavago/lavago/pkg/discovery"
)

func discoverCommand() *cli.Command {
	return &cli.Command{
		Name:   "discover",
		Usage:  "Find nodes advertised on the local network",
		Action: discover,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to listen for answers",
				Value: discovery.DefaultQueryTimeout,
			},
		},
	}
}

func discover(cliCtx *cli.Context) error {
	logger := newLogger(cliCtx, os.Stderr)

	m := discovery.NewManager(discovery.Config{
		QueryTimeout: cliCtx.Duration("timeout"),
		Logger:       logger,
	})
	defer m.Stop()

	nodes := m.Discover()
	if len(nodes) == 0 {
		fmt.Println("No nodes found")
		return nil
	}
	for _, n := range nodes {
		fmt.Printf("%s\t%s\n", n.Name, n.Address())
	}
	return nil
}

func mockCommand() *cli.Command {
	return &cli.Command{
		Name:   "mock",
		Usage:  "Run a fake node that serves canned lookups",
		Action: mock,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port",
				Value: 2333,
			},
			&cli.StringFlag{
				Name:    "password",
				Usage:   "Password clients must send",
				Value:   "youshallnotpass",
				EnvVars: []string{"LAVAGO_MOCK_PASSWORD"},
			},
			&cli.DurationFlag{
				Name:  "stats-interval",
				Usage: "How often to push stats",
				Value: 10 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "advertise",
				Usage: "Advertise the node over mDNS",
			},
		},
	}
}

func mock(cliCtx *cli.Context) error {
	ctx, cancel := signalContext(cliCtx)
	defer cancel()

	logger := newLogger(cliCtx, os.Stderr)
	port := cliCtx.Int("port")

	fake := fakenode.New(cliCtx.String("password"), logger)
	defer fake.Close()

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           fake.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cliCtx.Bool("advertise") {
		m := discovery.NewManager(discovery.Config{ServiceName: "lavago-mock", Port: port, Logger: logger})
		defer m.Stop()
		if err := m.Advertise(); nil != err {
			return fmt.Errorf("failed to advertise: %w", err)
		}
	}

	go fake.RunStats(ctx, cliCtx.Duration("stats-interval"))
	go func() {
		<-ctx.Done()
		server.Close()
	}()

	logger.Info().Int("port", port).Str("id", fake.ID).Msg("Fake node listening")
	if err := server.ListenAndServe(); nil != err && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
