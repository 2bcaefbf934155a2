// ABOUTME: search and decode commands
// ABOUTME: Run track lookups against the best configured node
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lavago/lavago/pkg/track"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Aliases:   []string{"s"},
		Usage:     "Search for tracks",
		ArgsUsage: "QUERY...",
		Action:    search,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "kind",
				Aliases: []string{"k"},
				Usage:   "Source kind: " + strings.Join(kindNames(), ", "),
				Value:   string(track.KindYouTube),
			},
			&cli.BoolFlag{
				Name:  "url",
				Usage: "Treat the query as an identifier or URL instead of search text",
			},
			&cli.BoolFlag{
				Name:    "first",
				Aliases: []string{"1"},
				Usage:   "Only print the first search result",
			},
		},
	}
}

func kindNames() []string {
	names := make([]string, 0, len(track.Kinds()))
	for _, k := range track.Kinds() {
		names = append(names, string(k))
	}
	return names
}

func search(cliCtx *cli.Context) error {
	ctx, cancel := signalContext(cliCtx)
	defer cancel()

	query := strings.Join(cliCtx.Args().Slice(), " ")
	if query == "" {
		return errors.New("query is empty")
	}
	kind, ok := track.ParseKind(cliCtx.String("kind"))
	if !ok {
		return fmt.Errorf("unknown kind %q", cliCtx.String("kind"))
	}

	logger := newLogger(cliCtx, os.Stderr)
	pool, logger, err := openPool(cliCtx, logger, nil)
	if nil != err {
		return err
	}
	defer pool.Close()

	res, err := track.Search(ctx, kind, query, nil, track.SearchOptions{
		UseQuery:    !cliCtx.Bool("url"),
		ReturnFirst: cliCtx.Bool("first"),
		Provider:    pool,
	})
	if nil != err {
		return fmt.Errorf("search failed: %w", err)
	}

	if res.IsEmpty() {
		fmt.Println("No matches")
		return nil
	}
	if res.Type == track.ResultMultiTrack {
		fmt.Printf("%s (%d tracks)\n", res.MultiTrack.Name(), res.MultiTrack.Len())
	}
	for i, t := range res.All() {
		printTrack(i+1, t)
	}
	return nil
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Aliases:   []string{"d"},
		Usage:     "Decode encoded track IDs",
		ArgsUsage: "TRACK...",
		Action:    decode,
	}
}

func decode(cliCtx *cli.Context) error {
	ctx, cancel := signalContext(cliCtx)
	defer cancel()

	if cliCtx.NArg() == 0 {
		return errors.New("no tracks given")
	}

	logger := newLogger(cliCtx, os.Stderr)
	pool, logger, err := openPool(cliCtx, logger, nil)
	if nil != err {
		return err
	}
	defer pool.Close()

	n, err := pool.Best()
	if nil != err {
		return err
	}
	for i, encoded := range cliCtx.Args().Slice() {
		t, err := n.DecodeTrack(ctx, encoded)
		if nil != err {
			return fmt.Errorf("failed to decode track %d: %w", i+1, err)
		}
		printTrack(i+1, t)
	}
	return nil
}

func printTrack(n int, t *track.Track) {
	length := "live"
	if !t.IsStream() {
		length = t.Length().Truncate(time.Second).String()
	}
	fmt.Printf("%3d. %s - %s [%s] %s\n", n, t.Author(), t.Title(), length, t.URI())
	fmt.Printf("     %s\n", t.ID())
}
