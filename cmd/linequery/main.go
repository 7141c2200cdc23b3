// Command linequery asks a linematch server whether lines exist in its
// corpus.
//
//	linequery -a localhost:56747 query alice bob
//	linequery --tls --ca ca.pem batch -f queries.txt -j 8
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/linematch/internal/protocol"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/client"
)

var Version = "dev"

type result struct {
	Query string `json:"query"`
	Reply string `json:"reply,omitempty"`
	Found bool   `json:"found"`
	Error string `json:"error,omitempty"`
}

func main() {
	app := &cli.App{
		Name:                   "linequery",
		Usage:                  "Query a linematch server for exact lines",
		Version:                Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Server address",
				Value:   "localhost:56747",
				EnvVars: []string{"LINEQUERY_ADDR"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Per-query timeout",
				Value: 5 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "tls",
				Usage: "Connect over TLS",
			},
			&cli.StringFlag{
				Name:  "ca",
				Usage: "PEM CA bundle used to verify the server certificate",
			},
			&cli.StringFlag{
				Name:  "server-name",
				Usage: "Name to verify the server certificate against (defaults to the address host)",
			},
			&cli.BoolFlag{
				Name:  "insecure",
				Usage: "Skip server certificate verification",
			},
			&cli.BoolFlag{
				Name:  "newline",
				Usage: "Terminate each query with a newline (server must strip it)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print one JSON object per query",
			},
			&cli.BoolFlag{
				Name:    "exit-status",
				Aliases: []string{"e"},
				Usage:   "Exit with status 1 unless every query exists",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "query",
				Aliases:   []string{"q"},
				Usage:     "Look up each argument as one line",
				ArgsUsage: "<line> [line...]",
				Action:    queryCommand,
			},
			{
				Name:  "batch",
				Usage: "Look up every line of a file (or stdin)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "File with one query per line; - reads stdin",
						Value:   "-",
					},
					&cli.IntFlag{
						Name:    "jobs",
						Aliases: []string{"j"},
						Usage:   "Queries in flight at once",
						Value:   4,
					},
				},
				Action: batchCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "linequery: %v\n", err)
		os.Exit(1)
	}
}

func clientOptions(c *cli.Context) client.Options {
	return client.Options{
		Addr:               c.String("addr"),
		Timeout:            c.Duration("timeout"),
		Newline:            c.Bool("newline"),
		TLS:                c.Bool("tls") || c.String("ca") != "",
		CAFile:             c.String("ca"),
		ServerName:         c.String("server-name"),
		InsecureSkipVerify: c.Bool("insecure"),
	}
}

func queryCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("query needs at least one line", 2)
	}
	return runQueries(c, c.Args().Slice(), 1)
}

func batchCommand(c *cli.Context) error {
	var r io.Reader = os.Stdin
	if path := c.String("file"); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening query file: %w", err)
		}
		defer f.Close()
		r = f
	}
	queries, err := readQueries(r)
	if err != nil {
		return err
	}
	return runQueries(c, queries, c.Int("jobs"))
}

func readQueries(r io.Reader) ([]string, error) {
	var queries []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			queries = append(queries, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading queries: %w", err)
	}
	return queries, nil
}

// runQueries issues every query with at most jobs in flight and prints the
// results in input order.
func runQueries(c *cli.Context, queries []string, jobs int) error {
	opts := clientOptions(c)
	results := make([]result, len(queries))

	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(max(jobs, 1))
	for i, q := range queries {
		g.Go(func() error {
			results[i] = lookup(ctx, opts, q)
			return nil
		})
	}
	g.Wait()

	allFound := true
	enc := json.NewEncoder(c.App.Writer)
	for _, r := range results {
		allFound = allFound && r.Found
		if c.Bool("json") {
			if err := enc.Encode(r); err != nil {
				return err
			}
			continue
		}
		switch {
		case r.Error != "":
			fmt.Fprintf(c.App.Writer, "%s\terror: %s\n", r.Query, r.Error)
		default:
			fmt.Fprintf(c.App.Writer, "%s\t%s\n", r.Query, r.Reply)
		}
	}

	if c.Bool("exit-status") && !allFound {
		return cli.Exit("", 1)
	}
	return nil
}

func lookup(ctx context.Context, opts client.Options, query string) result {
	reply, err := client.Query(ctx, opts, query)
	if err != nil {
		return result{Query: query, Error: err.Error()}
	}
	return result{
		Query: query,
		Reply: strings.TrimSuffix(string(reply), "\n"),
		Found: reply == protocol.ReplyExists,
	}
}
