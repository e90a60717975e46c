// Package main provides a one-shot command line curation cycle.
//
// Usage:
//
//	curate -candidates posts.json -scores oracle.txt[,more.txt] [-size N] [-seed S] [-config path] [-format json|text]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/xfeed/internal/config"
	"github.com/thebtf/xfeed/internal/curation"
	"github.com/thebtf/xfeed/internal/db"
	"github.com/thebtf/xfeed/internal/oracle"
	"github.com/thebtf/xfeed/pkg/models"
)

type options struct {
	candidates string
	scores     string
	configPath string
	format     string
	size       int
	seed       int64
	debug      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.candidates, "candidates", "", "JSON file holding an array of candidate posts (required)")
	flag.StringVar(&opts.scores, "scores", "", "comma-separated oracle response files (required)")
	flag.StringVar(&opts.configPath, "config", config.Path(), "path to config.yaml")
	flag.StringVar(&opts.format, "format", "text", "output format: json or text")
	flag.IntVar(&opts.size, "size", 0, "feed size (0 uses default_feed_size)")
	flag.Int64Var(&opts.seed, "seed", 0, "exploration seed (0 derives it from the clock)")
	flag.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if opts.debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Curation failed")
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	if opts.candidates == "" || opts.scores == "" {
		return errors.New("-candidates and -scores are required")
	}
	if opts.format != "json" && opts.format != "text" {
		return fmt.Errorf("unknown format %q", opts.format)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	candidates, responses, err := loadInputs(ctx, opts.candidates, splitList(opts.scores))
	if err != nil {
		return err
	}

	decoded, err := oracle.NewDecoder(log.Logger).Decode(responses...)
	if err != nil {
		return err
	}

	store, err := db.Open(cfg)
	if err != nil {
		return fmt.Errorf("open reputation store: %w", err)
	}
	defer store.Close()

	engine := curation.NewEngine(store, curation.WithLogger(log.Logger))
	result, err := engine.Curate(ctx, curation.Request{
		Candidates:      candidates,
		Scores:          decoded.Scores,
		MalformedScores: decoded.Malformed,
		FeedSize:        opts.size,
		Seed:            opts.seed,
	}, cfg.Curation())
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return printFeed(out, result)
}

// loadInputs reads the candidate file and every oracle file concurrently.
func loadInputs(ctx context.Context, candidatesPath string, scorePaths []string) ([]models.Candidate, [][]byte, error) {
	var candidates []models.Candidate
	responses := make([][]byte, len(scorePaths))

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := readFile(gCtx, candidatesPath)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &candidates); err != nil {
			return fmt.Errorf("parse %s: %w", candidatesPath, err)
		}
		return nil
	})
	for i, path := range scorePaths {
		g.Go(func() error {
			data, err := readFile(gCtx, path)
			if err != nil {
				return err
			}
			responses[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return candidates, responses, nil
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printFeed(out io.Writer, result *models.CurationResult) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "cycle %s: %d entries from %d candidates, %d/%d exploration\n",
		result.CycleID, len(result.Entries), result.Considered,
		result.ExplorationSelected, result.ExplorationQuota)
	for i, e := range result.Entries {
		dup := ""
		if e.CollapsedCount > 1 {
			dup = fmt.Sprintf("(+%d %s)", e.CollapsedCount-1, e.CollapseReason)
		}
		fmt.Fprintf(tw, "%d.\t%.1f\t@%s\t%s\t%s\n", i+1, e.Score.Final, e.Candidate.Author, e.Score.Explanation, dup)
	}
	if d := result.Defects; d.Total() > 0 {
		fmt.Fprintf(tw, "defects: missing id %d, missing author %d, duplicate id %d, missing score %d, malformed %d, excluded %d, reputation %d\n",
			d.MissingIdentity, d.MissingAuthor, d.DuplicateIdentity, d.MissingScore, d.MalformedScore, d.ExcludedByOracle, d.ReputationUnavailable)
	}
	return tw.Flush()
}
