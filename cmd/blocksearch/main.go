package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/logger"
)

// newPublisher is swapped in tests.
var newPublisher = func(cfg config.KafkaConfig) kafka.Publisher {
	return kafka.NewProducer(cfg, cfg.Topics.Reindex)
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	corpusFlag := &cli.StringFlag{
		Name:     "corpus",
		Aliases:  []string{"c"},
		Usage:    "Path to a YAML or JSON corpus file",
		Required: true,
	}
	queryFlag := &cli.StringFlag{
		Name:    "query",
		Aliases: []string{"q"},
		Usage:   "Search query",
	}
	blockFlag := &cli.IntFlag{
		Name:     "block",
		Aliases:  []string{"b"},
		Usage:    "Block id",
		Required: true,
	}
	searchFlags := []cli.Flag{
		&cli.BoolFlag{Name: "no-fuzzy", Usage: "Disable fuzzy expansion of literal terms"},
		&cli.BoolFlag{Name: "only-matches", Usage: "Request only the matched blocks"},
		&cli.IntFlag{Name: "radius", Usage: "Include neighbouring blocks within this distance in the same section"},
	}

	return &cli.App{
		Name:   "blocksearch",
		Usage:  "Search, highlight and snippet block corpora",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Optional service config file for engine, snippet and kafka settings",
				EnvVars: []string{"BS_CONFIG"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "query",
				Usage:  "Run a query and print the matching block ids",
				Action: queryCommand,
				Flags: append([]cli.Flag{
					corpusFlag,
					queryFlag,
					&cli.BoolFlag{Name: "highlight", Usage: "Also print highlight ranges per block"},
				}, searchFlags...),
			},
			{
				Name:   "highlight",
				Usage:  "Print the highlight ranges of a query in one block",
				Action: highlightCommand,
				Flags:  append([]cli.Flag{corpusFlag, queryFlag, blockFlag}, searchFlags...),
			},
			{
				Name:   "snippet",
				Usage:  "Print the snippet window of a query in one block",
				Action: snippetCommand,
				Flags:  append([]cli.Flag{corpusFlag, queryFlag, blockFlag}, searchFlags...),
			},
			{
				Name:   "stats",
				Usage:  "Index a corpus and print its statistics",
				Action: statsCommand,
				Flags:  []cli.Flag{corpusFlag},
			},
			{
				Name:   "reindex",
				Usage:  "Publish a re-index request for a running search service",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    "Corpus name as registered by the service",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Send this corpus file inline instead of reloading from the configured source",
					},
					&cli.StringSliceFlag{
						Name:  "brokers",
						Usage: "Kafka brokers, overriding the config",
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	logger.Setup(c.String("log-level"), "text")
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

// openEngine indexes the corpus file synchronously.
func openEngine(c *cli.Context) (*searcher.Searcher, *corpus.Corpus, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	corp, err := corpus.FileSource{Path: c.String("corpus")}.Load(c.Context)
	if err != nil {
		return nil, nil, err
	}
	s := searcher.New(cfg.Engine, cfg.Snippet, searcher.WithMetrics(nil, c.String("corpus")))
	version, err := s.BuildIndex(corp)
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("corpus indexed", "file", c.String("corpus"), "blocks", len(corp.Blocks), "version", version)
	return s, corp, nil
}

func searchOptions(c *cli.Context) searcher.SearchOptions {
	return searcher.SearchOptions{
		FuzzyOn:       !c.Bool("no-fuzzy"),
		OnlyMatches:   c.Bool("only-matches"),
		ContextRadius: c.Int("radius"),
	}
}

func queryCommand(c *cli.Context) error {
	s, _, err := openEngine(c)
	if err != nil {
		return err
	}
	result := s.Search(c.String("query"), searchOptions(c))
	out := map[string]any{"result": result}
	if c.Bool("highlight") {
		out["highlights"] = s.HighlightResult(result)
	}
	return printJSON(c, out)
}

func highlightCommand(c *cli.Context) error {
	s, _, err := openEngine(c)
	if err != nil {
		return err
	}
	ranges, err := s.HighlightRangesWith(c.Int("block"), c.String("query"), searchOptions(c))
	if err != nil {
		return err
	}
	return printJSON(c, ranges)
}

func snippetCommand(c *cli.Context) error {
	s, corp, err := openEngine(c)
	if err != nil {
		return err
	}
	id := c.Int("block")
	window, err := s.SnippetWindowWith(id, c.String("query"), searchOptions(c))
	if err != nil {
		return err
	}
	if window == nil {
		fmt.Fprintln(c.App.Writer, "whole block")
		return nil
	}
	for _, b := range corp.Blocks {
		if b.ID == id {
			fmt.Fprintf(c.App.Writer, "[%d,%d) %s\n", window.Start, window.End, b.Text[window.Start:window.End])
		}
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	s, _, err := openEngine(c)
	if err != nil {
		return err
	}
	return printJSON(c, s.Stats())
}

func reindexCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if brokers := c.StringSlice("brokers"); len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	}
	req := consumer.ReindexRequest{Corpus: c.String("name")}
	if path := c.String("file"); path != "" {
		corp, err := corpus.FileSource{Path: path}.Load(c.Context)
		if err != nil {
			return err
		}
		req.Blocks = corp.Blocks
		req.Sections = corp.Sections
	}

	pub := newPublisher(cfg.Kafka)
	defer pub.Close()
	if err := consumer.Publish(c.Context, pub, req); err != nil {
		return err
	}
	mode := "reload from source"
	if req.Inline() {
		mode = fmt.Sprintf("%d inline blocks", len(req.Blocks))
	}
	fmt.Fprintf(c.App.Writer, "reindex requested for %s (%s) via %s\n",
		req.Corpus, mode, strings.Join(cfg.Kafka.Brokers, ","))
	return nil
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
