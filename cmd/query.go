package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/threadscope/internal/api"
	"github.com/threadscope/internal/config"
	"github.com/threadscope/internal/query"
	"github.com/threadscope/internal/store"
	"github.com/threadscope/pkg/models"
)

// QueryCommand returns the CLI command for running one corpus query and
// streaming its events to stdout as NDJSON.
func QueryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Answer a question over the message corpus",
		ArgsUsage: "<question>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "corpus",
				Usage: "Read the corpus from a JSON file instead of the database",
			},
			&cli.StringFlag{
				Name:  "channel",
				Usage: "Restrict the corpus to one channel",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Cap the number of corpus messages",
			},
		},
		Action: runQuery,
	}
}

func runQuery(c *cli.Context) error {
	question := c.Args().First()
	if question == "" {
		return fmt.Errorf("usage: threadscope query \"<question>\"")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	router, err := buildRouter(c.Context, cfg)
	if err != nil {
		return err
	}

	var st store.Store
	if path := c.String("corpus"); path != "" {
		st, err = loadCorpusFile(path)
	} else {
		st, err = openStore()
	}
	if err != nil {
		return err
	}

	corpus, err := st.FetchCorpus(c.Context, c.String("channel"), c.Int("limit"))
	if err != nil {
		return err
	}
	if len(corpus) == 0 {
		return fmt.Errorf("corpus is empty, nothing to query")
	}

	engine := buildEngine(cfg, router)
	events := engine.Run(c.Context, query.NewJob(question, corpus))
	return api.WriteEvents(stdoutSink{bufio.NewWriter(os.Stdout)}, events)
}

// loadCorpusFile reads a JSON array of messages into an in-memory store.
func loadCorpusFile(path string) (store.Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus file: %w", err)
	}
	var messages []models.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse corpus file %s: %w", path, err)
	}
	st := store.NewMemoryStore()
	for _, m := range messages {
		st.AddMessage(m)
	}
	return st, nil
}

// stdoutSink adapts a buffered stdout writer to the event stream sink.
type stdoutSink struct {
	*bufio.Writer
}

func (s stdoutSink) Flush() {
	s.Writer.Flush()
}
