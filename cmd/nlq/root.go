package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/nlq-engine/engine/ingest"
	"github.com/WessleyAI/nlq-engine/engine/schema"
	"github.com/WessleyAI/nlq-engine/internal/wire"
	"github.com/WessleyAI/nlq-engine/pkg/config"
	"github.com/WessleyAI/nlq-engine/pkg/natsutil"
)

// buildFunc assembles the engine for a command.
type buildFunc func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*wire.App, error)

func defaultBuild(ctx context.Context, cfg config.Config, logger *slog.Logger) (*wire.App, error) {
	return wire.Build(ctx, cfg, logger)
}

type cli struct {
	build      buildFunc
	configPath string
	verbose    bool

	cfg config.Config
	log *slog.Logger
}

func newRootCmd(build buildFunc) *cobra.Command {
	c := &cli{build: build}
	root := &cobra.Command{
		Use:          "nlq",
		Short:        "Query databases and documents in natural language",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := wire.LoadConfig(c.configPath)
			if err != nil {
				return err
			}
			level := cfg.SlogLevel()
			if c.verbose {
				level = slog.LevelDebug
			}
			c.cfg = cfg
			c.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("NLQ_CONFIG"), "path to YAML config file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(c.schemaCmd(), c.ingestCmd(), c.queryCmd())
	return root
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func (c *cli) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [connection-string]",
		Short: "Print the tables, columns and foreign keys of a database",
		Long: `Connects to a PostgreSQL (postgres://...) or SQLite (sqlite://path)
database and prints its schema as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sch, err := schema.Describe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, sch)
		},
	}
}

func (c *cli) ingestCmd() *cobra.Command {
	var (
		viaNATS bool
		jobID   string
		wait    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Extract, chunk and index documents",
		Long: `Runs the ingestion pipeline over the given pdf, docx and txt files and
prints the finished job. With --nats the files are handed to an ingestion
worker instead and the accepted job id is printed; adding --wait follows the
worker's status events and prints the finished job.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if jobID == "" {
				jobID = ingest.NewJobID()
			}
			if viaNATS {
				return c.submitRemote(cmd, ingest.Request{JobID: jobID, Paths: args}, wait)
			}

			app, err := c.build(ctx, c.cfg, c.log)
			if err != nil {
				return err
			}
			defer app.Close()
			job, err := app.Pipeline.Run(ctx, jobID, args)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, job); err != nil {
				return err
			}
			if job.Status.Failed() {
				return fmt.Errorf("ingestion %s", job.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&viaNATS, "nats", false, "submit to an ingestion worker over NATS")
	cmd.Flags().StringVar(&jobID, "job-id", "", "job id (generated when empty)")
	cmd.Flags().DurationVar(&wait, "wait", 0, "with --nats, wait up to this long for the job to finish")
	return cmd
}

func (c *cli) submitRemote(cmd *cobra.Command, req ingest.Request, wait time.Duration) error {
	if c.cfg.NATS.URL == "" {
		return fmt.Errorf("--nats requires NATS_URL")
	}
	app, err := c.build(cmd.Context(), c.cfg, c.log)
	if err != nil {
		return err
	}
	defer app.Close()

	// Subscribe before submitting so the terminal status cannot be missed.
	var finished chan ingest.Job
	if wait > 0 {
		finished = make(chan ingest.Job, 1)
		sub, err := natsutil.Subscribe(app.NATS, c.cfg.NATS.StatusSubject, "", func(_ context.Context, j ingest.Job) {
			if j.ID != req.JobID || !j.Status.Done() {
				return
			}
			select {
			case finished <- j:
			default:
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe to job status: %w", err)
		}
		defer sub.Unsubscribe()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	acc, err := natsutil.Request[ingest.Request, ingest.Accepted](ctx, app.NATS, c.cfg.NATS.RequestSubject, req)
	if err != nil {
		return fmt.Errorf("submit ingestion: %w", err)
	}
	if finished == nil {
		return printJSON(cmd, acc)
	}

	c.log.Info("ingestion accepted, waiting for completion", "job_id", acc.JobID, "wait", wait)
	waitCtx, cancelWait := context.WithTimeout(cmd.Context(), wait)
	defer cancelWait()
	select {
	case job := <-finished:
		if err := printJSON(cmd, job); err != nil {
			return err
		}
		if job.Status.Failed() {
			return fmt.Errorf("ingestion %s", job.Status)
		}
		return nil
	case <-waitCtx.Done():
		return fmt.Errorf("waiting for job %s: %w", acc.JobID, waitCtx.Err())
	}
}

func (c *cli) queryCmd() *cobra.Command {
	var (
		db   string
		docs []string
	)
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a natural-language question",
		Long: `Routes the question to SQL generation, document retrieval or both and
prints the result as JSON. --docs ingests files into the in-process index
before answering.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if db != "" {
				c.cfg.Database.URL = db
			}
			app, err := c.build(ctx, c.cfg, c.log)
			if err != nil {
				return err
			}
			defer app.Close()

			if len(docs) > 0 {
				job, err := app.Pipeline.Run(ctx, ingest.NewJobID(), docs)
				if err != nil {
					return err
				}
				c.log.Info("documents ingested", "chunks", job.Chunks, "failures", len(job.Failures))
			}

			res := app.Engine.Process(ctx, args[0])
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			if res.Failed() {
				return fmt.Errorf("query failed: %s", res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "database connection string")
	cmd.Flags().StringSliceVar(&docs, "docs", nil, "documents to ingest before querying")
	return cmd
}
