package main

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"go-equalize/pkg/args"
	"go-equalize/pkg/batch"
	"go-equalize/pkg/config"
	"go-equalize/pkg/coordinator"
	"go-equalize/pkg/logger"
	"go-equalize/pkg/processor"
	"go-equalize/pkg/queue"
)

type app struct {
	fs          afero.Fs
	transformer batch.Transformer
	stderr      io.Writer
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"workers":    "workers",
	"log-level":  "log_level",
	"log-json":   "log_json",
	"report":     "report",
	"redis-addr": "redis.addr",
	"stream":     "redis.stream",
	"group":      "redis.group",
	"consumers":  "redis.consumer_count",
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "equalize <source-dir/> <dest-dir/>",
		Short: "Histogram-equalize every image in a directory",
		Long: "Equalizes the luma channel of every decodable image in source-dir and writes\n" +
			"the result to dest-dir under the same name. Both paths must end in a slash.",
		Args: func(_ *cobra.Command, argv []string) error {
			_, err := args.Validate(argv)
			return err
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, argv []string) error {
			paths, _ := args.Validate(argv)
			return a.runBatch(cmd, paths)
		},
	}

	defaults := config.Default()
	pf := root.PersistentFlags()
	pf.Int("workers", defaults.Workers, "number of images processed concurrently")
	pf.String("log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	pf.Bool("log-json", defaults.LogJSON, "log as JSON")
	pf.String("report", defaults.Report, "write a run report to this file")
	pf.String("redis-addr", defaults.Redis.Addr, "Redis address for enqueue and worker")
	pf.String("stream", defaults.Redis.Stream, "Redis stream holding equalization jobs")
	pf.String("group", defaults.Redis.Group, "Redis consumer group")

	root.AddCommand(a.enqueueCmd(), a.workerCmd())
	return root
}

func (a *app) enqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <source-dir/> <dest-dir/>",
		Short: "Queue every entry of source-dir on Redis for equalize workers",
		Args: func(_ *cobra.Command, argv []string) error {
			_, err := args.Validate(argv)
			return err
		},
		RunE: func(cmd *cobra.Command, argv []string) error {
			paths, _ := args.Validate(argv)
			cfg, _, err := a.setup(cmd)
			if err != nil {
				return err
			}
			client, err := connect(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			runID, n, err := coordinator.NewCoordinator(a.fs, client).Enqueue(cmd.Context(), paths.Source, paths.Dest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %d entries (run %s)\n", n, runID)
			return nil
		},
	}
}

func (a *app) workerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Equalize entries queued on Redis until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := a.setup(cmd)
			if err != nil {
				return err
			}
			client, err := connect(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			pool := processor.NewWorkerPool(client, a.fs, a.transformer, processor.Options{
				Workers:   cfg.Redis.ConsumerCount,
				WorkerID:  workerID(),
				Block:     cfg.Redis.BlockTimeout,
				ClaimIdle: cfg.Redis.ClaimIdle,
			})
			pool.Start(cmd.Context())
			return nil
		},
	}
	cmd.Flags().Int("consumers", config.Default().Redis.ConsumerCount, "number of concurrent consumers")
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, paths args.Paths) error {
	cfg, log, err := a.setup(cmd)
	if err != nil {
		return err
	}

	d := batch.NewDriver(a.fs, a.transformer, cfg.Workers)
	summary, err := d.Run(cmd.Context(), paths.Source, paths.Dest)
	if err != nil {
		return err
	}
	summary.Log(log)

	if cfg.Report == "" {
		return nil
	}
	f, err := a.fs.Create(cfg.Report)
	if err != nil {
		log.Error("failed to create report", "path", cfg.Report, "err", err)
		return nil
	}
	defer f.Close()
	if err := summary.WriteReport(f); err != nil {
		log.Error("failed to write report", "path", cfg.Report, "err", err)
	}
	return nil
}

// setup loads configuration, applying flags the user set explicitly, and
// builds the logger. The logger is also stored in the command context so
// the packages driven by the command log through it.
func (a *app) setup(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	overrides := map[string]any{}
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		overrides[key] = f.Value.String()
	}
	cfg, err := config.Load(overrides)
	if err != nil {
		return nil, nil, err
	}
	log := logger.NewLogger(&logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		Output:     a.stderr,
		JSON:       cfg.LogJSON,
		TimeFormat: "15:04:05",
	})
	cmd.SetContext(logger.ContextWithLogger(cmd.Context(), log))
	return cfg, log, nil
}

func connect(cmd *cobra.Command, cfg *config.Config) (*queue.RedisClient, error) {
	client, err := queue.NewRedisClient(cmd.Context(), queue.Options{
		Addr:   cfg.Redis.Addr,
		Stream: cfg.Redis.Stream,
		Group:  cfg.Redis.Group,
	})
	if err != nil {
		return nil, err
	}
	if err := client.EnsureGroup(cmd.Context()); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func workerID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
}
