package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/emojidash/internal/aggregate"
	"github.com/TobiSchelling/emojidash/internal/config"
	"github.com/TobiSchelling/emojidash/internal/database"
	"github.com/TobiSchelling/emojidash/internal/dataset"
	"github.com/TobiSchelling/emojidash/internal/logger"
	"github.com/TobiSchelling/emojidash/internal/metrics"
	"github.com/TobiSchelling/emojidash/internal/pipeline"
	"github.com/TobiSchelling/emojidash/internal/report"
	"github.com/TobiSchelling/emojidash/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	log        = zap.NewNop()
)

func main() {
	err := rootCmd.Execute()
	_ = log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "emojidash",
	Short:   "Festival emoji analytics dashboard",
	Long:    "emojidash normalizes spreadsheets of festival posts and serves emoji, sentiment and emotion views over them.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		log, err = logger.New(level)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		if path != "" {
			log.Debug("config loaded", zap.String("path", path))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(inspectCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("emojidash", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/emojidash/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to change the port, upload limit, seed or cache location.")
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local dashboard server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.New(reg)

		pipe, err := pipeline.New(cfg, db, log, m)
		if err != nil {
			return err
		}
		srv, err := server.New(cfg, pipe, m, log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Starting server at http://%s\n", cfg.Addr())
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, cfg.Addr(), log)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- report command ---

var (
	reportFestival  string
	reportSentiment string
	reportTopN      int
	reportJSON      bool
	reportSeed      uint64
)

var reportCmd = &cobra.Command{
	Use:   "report FILE.xlsx",
	Short: "Normalize a workbook and print its dashboard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("seed") {
			cfg.Normalize.Seed = reportSeed
		}
		topN := cfg.Dashboard.DefaultTopN
		if cmd.Flags().Changed("top-n") {
			topN = reportTopN
		}
		f := aggregate.Filter{Festival: reportFestival, Sentiment: reportSentiment, TopN: topN}
		if err := f.Validate(); err != nil {
			return err
		}

		pipe, db, err := cliPipeline()
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := ingestFile(cmd.Context(), pipe, args[0])
		if err != nil {
			return err
		}
		d, err := pipe.Dashboard(result.Table, f)
		if err != nil {
			return err
		}

		if reportJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		}
		fmt.Fprint(cmd.OutOrStdout(), report.Markdown(d))
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFestival, "festival", aggregate.All, "Festival to filter by")
	reportCmd.Flags().StringVar(&reportSentiment, "sentiment", aggregate.All, "Sentiment to filter by")
	reportCmd.Flags().IntVarP(&reportTopN, "top-n", "n", aggregate.DefaultTopN,
		fmt.Sprintf("Emoji to rank (%d-%d)", aggregate.MinTopN, aggregate.MaxTopN))
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Print the dashboard as JSON")
	reportCmd.Flags().Uint64Var(&reportSeed, "seed", 0, "Seed for generated columns")
}

// --- inspect command ---

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE.xlsx",
	Short: "Show what normalization does to a workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := os.Stat(args[0])
		if err != nil {
			return err
		}

		pipe, db, err := cliPipeline()
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := ingestFile(cmd.Context(), pipe, args[0])
		if err != nil {
			return err
		}
		t := result.Table

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "\nFile: %s (%s, modified %s)\n", info.Name(), humanize.Bytes(uint64(info.Size())), humanize.Time(info.ModTime()))
		fmt.Fprintf(out, "Rows: %s\n", humanize.Comma(int64(t.Len())))
		fmt.Fprintln(out, "Columns:")
		for _, col := range t.Columns {
			marker := ""
			if slices.Contains(t.Filled, col) {
				marker = " (generated)"
			}
			fmt.Fprintf(out, "  %s%s\n", col, marker)
		}

		if first, last, ok := dateSpan(t); ok {
			fmt.Fprintf(out, "Dates: %s to %s\n", first.Format(aggregate.DateLayout), last.Format(aggregate.DateLayout))
		}
		opts := aggregate.Options(t)
		fmt.Fprintf(out, "Festivals: %d, sentiments: %d, unique emoji: %d\n",
			len(opts.Festivals)-1, len(opts.Sentiments)-1, aggregate.UniqueEmojiCount(t))
		return nil
	},
}

func cliPipeline() (*pipeline.Pipeline, *database.DB, error) {
	// One-shot commands never reuse a cache, so keep it in memory.
	db, err := database.Open(database.MemoryPath, log)
	if err != nil {
		return nil, nil, err
	}
	pipe, err := pipeline.New(cfg, db, log, nil)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return pipe, db, nil
}

func ingestFile(ctx context.Context, pipe *pipeline.Pipeline, path string) (*pipeline.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	result, err := pipe.Ingest(ctx, pipeline.Upload{
		SessionID: "cli",
		FileName:  filepath.Base(path),
		Data:      data,
	})
	for i, step := range result.Steps {
		if step.Err != nil {
			fmt.Fprintf(os.Stderr, "Step %d/3: %s\n  Error: %v\n", i+1, step.Name, step.Err)
		} else {
			fmt.Fprintf(os.Stderr, "Step %d/3: %s\n  %s\n", i+1, step.Name, step.Summary)
		}
	}
	return result, err
}

func dateSpan(t *dataset.Table) (first, last time.Time, ok bool) {
	for i := range t.Records {
		r := &t.Records[i]
		if !r.HasTimestamp() {
			continue
		}
		if !ok || r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if !ok || r.Timestamp.After(last) {
			last = r.Timestamp
		}
		ok = true
	}
	return first, last, ok
}

func openDB() (*database.DB, error) {
	return database.Open(cfg.Cache.Path, log)
}
