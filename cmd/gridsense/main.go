package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gridsense/internal/config"
	"gridsense/internal/logging"
	"gridsense/internal/pipeline"
	"gridsense/internal/reasoning"
	"gridsense/internal/table"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration

	// Analyze flags
	sheetPath string
	sheetID   string
	asJSON    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gridsense",
	Short: "gridsense - adaptive analysis for tabular data",
	Long: `gridsense answers natural-language questions about tabular data.

It profiles the data, synthesizes a small analysis procedure via an external
reasoning model, runs it in an interpreted sandbox, and returns a plain-language
answer plus chart and table descriptors. When any stage fails, it degrades to a
guaranteed basic analysis instead of erroring.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		if err := logging.InitAudit(); err != nil {
			logger.Warn("audit logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		logging.CloseAudit()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [request]",
	Short: "Analyze a CSV or JSON sheet with a natural-language request",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		request := strings.Join(args, " ")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client, err := reasoning.New(cfg.Reasoning)
		if err != nil {
			return err
		}

		raw, err := loadSheet(sheetPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		controller := pipeline.NewController(client, cfg)
		logger.Info("analyzing sheet",
			zap.String("sheet", sheetPath),
			zap.String("request", request))

		resp, err := controller.Analyze(ctx, pipeline.Request{
			Message:       request,
			Sheets:        []pipeline.Sheet{{ID: sheetID, Raw: raw}},
			ActiveSheetID: sheetID,
		})
		if err != nil {
			return err
		}

		return printResponse(resp)
	},
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if cfg.Reasoning.APIKey != "" {
			return cfg, nil
		}
	}
	return config.Detect(workspace)
}

func loadSheet(path string) (table.Raw, error) {
	f, err := os.Open(path)
	if err != nil {
		return table.Raw{}, fmt.Errorf("failed to open sheet: %w", err)
	}
	defer f.Close()

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		return table.ReadJSON(f)
	}
	return table.ReadCSV(f)
}

func printResponse(resp *pipeline.Response) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Println(resp.Text)
	fmt.Println()
	for _, chart := range resp.Charts {
		fmt.Printf("[chart] %s (%s: %s vs %s, %d rows)\n",
			chart.Title, chart.Kind, chart.XField, strings.Join(chart.YFields, ", "), len(chart.Data))
	}
	for _, tbl := range resp.Tables {
		fmt.Printf("[table] %s (%d rows)\n", tbl.Title, len(tbl.Data))
	}
	fmt.Printf("\n%d rows x %d columns analyzed in %dms",
		resp.Metadata.RowsAnalyzed, resp.Metadata.ColumnsAnalyzed, resp.Metadata.ElapsedMS)
	if resp.Metadata.Degraded {
		fmt.Print(" (basic analysis)")
	}
	fmt.Println()
	return nil
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (JSON or YAML)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall request timeout")

	analyzeCmd.Flags().StringVarP(&sheetPath, "sheet", "s", "", "CSV or JSON file to analyze")
	analyzeCmd.Flags().StringVar(&sheetID, "sheet-id", "sheet-1", "identifier for the sheet")
	analyzeCmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	_ = analyzeCmd.MarkFlagRequired("sheet")

	rootCmd.AddCommand(analyzeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
