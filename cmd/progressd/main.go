package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/theprogressmethod/telbot-sub003/internal/config"
	"github.com/theprogressmethod/telbot-sub003/internal/gateway"
	"github.com/theprogressmethod/telbot-sub003/internal/profile"
	"github.com/theprogressmethod/telbot-sub003/internal/rules"
	"github.com/theprogressmethod/telbot-sub003/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "progressd",
	Short: "progressd - attendance analytics and adaptive personalization",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the full service (scheduler + delivery channels)",
	RunE:  runServe,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a one-shot analysis of a user or a whole pod",
	RunE:  runAnalyze,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directories",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show progressd status",
	RunE:  runStatus,
}

var (
	userFlag string
	podFlag  string
)

func init() {
	analyzeCmd.Flags().StringVarP(&userFlag, "user", "u", "", "User ID to analyze")
	analyzeCmd.Flags().StringVarP(&podFlag, "pod", "p", "", "Pod ID")
	rootCmd.AddCommand(serveCmd, analyzeCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	return runAnalyzeTo(os.Stdout)
}

// runAnalyzeTo runs the analyze command with an injectable writer for testing
func runAnalyzeTo(out io.Writer) error {
	if podFlag == "" {
		return fmt.Errorf("--pod is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.New(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ruleset := rules.DefaultRules()
	if cfg.Analysis.RulesPath != "" {
		if loaded, err := rules.LoadRules(cfg.Analysis.RulesPath); err == nil {
			ruleset = loaded
		}
	}

	analyzer := profile.NewAnalyzer(st, ruleset, profile.Options{
		WindowWeeks:     cfg.Analysis.WindowWeeks,
		PodWindowWeeks:  cfg.Analysis.PodWindowWeeks,
		AtRiskThreshold: cfg.Analysis.AtRiskThreshold,
	})

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if userFlag != "" {
		result, err := analyzer.AnalyzeUser(userFlag, podFlag)
		if err != nil {
			return fmt.Errorf("analyze user: %w", err)
		}
		return enc.Encode(result)
	}

	result, err := analyzer.AnalyzePod(podFlag)
	if err != nil {
		return fmt.Errorf("analyze pod: %w", err)
	}
	return enc.Encode(result)
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(filepath.Join(cfgDir, "data"), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to enable channels\n", cfgPath)
	fmt.Println("  2. Or set PROGRESSD_TELEGRAM_TOKEN for digest delivery")
	fmt.Println("  3. Run 'progressd serve' to start the scheduler")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	return runStatusTo(os.Stdout)
}

func runStatusTo(out io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(out, "Config: error (%v)\n", err)
		return nil
	}

	fmt.Fprintf(out, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(out, "Database: %s\n", cfg.Store.DBPath)
	fmt.Fprintf(out, "Analysis window: %d weeks (pod summaries: %d)\n",
		cfg.Analysis.WindowWeeks, cfg.Analysis.PodWindowWeeks)
	fmt.Fprintf(out, "Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)

	if _, err := os.Stat(cfg.Store.DBPath); err != nil {
		fmt.Fprintln(out, "Store: not initialized (run 'progressd onboard', then record data)")
		return nil
	}

	st, err := store.New(cfg.Store.DBPath)
	if err != nil {
		fmt.Fprintf(out, "Store: error (%v)\n", err)
		return nil
	}
	defer st.Close()

	stats, err := st.Stats()
	if err != nil {
		fmt.Fprintf(out, "Store: error (%v)\n", err)
		return nil
	}
	fmt.Fprintf(out, "Commitments: %d\n", stats.Commitments)
	fmt.Fprintf(out, "Attendance records: %d\n", stats.AttendanceRecords)
	fmt.Fprintf(out, "Active memberships: %d\n", stats.ActiveMembers)
	fmt.Fprintf(out, "Experiments: %d active, %d completed\n",
		stats.ActiveExperiments, stats.CompletedExperiments)

	return nil
}
