package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kitchen-mate/clipper/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "clipper",
	Short: "Recipe extraction and collection service",
	Long:  "Clips recipes from web pages and uploads via structured-data parsing with AI fallback, caches parses by content hash, and keeps per-user editable forks.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
