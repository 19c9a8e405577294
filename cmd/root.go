package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Bloop-Tech/users-also-buy/internal/config"
)

var cfg *config.Config

// exitCode is the process exit status; sync sets it to distinguish clean
// completion from completion with per-record skips.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "users-also-buy",
	Short: "Incremental catalog enrichment pipeline",
	Long:  "Pages newly created products from the catalog, generates complementary-search query suggestions via Claude, writes them back, and checkpoints progress for resumable runs.",
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
	os.Exit(exitCode)
}
