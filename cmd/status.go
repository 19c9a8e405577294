package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ckpt, err := initCheckpointStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init checkpoint store")
		}
		defer ckpt.Close()

		cp, err := ckpt.Load(ctx)
		if err != nil {
			return eris.Wrap(err, "load checkpoint")
		}
		if cp == nil {
			fmt.Println("no checkpoint: next run starts from the configured epoch")
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cp)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
