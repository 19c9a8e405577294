package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the checkpoint so the next run starts from the epoch",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return eris.New("refusing to delete the checkpoint without --yes")
		}

		ctx := cmd.Context()
		ckpt, err := initCheckpointStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init checkpoint store")
		}
		defer ckpt.Close()

		if err := ckpt.Delete(ctx); err != nil {
			return eris.Wrap(err, "delete checkpoint")
		}
		fmt.Println("checkpoint deleted")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm checkpoint deletion")
	rootCmd.AddCommand(resetCmd)
}
