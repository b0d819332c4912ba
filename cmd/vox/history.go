package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/vox/internal/transcript"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print recent transcript entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Paths.TranscriptDB == "" {
			return fmt.Errorf("transcript is disabled (set paths.transcript_db)")
		}
		store, err := transcript.Open(cfg.Paths.TranscriptDB)
		if err != nil {
			return err
		}
		defer store.Close()

		rows, err := store.Recent(historyLimit)
		if err != nil {
			return err
		}
		for _, r := range rows {
			line := fmt.Sprintf("%s  %-16s %s", r.CreatedAt.Format("2006-01-02 15:04:05"), r.Kind, r.Value)
			if r.ParamsJSON != "" {
				line += " " + r.ParamsJSON
			}
			cmd.Println(line)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Number of entries")
}
