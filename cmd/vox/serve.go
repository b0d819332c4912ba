package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run only the peer connection manager",
	Long: `Accepts peers and keeps their actions registered without a chat prompt.
Useful for developing a peer: connect, register actions and watch /stats.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(cfg, logger, runtimeOptions{out: cmd.OutOrStdout()})
		if err != nil {
			return err
		}
		defer rt.Close()

		cmd.Printf("vox serving peers on %s (stats at http://%s/stats)\n", cfg.Server.Addr, cfg.Server.Addr)
		return rt.manager.ListenAndServe(ctx)
	},
}
