package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flynn-ai/vox/internal/prompt"
)

var (
	contextFiles []string
	minimal      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Chat with the agent while serving peers (default)",
	Long: `Starts the peer connection manager and an interactive prompt.

Each line you type is one human turn. The agent calls actions until the
model is done, then speaks its reply. Slash commands:
  /stats   print runtime counters
  /actions list the actions the model can call
  /exit    quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, runCmd} {
		c.Flags().StringSliceVar(&contextFiles, "context-file", nil, "File quoted into the system directive (repeatable)")
		c.Flags().BoolVar(&minimal, "minimal-prompt", false, "Use the minimal system directive")
	}
}

func runChat(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	editor, err := newLineEditor(historyPath(cfg), []string{"stats", "actions", "exit"})
	if err != nil {
		return err
	}
	defer editor.Close()
	out := editor.Output()

	mode := prompt.ModeFull
	if minimal {
		mode = prompt.ModeMinimal
	}
	rt, err := newRuntime(cfg, logger, runtimeOptions{out: out, contextFiles: contextFiles, promptMode: mode})
	if err != nil {
		return err
	}
	defer rt.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.manager.ListenAndServe(gctx)
	})
	g.Go(func() error {
		defer stop()
		return chatLoop(gctx, rt, editor, out)
	})
	return g.Wait()
}

func chatLoop(ctx context.Context, rt *voxRuntime, editor lineEditor, out io.Writer) error {
	fmt.Fprintf(out, "vox listening for peers on %s\n", cfg.Server.Addr)
	for {
		line, err := editor.ReadLine(ctx, "speak to it: ")
		switch {
		case errors.Is(err, errInputInterrupt):
			continue
		case errors.Is(err, errInputEOF):
			return nil
		case err != nil:
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/stats":
			printJSON(out, map[string]any{"runtime": rt.stats.Collect(), "usage": rt.usage.Snapshot()})
			continue
		case "/actions":
			for _, a := range rt.dispatcher.Catalog() {
				fmt.Fprintf(out, "  %-20s %s\n", a.Name, a.Description)
			}
			continue
		}
		if strings.HasPrefix(line, "/") {
			fmt.Fprintf(out, "unknown command %s\n", line)
			continue
		}

		if err := rt.agent.Turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("turn failed", zap.Error(err))
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
