package main

import (
	"io"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/flynn-ai/vox/internal/action"
	"github.com/flynn-ai/vox/internal/agent"
	"github.com/flynn-ai/vox/internal/config"
	"github.com/flynn-ai/vox/internal/convo"
	"github.com/flynn-ai/vox/internal/model"
	"github.com/flynn-ai/vox/internal/prompt"
	"github.com/flynn-ai/vox/internal/server"
	"github.com/flynn-ai/vox/internal/speech"
	"github.com/flynn-ai/vox/internal/stats"
	"github.com/flynn-ai/vox/internal/transcript"
	"github.com/flynn-ai/vox/internal/usage"
)

// voxRuntime holds the wired components of one process.
type voxRuntime struct {
	stats      *stats.Collector
	usage      *usage.Tracker
	log        *convo.Log
	dispatcher *action.Dispatcher
	manager    *server.Manager
	agent      *agent.Agent
	journal    *transcript.Store
}

type runtimeOptions struct {
	out          io.Writer // replies and the print action
	contextFiles []string
	promptMode   prompt.Mode
}

func newRuntime(cfg *config.Config, logger *zap.Logger, opts runtimeOptions) (*voxRuntime, error) {
	rt := &voxRuntime{stats: stats.NewCollector(), usage: usage.NewTracker()}

	var logOpts []convo.LogOption
	logOpts = append(logOpts, convo.WithLogger(logger.Named("log")))
	if cfg.Paths.TranscriptDB != "" {
		journal, err := transcript.Open(cfg.Paths.TranscriptDB)
		if err != nil {
			return nil, err
		}
		rt.journal = journal
		logOpts = append(logOpts, convo.WithSink(journal))
		logger.Info("transcript enabled", zap.String("path", cfg.Paths.TranscriptDB))
	}
	rt.log = convo.NewLog(logOpts...)

	rt.dispatcher = action.NewDispatcher(
		action.WithStats(rt.stats),
		action.WithLogger(logger.Named("dispatch")),
	)
	if _, err := rt.dispatcher.Register(action.Print(opts.out)); err != nil {
		rt.Close()
		return nil, err
	}

	rt.manager = server.New(server.Config{
		Addr:           cfg.Server.Addr,
		AnnounceDelay:  cfg.Server.AnnounceDelay.Duration,
		ActionTimeout:  cfg.Server.ActionTimeout.Duration,
		MaxConnections: cfg.Server.MaxConnections,
		ReadLimit:      cfg.Server.ReadLimit,
	}, rt.dispatcher, rt.log,
		server.WithStats(rt.stats),
		server.WithLogger(logger.Named("server")))

	client := model.NewOpenAIClient(&model.OpenAIConfig{
		APIKey:     cfg.Model.APIKey,
		BaseURL:    cfg.Model.BaseURL,
		Model:      cfg.Model.Model,
		Timeout:    cfg.Model.Timeout.Duration,
		MaxRetries: cfg.Model.MaxRetries,
	}, logger.Named("model"))

	var voice speech.Provider
	if cfg.Agent.Speak {
		voice = speech.NewConsole(opts.out)
		if len(cfg.Agent.SpeechCommand) > 0 {
			cmd, err := speech.NewCommand(cfg.Agent.SpeechCommand)
			if err != nil {
				rt.Close()
				return nil, err
			}
			voice = cmd
		}
	}

	rt.agent = agent.New(agent.Config{
		Model:             client,
		Dispatcher:        rt.dispatcher,
		Log:               rt.log,
		Speech:            voice,
		MaxRegenerations:  cfg.Agent.MaxRegenerations,
		MaxSteps:          cfg.Agent.MaxSteps,
		ConcurrentActions: cfg.Agent.ConcurrentActions,
		MaxConcurrent:     cfg.Agent.MaxConcurrent,
		Stats:             rt.stats,
		Usage:             rt.usage,
		Logger:            logger.Named("agent"),
	})

	mode := opts.promptMode
	if mode == "" {
		mode = prompt.ModeFull
	}
	builder := prompt.NewBuilder(mode)
	rt.log.Append(builder.Directive(prompt.SystemContext{
		Context: builder.LoadContextFiles(opts.contextFiles),
	}))

	return rt, nil
}

func (rt *voxRuntime) Close() error {
	if rt.journal != nil {
		return rt.journal.Close()
	}
	return nil
}

func historyPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "history")
}
