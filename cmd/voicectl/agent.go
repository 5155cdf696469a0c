package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kandev/voicectl/internal/common/config"
	"github.com/kandev/voicectl/internal/common/logger"
	"github.com/kandev/voicectl/internal/realtime"
)

type agentFlags struct {
	channelName     string
	uid             int64
	voice           string
	language        string
	instruction     string
	inferenceConfig string
	configDir       string
}

func parseAgentFlags(args []string) (*agentFlags, error) {
	f := &agentFlags{}
	flags := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	flags.StringVar(&f.channelName, "channel_name", "", "channel to join (required)")
	flags.Int64Var(&f.uid, "uid", 0, "user id to join as")
	flags.StringVar(&f.voice, "voice", string(realtime.DefaultVoice), "voice used when no inference config is given")
	flags.StringVar(&f.language, "language", realtime.DefaultLanguage, "instruction language used when no inference config is given")
	flags.StringVar(&f.instruction, "system_instruction", "", "explicit system instruction used when no inference config is given")
	flags.StringVar(&f.inferenceConfig, "inference-config", "", `inference config JSON file, or "-" for stdin`)
	flags.StringVar(&f.configDir, "config", "", "directory containing config.yaml")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if f.channelName == "" {
		return nil, fmt.Errorf("--channel_name is required")
	}
	if f.uid < 0 {
		return nil, fmt.Errorf("--uid must not be negative")
	}
	return f, nil
}

// loadInferenceConfig reads the config handed over by the server, or builds one from flags.
func (f *agentFlags) loadInferenceConfig(stdin io.Reader, templates *realtime.Templates) (realtime.InferenceConfig, error) {
	switch f.inferenceConfig {
	case "":
		voice, err := realtime.ParseVoice(f.voice)
		if err != nil {
			return realtime.InferenceConfig{}, err
		}
		return realtime.NewInferenceConfig(templates.Resolve(f.language, f.instruction), voice), nil
	case "-":
		return realtime.DecodeInferenceConfig(stdin)
	default:
		file, err := os.Open(f.inferenceConfig)
		if err != nil {
			return realtime.InferenceConfig{}, fmt.Errorf("open inference config: %w", err)
		}
		defer func() { _ = file.Close() }()
		return realtime.DecodeInferenceConfig(file)
	}
}

func runAgent(args []string) error {
	bootLog := logger.Default()
	stopRelay := realtime.InstallSignalRelay(bootLog)
	defer stopRelay()

	f, err := parseAgentFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.LoadWithPath(f.configDir)
	if err != nil {
		return err
	}
	if err := cfg.RequireEngine(); err != nil {
		return err
	}
	log, err := logger.NewLogger(cfg.Logging.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	templates, err := realtime.LoadTemplates(cfg.Agent.InstructionsFile)
	if err != nil {
		return err
	}
	inference, err := f.loadInferenceConfig(os.Stdin, templates)
	if err != nil {
		return err
	}

	log.Info("Agent process started",
		zap.String("channel_name", f.channelName),
		zap.Int64("uid", f.uid),
		zap.Int("pid", os.Getpid()))

	return realtime.RunAgent(context.Background(), realtime.AgentOptions{
		AppID:         cfg.Engine.AppID,
		AppCert:       cfg.Engine.AppCert,
		ChannelName:   f.channelName,
		UID:           f.uid,
		SampleRate:    realtime.PCMSampleRate,
		Channels:      realtime.PCMChannels,
		EnablePCMDump: cfg.Agent.WritePCM,
		PCMDir:        cfg.Agent.PCMDir,
	}, inference, nil, realtime.IdlePipeline{}, log)
}
