package realtime

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kandev/voicectl/internal/common/logger"
)

// AgentOptions identify the session a worker joins.
type AgentOptions struct {
	AppID         string
	AppCert       string
	ChannelName   string
	UID           int64
	SampleRate    int
	Channels      int
	EnablePCMDump bool
	PCMDir        string
}

// Validate checks the options a worker cannot run without and fills in the audio format.
func (o *AgentOptions) Validate() error {
	if o.AppID == "" {
		return errors.New("engine app id is required")
	}
	if o.ChannelName == "" {
		return errors.New("channel name is required")
	}
	if o.UID < 0 {
		return errors.New("uid must not be negative")
	}
	if o.SampleRate == 0 {
		o.SampleRate = PCMSampleRate
	}
	if o.Channels == 0 {
		o.Channels = PCMChannels
	}
	return nil
}

// Session is what a running worker hands to its pipeline.
type Session struct {
	Options AgentOptions
	Config  InferenceConfig
	Tools   *ToolContext
	PCM     *PCMWriter
	Logger  *logger.Logger
}

// Pipeline is the realtime audio and inference loop of a session.
type Pipeline interface {
	Run(ctx context.Context, s *Session) error
}

// IdlePipeline keeps the session open until ctx is done.
type IdlePipeline struct{}

func (IdlePipeline) Run(ctx context.Context, _ *Session) error {
	<-ctx.Done()
	return nil
}

// RunAgent runs one session until pipeline returns or ctx is cancelled.
// Tools may be nil.
func RunAgent(ctx context.Context, opts AgentOptions, cfg InferenceConfig, tools *ToolContext, pipeline Pipeline, log *logger.Logger) error {
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid agent options: %w", err)
	}
	if pipeline == nil {
		pipeline = IdlePipeline{}
	}
	log = log.WithChannel(opts.ChannelName).WithFields(zap.Int64("uid", opts.UID))
	if tools == nil {
		tools = NewToolContext(log)
	}

	prefix := filepath.Join(opts.PCMDir, fmt.Sprintf("%s_%d", opts.ChannelName, opts.UID))
	session := &Session{
		Options: opts,
		Config:  cfg,
		Tools:   tools,
		PCM:     NewPCMWriter(prefix, opts.EnablePCMDump, DefaultPCMBufferSize),
		Logger:  log,
	}

	log.Info("Agent session starting",
		zap.String("voice", string(cfg.Voice)),
		zap.Int("sample_rate", opts.SampleRate),
		zap.Int("channels", opts.Channels),
		zap.Int("tools", len(tools.ModelDescription())),
		zap.Bool("pcm_dump", opts.EnablePCMDump))

	runErr := pipeline.Run(ctx, session)
	if err := session.PCM.Flush(); err != nil {
		log.Warn("Failed to flush PCM capture", zap.Error(err))
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("agent pipeline: %w", runErr)
	}
	log.Info("Agent session ended")
	return nil
}
