package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"go.uber.org/zap"

	"github.com/kandev/voicectl/internal/common/logger"
)

// ExecConfig configures ExecSpawner.
type ExecConfig struct {
	// BinaryPath is the voicectl executable; empty means the running binary.
	BinaryPath string
	// ConfigDir is handed to the worker as --config so it loads the server's config.yaml.
	ConfigDir string
	AppID     string
	AppCert   string
	WritePCM  bool
	PCMDir    string
	// Env is appended to the inherited environment.
	Env []string
}

// ExecSpawner starts each worker as `voicectl agent` in its own process group.
type ExecSpawner struct {
	cfg    ExecConfig
	logger *logger.Logger
}

// NewExecSpawner creates a spawner for the given configuration.
func NewExecSpawner(cfg ExecConfig, log *logger.Logger) *ExecSpawner {
	return &ExecSpawner{
		cfg:    cfg,
		logger: log.WithFields(zap.String("component", "spawner")),
	}
}

// Spawn starts the worker and hands it the inference config on stdin. It
// returns as soon as the process exists; it does not wait for readiness.
func (s *ExecSpawner) Spawn(ctx context.Context, spec Spec) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := spec.Config.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode inference config: %w", err)
	}

	binary := s.cfg.BinaryPath
	if binary == "" {
		if binary, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("locate voicectl binary: %w", err)
		}
	}

	// exec.Command rather than CommandContext: the worker outlives the request
	// that started it and is only ended through Kill.
	args := []string{
		"agent",
		"--channel_name", spec.ChannelName,
		"--uid", strconv.FormatInt(spec.UID, 10),
		"--inference-config", "-",
	}
	if s.cfg.ConfigDir != "" {
		args = append(args, "--config", s.cfg.ConfigDir)
	}
	cmd := exec.Command(binary, args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		"AGORA_APP_ID="+s.cfg.AppID,
		"AGORA_APP_CERT="+s.cfg.AppCert,
		"WRITE_RTC_PCM="+strconv.FormatBool(s.cfg.WritePCM),
	)
	if s.cfg.PCMDir != "" {
		cmd.Env = append(cmd.Env, "VOICECTL_AGENT_PCMDIR="+s.cfg.PCMDir)
	}
	cmd.Env = append(cmd.Env, s.cfg.Env...)
	setProcGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	s.logger.Info("Worker process started",
		zap.String("channel_name", spec.ChannelName),
		zap.Int64("uid", spec.UID),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("binary", binary))

	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

// Kill sends SIGKILL to the worker's process group, falling back to the process alone.
func (p *execProcess) Kill() error {
	if err := killProcessGroup(p.cmd.Process.Pid); err == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill worker %d: %w", p.cmd.Process.Pid, err)
	}
	return nil
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}
