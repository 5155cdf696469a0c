//go:build unix

package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/voicectl/internal/common/logger"
	"github.com/kandev/voicectl/internal/realtime"
)

// writeScript creates an executable shell script standing in for the voicectl binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-voicectl")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func testSpec() Spec {
	return Spec{
		ChannelName: "room1",
		UID:         7,
		Config:      realtime.NewInferenceConfig("be brief", realtime.VoiceEcho),
	}
}

func TestExecSpawner_PassesArgsConfigAndEnv(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	script := writeScript(t, `
echo "$@" > "$FAKE_OUT.args"
echo "$AGORA_APP_ID $AGORA_APP_CERT $WRITE_RTC_PCM" > "$FAKE_OUT.env"
cat > "$FAKE_OUT.stdin"`)

	spawner := NewExecSpawner(ExecConfig{
		BinaryPath: script,
		AppID:      "app-1",
		AppCert:    "cert-1",
		WritePCM:   true,
		Env:        []string{"FAKE_OUT=" + out},
	}, logger.NewNop())

	proc, err := spawner.Spawn(context.Background(), testSpec())
	require.NoError(t, err)
	assert.Greater(t, proc.Pid(), 0)
	require.NoError(t, proc.Wait())

	args, err := os.ReadFile(out + ".args")
	require.NoError(t, err)
	assert.Equal(t, "agent --channel_name room1 --uid 7 --inference-config -", strings.TrimSpace(string(args)))

	env, err := os.ReadFile(out + ".env")
	require.NoError(t, err)
	assert.Equal(t, "app-1 cert-1 true", strings.TrimSpace(string(env)))

	stdin, err := os.Open(out + ".stdin")
	require.NoError(t, err)
	defer func() { _ = stdin.Close() }()
	cfg, err := realtime.DecodeInferenceConfig(stdin)
	require.NoError(t, err)
	assert.Equal(t, testSpec().Config, cfg)
}

func TestExecSpawner_ForwardsConfigDir(t *testing.T) {
	out := filepath.Join(t.TempDir(), "args")
	script := writeScript(t, `echo "$@" > "$FAKE_OUT"`)

	spawner := NewExecSpawner(ExecConfig{
		BinaryPath: script,
		ConfigDir:  "/etc/voicectl-test",
		Env:        []string{"FAKE_OUT=" + out},
	}, logger.NewNop())

	proc, err := spawner.Spawn(context.Background(), testSpec())
	require.NoError(t, err)
	require.NoError(t, proc.Wait())

	args, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "agent --channel_name room1 --uid 7 --inference-config - --config /etc/voicectl-test", strings.TrimSpace(string(args)))
}

func TestExecSpawner_KillEndsProcessGroup(t *testing.T) {
	script := writeScript(t, "sleep 30 &\nwait")
	spawner := NewExecSpawner(ExecConfig{BinaryPath: script}, logger.NewNop())

	proc, err := spawner.Spawn(context.Background(), testSpec())
	require.NoError(t, err)

	h := NewHandle("room1", 7, proc)
	go func() { h.MarkExited(h.Wait()) }()

	require.NoError(t, h.Kill())
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit after kill")
	}
	assert.Equal(t, -1, h.ExitCode())
	assert.Error(t, h.ExitErr())

	assert.NoError(t, h.Kill(), "killing an exited worker is harmless")
}

func TestExecSpawner_MissingBinary(t *testing.T) {
	spawner := NewExecSpawner(ExecConfig{BinaryPath: filepath.Join(t.TempDir(), "missing")}, logger.NewNop())
	_, err := spawner.Spawn(context.Background(), testSpec())
	assert.Error(t, err)
}

func TestExecSpawner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	spawner := NewExecSpawner(ExecConfig{BinaryPath: "/bin/true"}, logger.NewNop())
	_, err := spawner.Spawn(ctx, testSpec())
	assert.ErrorIs(t, err, context.Canceled)
}
