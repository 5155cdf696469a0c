// Package realtime holds the worker side of a voice session: the inference
// settings handed over by the controller, instruction templates, the signal
// relay, tool registration and the PCM capture sink.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Audio format exchanged with the realtime engine.
const (
	PCMSampleRate = 24000
	PCMChannels   = 1
)

// Voice is one of the synthesis voices the inference backend offers.
type Voice string

const (
	VoiceAlloy   Voice = "alloy"
	VoiceAsh     Voice = "ash"
	VoiceBallad  Voice = "ballad"
	VoiceCoral   Voice = "coral"
	VoiceEcho    Voice = "echo"
	VoiceSage    Voice = "sage"
	VoiceShimmer Voice = "shimmer"
	VoiceVerse   Voice = "verse"
)

// DefaultVoice is used when a request names none.
const DefaultVoice = VoiceAlloy

var voices = []Voice{
	VoiceAlloy, VoiceAsh, VoiceBallad, VoiceCoral,
	VoiceEcho, VoiceSage, VoiceShimmer, VoiceVerse,
}

// ErrInvalidVoice is returned by ParseVoice for names outside the enumeration.
var ErrInvalidVoice = errors.New("invalid voice")

// Voices returns the accepted voice names in a stable order.
func Voices() []Voice {
	out := make([]Voice, len(voices))
	copy(out, voices)
	return out
}

// ParseVoice checks s against the enumeration. Matching is exact.
func ParseVoice(s string) (Voice, error) {
	for _, v := range voices {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q (expected one of %s)", ErrInvalidVoice, s, voiceList())
}

func voiceList() string {
	names := make([]string, len(voices))
	for i, v := range voices {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

// DefaultTurnDetection returns the VAD settings every session starts with.
func DefaultTurnDetection() TurnDetection {
	return TurnDetection{
		Type:              "server_vad",
		Threshold:         0.5,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 200,
	}
}

// InferenceConfig is fixed when a session starts and never changes after.
type InferenceConfig struct {
	SystemMessage string        `json:"system_message"`
	Voice         Voice         `json:"voice"`
	TurnDetection TurnDetection `json:"turn_detection"`
}

// NewInferenceConfig builds the session config with default turn detection.
func NewInferenceConfig(systemMessage string, voice Voice) InferenceConfig {
	return InferenceConfig{
		SystemMessage: systemMessage,
		Voice:         voice,
		TurnDetection: DefaultTurnDetection(),
	}
}

// Encode returns the JSON form written to a worker's stdin.
func (c InferenceConfig) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeInferenceConfig reads one JSON config from r and checks its voice.
func DecodeInferenceConfig(r io.Reader) (InferenceConfig, error) {
	var cfg InferenceConfig
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return InferenceConfig{}, fmt.Errorf("decode inference config: %w", err)
	}
	if _, err := ParseVoice(string(cfg.Voice)); err != nil {
		return InferenceConfig{}, err
	}
	return cfg, nil
}
