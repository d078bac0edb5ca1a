package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nikhilbhutani/ttsgateway/internal/audio"
)

const defaultPiperRate = 22050

// PiperAdapter runs a local Piper binary. The voice names a model file
// "<voice>.onnx" in the voices directory; Piper writes headerless 16-bit
// mono PCM at the rate recorded in the model's ".onnx.json" config.
type PiperAdapter struct {
	binPath   string
	voicesDir string
}

func NewPiperAdapter(binPath, voicesDir string) *PiperAdapter {
	if binPath == "" {
		binPath = "piper"
	}
	return &PiperAdapter{binPath: binPath, voicesDir: voicesDir}
}

func (p *PiperAdapter) Name() string         { return "piper" }
func (p *PiperAdapter) DefaultModel() string { return "" }
func (p *PiperAdapter) RequiresKey() bool    { return false }

func (p *PiperAdapter) Synthesize(ctx context.Context, req SynthesisRequest, _ ProviderConfig) (*RawAudio, error) {
	if req.Voice != filepath.Base(req.Voice) || strings.HasPrefix(req.Voice, ".") {
		return nil, newError(InvalidRequest, fmt.Sprintf("piper voice %q is not a model name", req.Voice), nil)
	}
	model := filepath.Join(p.voicesDir, req.Voice+".onnx")
	if _, err := os.Stat(model); err != nil {
		return nil, newError(ModelNotFound, fmt.Sprintf("piper voice %q is not installed", req.Voice), err)
	}

	// length_scale stretches phoneme duration, so it is the inverse of speed.
	args := []string{"--model", model, "--output-raw",
		"--length_scale", strconv.FormatFloat(1/req.Speed, 'f', 3, 64)}
	cmd := exec.CommandContext(ctx, p.binPath, args...)
	cmd.Stdin = strings.NewReader(req.Text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Info("calling piper", "voice", req.Voice, "chars", len([]rune(req.Text)))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("piper failed: %w (stderr: %s)", err, snippet(stderr.Bytes()))
	}

	return &RawAudio{
		Data: stdout.Bytes(),
		PCM:  audio.PCMSpec{SampleRate: piperSampleRate(model), Channels: 1, BitsPerSample: 16},
	}, nil
}

// piperSampleRate reads audio.sample_rate from the model config next to
// the .onnx file.
func piperSampleRate(model string) int {
	data, err := os.ReadFile(model + ".json")
	if err != nil {
		return defaultPiperRate
	}
	var cfg struct {
		Audio struct {
			SampleRate int `json:"sample_rate"`
		} `json:"audio"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil || cfg.Audio.SampleRate <= 0 {
		return defaultPiperRate
	}
	return cfg.Audio.SampleRate
}
