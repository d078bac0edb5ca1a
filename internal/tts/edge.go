package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/nikhilbhutani/ttsgateway/internal/audio"
)

// EdgeAdapter uses Microsoft Edge's read-aloud service. It needs no key and
// always produces 24 kHz MP3; format=wav is served by transcoding.
type EdgeAdapter struct{}

func NewEdgeAdapter() *EdgeAdapter { return &EdgeAdapter{} }

func (e *EdgeAdapter) Name() string         { return "edge" }
func (e *EdgeAdapter) DefaultModel() string { return "" }
func (e *EdgeAdapter) RequiresKey() bool    { return false }

func (e *EdgeAdapter) Synthesize(ctx context.Context, req SynthesisRequest, _ ProviderConfig) (*RawAudio, error) {
	slog.Info("calling edge speech", "voice", req.Voice, "chars", len([]rune(req.Text)))

	comm, err := edge.NewCommunicate(req.Text, edge.WithVoice(req.Voice))
	if err != nil {
		return nil, fmt.Errorf("edge communicate: %w", err)
	}
	ch, err := comm.Stream()
	if err != nil {
		return nil, fmt.Errorf("edge stream: %w", err)
	}
	// The library never closes the stream. Closing it releases any reader
	// goroutine still blocked on a send; those recover from the panic.
	defer comm.CloseOutput()

	data, err := collectEdgeAudio(ctx, ch, comm.AudioDataIndex)
	if err != nil {
		return nil, err
	}
	return edgeAudio(data, req.Format)
}

// collectEdgeAudio concatenates audio messages until every text chunk has
// reported its end, the stream reports an error, or ctx is done.
func collectEdgeAudio(ctx context.Context, ch <-chan map[string]interface{}, chunks int) ([]byte, error) {
	var buf bytes.Buffer
	for ended := 0; ended < chunks; {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return buf.Bytes(), nil
			}
			if v, failed := msg["error"]; failed {
				return nil, edgeStreamError(v)
			}
			if _, end := msg["end"]; end {
				ended++
				continue
			}
			if t, _ := msg["type"].(string); t != "audio" {
				continue
			}
			if d, ok := msg["data"].(edge.AudioData); ok {
				buf.Write(d.Data)
			}
		}
	}
	return buf.Bytes(), nil
}

func edgeStreamError(v interface{}) error {
	switch e := v.(type) {
	case edge.WebSocketError:
		return newError(NetworkFailure, "edge connection failed", fmt.Errorf("%s", e.Message))
	case edge.NoAudioReceived:
		return newError(NoAudioInResponse, "edge returned no audio", fmt.Errorf("%s", e.Message))
	case edge.UnknownResponse:
		return newError(InternalError, "edge sent an unexpected response", fmt.Errorf("%s", e.Message))
	default:
		return newError(InternalError, "edge stream failed", fmt.Errorf("%v", e))
	}
}

// edgeAudio labels Edge's MP3, transcoding it when WAV was asked for.
func edgeAudio(mp3 []byte, format string) (*RawAudio, error) {
	raw := &RawAudio{Data: mp3, MIMEType: "audio/mpeg"}
	if format == "wav" && len(mp3) > 0 {
		wav, err := audio.MP3ToWAV(mp3)
		if err != nil {
			return nil, fmt.Errorf("transcode edge audio: %w", err)
		}
		raw.Data, raw.MIMEType = wav, "audio/wav"
	}
	return raw, nil
}
