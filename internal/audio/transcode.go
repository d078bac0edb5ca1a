package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// MP3ToWAV decodes an MP3 stream and re-wraps the samples as WAV. go-mp3
// always yields interleaved stereo signed 16-bit little-endian PCM.
func MP3ToWAV(data []byte) ([]byte, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}

	// Drop a trailing partial frame.
	const frame = 4
	pcm = pcm[:len(pcm)/frame*frame]

	return WrapPCM(pcm, PCMSpec{
		SampleRate:    dec.SampleRate(),
		Channels:      2,
		BitsPerSample: 16,
	}), nil
}
