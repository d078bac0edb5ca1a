package audio

import "encoding/binary"

// WAVHeaderSize is the size of the canonical RIFF/WAVE header.
const WAVHeaderSize = 44

// PCMSpec describes headerless linear PCM.
type PCMSpec struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultPCM is what speech models emit when they return raw samples:
// 24 kHz mono signed 16-bit.
var DefaultPCM = PCMSpec{SampleRate: 24000, Channels: 1, BitsPerSample: 16}

// WrapPCM prepends a 44-byte WAV header to pcm. Odd lengths are kept as is.
func WrapPCM(pcm []byte, spec PCMSpec) []byte {
	byteRate := spec.SampleRate * spec.Channels * spec.BitsPerSample / 8
	blockAlign := spec.Channels * spec.BitsPerSample / 8

	out := make([]byte, WAVHeaderSize, WAVHeaderSize+len(pcm))
	le := binary.LittleEndian

	copy(out[0:4], "RIFF")
	le.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	le.PutUint32(out[16:20], 16)
	le.PutUint16(out[20:22], 1) // PCM
	le.PutUint16(out[22:24], uint16(spec.Channels))
	le.PutUint32(out[24:28], uint32(spec.SampleRate))
	le.PutUint32(out[28:32], uint32(byteRate))
	le.PutUint16(out[32:34], uint16(blockAlign))
	le.PutUint16(out[34:36], uint16(spec.BitsPerSample))

	copy(out[36:40], "data")
	le.PutUint32(out[40:44], uint32(len(pcm)))

	return append(out, pcm...)
}
