package audio

import (
	"encoding/binary"
	"math"
	"mime"
	"strconv"
)

const (
	// pcmProbeSamples is how many leading samples LooksLikePCM16 reads.
	pcmProbeSamples = 10
	// pcmMinValid is how many of those samples must decode.
	pcmMinValid = 8
	// PCMProbeThreshold is the buffer size above which an unclassified buffer
	// is probed as PCM. Smaller unclassified buffers are wrapped without probing.
	PCMProbeThreshold = 1000
)

// LooksLikePCM16 reports whether b is plausibly headerless 16-bit
// little-endian PCM.
//
// Every 2-byte read is a valid int16, so the range check cannot reject
// anything; in practice this is a structural gate on byte parity and size.
// Callers must only consult it after Classify returned Unknown.
func LooksLikePCM16(b []byte) bool {
	if len(b)%2 != 0 {
		return false
	}
	valid := 0
	for i := 0; i < pcmProbeSamples; i++ {
		off := i * 2
		if off+2 > len(b) {
			break
		}
		s := int16(binary.LittleEndian.Uint16(b[off : off+2]))
		if int(s) >= math.MinInt16 && int(s) <= math.MaxInt16 {
			valid++
		}
	}
	return valid >= pcmMinValid
}

// PCMSpecFromMIME reads rate= and channels= parameters from a raw PCM media
// type such as "audio/L16;codec=pcm;rate=24000". Missing or malformed
// parameters keep the value from def.
func PCMSpecFromMIME(mimeType string, def PCMSpec) PCMSpec {
	if mimeType == "" {
		return def
	}
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return def
	}
	spec := def
	if v, err := strconv.Atoi(params["rate"]); err == nil && v > 0 {
		spec.SampleRate = v
	}
	if v, err := strconv.Atoi(params["channels"]); err == nil && v > 0 {
		spec.Channels = v
	}
	return spec
}
