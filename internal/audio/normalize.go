package audio

import (
	"mime"
	"strings"
)

// Normalize resolves the container of an upstream buffer and returns the
// bytes to send plus their content type.
//
// Recognized containers pass through untouched. So do unrecognized buffers
// whose reportedMIME names an encoded format (see EncodedMIME); MPEG-2
// Layer III frames, for one, carry sync bytes Classify does not match.
// Other unrecognized buffers up to PCMProbeThreshold bytes, and larger ones
// that pass LooksLikePCM16, are wrapped as WAV using spec. Anything left
// keeps its bytes and is labelled with fallbackMIME.
func Normalize(b []byte, spec PCMSpec, reportedMIME, fallbackMIME string) ([]byte, string) {
	f := Classify(b)
	if f != Unknown {
		return b, f.MIMEType()
	}
	if EncodedMIME(reportedMIME) {
		return b, reportedMIME
	}
	if len(b) <= PCMProbeThreshold || LooksLikePCM16(b) {
		return WrapPCM(b, spec), WAV.MIMEType()
	}
	if fallbackMIME == "" {
		fallbackMIME = "application/octet-stream"
	}
	return b, fallbackMIME
}

// EncodedMIME reports whether mimeType names a compressed audio format that
// can be served as-is. Raw PCM types and WAV are excluded: a buffer labelled
// WAV without a RIFF header is headerless samples.
func EncodedMIME(mimeType string) bool {
	if mimeType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	sub, ok := strings.CutPrefix(mt, "audio/")
	if !ok {
		return false
	}
	switch sub {
	case "l16", "l24", "pcm", "x-pcm", "raw", "wav", "x-wav", "wave", "vnd.wave":
		return false
	}
	return true
}
