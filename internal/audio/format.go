package audio

import "bytes"

// Format is the container format of an audio buffer.
type Format int

const (
	Unknown Format = iota
	WAV
	MP3
	OGG
	FLAC
	M4A
)

func (f Format) String() string {
	switch f {
	case WAV:
		return "wav"
	case MP3:
		return "mp3"
	case OGG:
		return "ogg"
	case FLAC:
		return "flac"
	case M4A:
		return "m4a"
	default:
		return "unknown"
	}
}

// MIMEType returns the response content type for f, or "" for Unknown.
func (f Format) MIMEType() string {
	switch f {
	case WAV:
		return "audio/wav"
	case MP3:
		return "audio/mpeg"
	case OGG:
		return "audio/ogg"
	case FLAC:
		return "audio/flac"
	case M4A:
		return "audio/mp4"
	default:
		return ""
	}
}

var (
	magicRIFF = []byte("RIFF")
	magicWAVE = []byte("WAVE")
	magicID3  = []byte("ID3")
	magicOgg  = []byte("OggS")
	magicFLAC = []byte("fLaC")
	magicFtyp = []byte("ftyp")
	brandM4A  = []byte("M4A")
)

// Classify inspects the leading magic bytes of b. Buffers too short for a
// prefix simply fail that match.
func Classify(b []byte) Format {
	switch {
	case len(b) >= 12 && bytes.HasPrefix(b, magicRIFF) && bytes.Equal(b[8:12], magicWAVE):
		return WAV
	case len(b) >= 2 && b[0] == 0xFF && (b[1] == 0xFB || b[1] == 0xFA):
		return MP3
	case bytes.HasPrefix(b, magicID3):
		return MP3
	case bytes.HasPrefix(b, magicOgg):
		return OGG
	case bytes.HasPrefix(b, magicFLAC):
		return FLAC
	case len(b) >= 12 && bytes.Equal(b[4:8], magicFtyp) && bytes.HasPrefix(b[8:12], brandM4A):
		return M4A
	}
	return Unknown
}

// MIMETypeForFormat maps a requested output format name ("mp3", "opus", ...)
// to the content type a provider returns for it.
func MIMETypeForFormat(name string) string {
	switch name {
	case "wav", "pcm":
		return "audio/wav"
	case "ogg", "opus":
		return "audio/ogg"
	case "flac":
		return "audio/flac"
	case "m4a", "mp4":
		return "audio/mp4"
	case "aac":
		return "audio/aac"
	default:
		return "audio/mpeg"
	}
}
