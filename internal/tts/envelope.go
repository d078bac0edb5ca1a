package tts

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Envelope is the audio-bearing content of a provider response.
// It is one of InlineAudio, ImageLink or NoAudio.
type Envelope interface {
	isEnvelope()
}

// InlineAudio carries decoded audio bytes from the response body.
type InlineAudio struct {
	Data     []byte
	MIMEType string
}

// ImageLink points at audio the proxy rendered as a markdown link.
type ImageLink struct {
	URL string
}

// NoAudio means the response parsed but carried neither form.
type NoAudio struct {
	Reason string
}

func (InlineAudio) isEnvelope() {}
func (ImageLink) isEnvelope()   {}
func (NoAudio) isEnvelope()     {}

var markdownLink = regexp.MustCompile(`!?\[[^\]]*\]\((https?://[^)\s]+)\)`)

type inlineBlob struct {
	MimeType  string `json:"mimeType"`
	MimeType2 string `json:"mime_type"`
	Data      string `json:"data"`
}

type contentPart struct {
	Text        string      `json:"text"`
	InlineData  *inlineBlob `json:"inlineData"`
	InlineData2 *inlineBlob `json:"inline_data"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []contentPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// decodeGenerateContent reads a generateContent response. Some proxies use
// snake_case keys, so both spellings are accepted. Inline audio wins over a
// link anywhere in the response.
func decodeGenerateContent(body []byte) (Envelope, error) {
	var resp generateContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse generateContent response: %w", err)
	}

	var link string
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			blob := p.InlineData
			if blob == nil {
				blob = p.InlineData2
			}
			if blob != nil && blob.Data != "" {
				data, err := decodeBase64(blob.Data)
				if err != nil {
					return nil, fmt.Errorf("decode inline audio: %w", err)
				}
				mimeType := blob.MimeType
				if mimeType == "" {
					mimeType = blob.MimeType2
				}
				return InlineAudio{Data: data, MIMEType: mimeType}, nil
			}
			if link == "" && p.Text != "" {
				link = findAudioLink(p.Text)
			}
		}
	}

	if link != "" {
		return ImageLink{URL: link}, nil
	}
	if len(resp.Candidates) == 0 {
		return NoAudio{Reason: "response has no candidates"}, nil
	}
	return NoAudio{Reason: "no inline audio or link in response parts"}, nil
}

func findAudioLink(text string) string {
	m := markdownLink.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
