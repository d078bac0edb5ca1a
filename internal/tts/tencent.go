package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tctts "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tts/v20190823"

	"github.com/nikhilbhutani/ttsgateway/internal/audio"
)

const (
	defaultTencentEndpoint = "tts.tencentcloudapi.com"
	defaultTencentRegion   = "ap-guangzhou"
	tencentPCMRate         = 16000
)

// TencentAdapter calls Tencent Cloud TextToVoice. The API key is
// "SecretId:SecretKey" and the voice is a numeric VoiceType.
type TencentAdapter struct {
	region string
}

func NewTencentAdapter(region string) *TencentAdapter {
	if region == "" {
		region = defaultTencentRegion
	}
	return &TencentAdapter{region: region}
}

func (t *TencentAdapter) Name() string         { return "tencent" }
func (t *TencentAdapter) DefaultModel() string { return "" }
func (t *TencentAdapter) RequiresKey() bool    { return true }

func (t *TencentAdapter) Synthesize(ctx context.Context, req SynthesisRequest, cfg ProviderConfig) (*RawAudio, error) {
	secretID, secretKey, ok := strings.Cut(cfg.APIKey, ":")
	if !ok || secretID == "" || secretKey == "" {
		return nil, newError(MissingCredentials, "tencent key must be SecretId:SecretKey", nil)
	}
	voiceType, err := strconv.ParseInt(req.Voice, 10, 64)
	if err != nil {
		return nil, newError(InvalidRequest, fmt.Sprintf("tencent voice %q is not a numeric VoiceType", req.Voice), err)
	}

	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = defaultTencentEndpoint
	if cfg.APIEndpoint != "" {
		cpf.HttpProfile.Endpoint = cfg.APIEndpoint
	}
	client, err := tctts.NewClient(common.NewCredential(secretID, secretKey), t.region, cpf)
	if err != nil {
		return nil, fmt.Errorf("create tencent client: %w", err)
	}

	codec := tencentCodec(req.Format)
	request := tctts.NewTextToVoiceRequest()
	request.Text = common.StringPtr(req.Text)
	request.SessionId = common.StringPtr(uuid.NewString())
	request.VoiceType = common.Int64Ptr(voiceType)
	request.Codec = common.StringPtr(codec)
	request.SampleRate = common.Uint64Ptr(tencentPCMRate)
	request.Speed = common.Float64Ptr(tencentSpeed(req.Speed))
	if m, err := strconv.ParseInt(resolveModel(req, cfg, ""), 10, 64); err == nil {
		request.ModelType = common.Int64Ptr(m)
	}

	slog.Info("calling tencent speech", "voice_type", voiceType, "codec", codec, "region", t.region)

	resp, err := client.TextToVoiceWithContext(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("tencent text to voice: %w", err)
	}
	if resp.Response == nil || resp.Response.Audio == nil {
		return nil, newError(NoAudioInResponse, "tencent returned no audio", nil)
	}

	data, err := base64.StdEncoding.DecodeString(*resp.Response.Audio)
	if err != nil {
		return nil, newError(NoAudioInResponse, "tencent audio is not base64", err)
	}
	return &RawAudio{
		Data:     data,
		MIMEType: tencentMIME(codec),
		PCM:      audio.PCMSpec{SampleRate: tencentPCMRate, Channels: 1, BitsPerSample: 16},
	}, nil
}

// tencentMIME is the type of the audio Tencent returns for codec. Its MP3 is
// MPEG-2 Layer III, which the magic-byte sniffer does not recognize.
func tencentMIME(codec string) string {
	switch codec {
	case "wav":
		return "audio/wav"
	case "pcm":
		return "audio/L16;rate=" + strconv.Itoa(tencentPCMRate)
	default:
		return "audio/mpeg"
	}
}

func tencentCodec(format string) string {
	switch format {
	case "wav", "pcm":
		return format
	default:
		return "mp3"
	}
}

// tencentSpeed maps a playback multiplier onto Tencent's [-2, 6] scale,
// where 0 is normal speed and each step is roughly 0.2x.
func tencentSpeed(speed float64) float64 {
	v := (speed - 1) / 0.2
	return math.Max(-2, math.Min(6, math.Round(v*10)/10))
}
