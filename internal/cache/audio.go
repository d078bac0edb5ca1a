package cache

import (
	"context"
	"errors"
	"time"

	"github.com/nikhilbhutani/ttsgateway/internal/tts"
)

type audioEntry struct {
	MIMEType string `json:"mime"`
	Data     []byte `json:"data"`
}

// AudioCache keeps synthesized payloads in redis. It satisfies
// tts.PayloadCache.
type AudioCache struct {
	cache *Cache
	ttl   time.Duration
}

func NewAudioCache(c *Cache, ttl time.Duration) *AudioCache {
	return &AudioCache{cache: c, ttl: ttl}
}

func (a *AudioCache) Get(ctx context.Context, key string) (*tts.AudioPayload, bool, error) {
	var e audioEntry
	err := a.cache.Get(ctx, key, &e)
	if errors.Is(err, ErrMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &tts.AudioPayload{Data: e.Data, MIMEType: e.MIMEType}, true, nil
}

func (a *AudioCache) Set(ctx context.Context, key string, p *tts.AudioPayload) error {
	return a.cache.Set(ctx, key, audioEntry{MIMEType: p.MIMEType, Data: p.Data}, a.ttl)
}
