package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/ttsgateway/internal/tts"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(client), mr
}

func TestCacheGetMiss(t *testing.T) {
	c, _ := newTestCache(t)
	var v map[string]string
	assert.ErrorIs(t, c.Get(context.Background(), "nope", &v), ErrMiss)

	ok, err := c.Exists(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAudioCacheRoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ac := NewAudioCache(c, time.Minute)
	ctx := context.Background()

	_, hit, err := ac.Get(ctx, "tts:audio:abc")
	require.NoError(t, err)
	assert.False(t, hit)

	want := &tts.AudioPayload{Data: []byte("ID3\x00\x01\x02"), MIMEType: "audio/mpeg"}
	require.NoError(t, ac.Set(ctx, "tts:audio:abc", want))

	got, hit, err := ac.Get(ctx, "tts:audio:abc")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, want, got)
	assert.Equal(t, time.Minute, mr.TTL("tts:audio:abc"))

	mr.FastForward(2 * time.Minute)
	_, hit, err = ac.Get(ctx, "tts:audio:abc")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestAudioCacheReportsRedisErrors(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, hit, err := NewAudioCache(c, time.Minute).Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, hit)
}

func TestJobLifecycle(t *testing.T) {
	c, _ := newTestCache(t)
	store := NewJobStore(c, time.Hour)
	ctx := context.Background()

	job, err := store.Create(ctx, "job-1", "openai")
	require.NoError(t, err)
	assert.Equal(t, JobQueued, job.Status)

	_, err = store.Audio(ctx, "job-1")
	assert.Error(t, err)

	require.NoError(t, store.MarkRunning(ctx, "job-1"))
	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, JobRunning, got.Status)

	payload := &tts.AudioPayload{Data: []byte("RIFF....WAVE"), MIMEType: "audio/wav"}
	require.NoError(t, store.Complete(ctx, "job-1", payload))

	got, err = store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, got.Status)
	assert.Equal(t, "audio/wav", got.MIMEType)
	assert.Equal(t, len(payload.Data), got.Bytes)
	assert.Equal(t, "openai", got.Provider)

	audio, err := store.Audio(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, payload, audio)
}

func TestJobFail(t *testing.T) {
	c, _ := newTestCache(t)
	store := NewJobStore(c, time.Hour)
	ctx := context.Background()

	_, err := store.Create(ctx, "job-2", "gemini")
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, "job-2", tts.AuthRejected, "gemini request failed"))

	got, err := store.Get(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)
	assert.Equal(t, tts.AuthRejected, got.ErrorKind)
}

func TestJobNotFound(t *testing.T) {
	c, _ := newTestCache(t)
	store := NewJobStore(c, time.Hour)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, store.MarkRunning(context.Background(), "missing"), ErrJobNotFound)
}
