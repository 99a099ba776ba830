package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Hour), mr
}

func TestReserve_FirstCallerOwnsKey(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	resp, err := s.Reserve(ctx, "user-1", "key-1", "fp")
	require.NoError(t, err)
	assert.Nil(t, resp)

	_, err = s.Reserve(ctx, "user-1", "key-1", "fp")
	require.ErrorIs(t, err, ErrInProgress)
}

func TestReserve_ReplaysCompletedResponse(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Reserve(ctx, "user-1", "key-1", "fp")
	require.NoError(t, err)

	body := []byte(`{"orderId":"abc","amount":100000}`)
	require.NoError(t, s.Complete(ctx, "user-1", "key-1", "fp", Response{Status: 200, Body: body}))

	resp, err := s.Reserve(ctx, "user-1", "key-1", "fp")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, body, resp.Body)
}

func TestReserve_DifferentPayloadIsRejected(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Reserve(ctx, "user-1", "key-1", "fp-a")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "user-1", "key-1", "fp-a", Response{Status: 200, Body: []byte(`{}`)}))

	_, err = s.Reserve(ctx, "user-1", "key-1", "fp-b")
	require.ErrorIs(t, err, ErrKeyReused)
}

func TestReserve_ScopedPerUser(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Reserve(ctx, "user-1", "shared", "fp")
	require.NoError(t, err)

	resp, err := s.Reserve(ctx, "user-2", "shared", "fp")
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestRelease_AllowsRetry(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Reserve(ctx, "user-1", "key-1", "fp")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "user-1", "key-1"))

	resp, err := s.Reserve(ctx, "user-1", "key-1", "fp")
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestReserve_ExpiresAfterTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	_, err := s.Reserve(ctx, "user-1", "key-1", "fp")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	resp, err := s.Reserve(ctx, "user-1", "key-1", "fp")
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestReserve_RedisDown(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	_, err := s.Reserve(context.Background(), "user-1", "key-1", "fp")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInProgress)
	require.Error(t, s.Ping(context.Background()))
}

func TestEntryCodec(t *testing.T) {
	in := entry{State: stateDone, Fingerprint: "abc", Response: Response{Status: 201, Body: []byte("\x00binary\xff")}}
	out, err := decodeEntry(encodeEntry(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
