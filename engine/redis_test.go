package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu     sync.Mutex
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

type cachedAnswer struct {
	Text string `json:"text"`
}

func TestRedisCache_RoundTrip(t *testing.T) {
	t.Parallel()
	fr := newFakeRedis()
	c := NewRedisCache[cachedAnswer](fr, WithPrefix("test:"), WithTTL(time.Hour))
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", cachedAnswer{Text: "hi"}))
	assert.JSONEq(t, `{"text":"hi"}`, fr.data["test:k"])
	assert.Equal(t, time.Hour, fr.ttls["test:k"])

	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hi", v.Text)
}

func TestRedisCache_DefaultPrefix(t *testing.T) {
	t.Parallel()
	fr := newFakeRedis()
	c := NewRedisCache[string](fr)
	require.NoError(t, c.Set(context.Background(), "abc", "v"))
	assert.Contains(t, fr.data, "chatcall:cache:abc")
	assert.Zero(t, fr.ttls["chatcall:cache:abc"])
}

func TestRedisCache_Errors(t *testing.T) {
	t.Parallel()
	fr := newFakeRedis()
	fr.getErr = errBoom
	fr.setErr = errBoom
	c := NewRedisCache[string](fr)

	_, _, err := c.Get(context.Background(), "k")
	require.ErrorIs(t, err, errBoom)
	require.ErrorIs(t, c.Set(context.Background(), "k", "v"), errBoom)
}

func TestRedisCache_CorruptValue(t *testing.T) {
	t.Parallel()
	fr := newFakeRedis()
	fr.data["chatcall:cache:k"] = "not json"
	c := NewRedisCache[string](fr)
	_, ok, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestRedisCache_NilClientPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { NewRedisCache[string](nil) })
}

func TestRedisCache_BacksEngine(t *testing.T) {
	t.Parallel()
	e := New(Config[string]{Cache: NewRedisCache[string](newFakeRedis())})
	task := &countingTask{value: "stored"}
	for range 2 {
		v, err := e.Execute(context.Background(), "k", task.run)
		require.NoError(t, err)
		assert.Equal(t, "stored", v)
	}
	assert.Equal(t, int32(1), task.calls.Load())
}
