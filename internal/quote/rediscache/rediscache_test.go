package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"dolarprovider/internal/quote"
)

type memStore struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) *redis.StringCmd {
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memStore) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

type stubProvider struct {
	calls     int
	requested []quote.Kind
	fail      bool
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Fetch(_ context.Context, kinds []quote.Kind) ([]quote.Quote, error) {
	s.calls++
	s.requested = kinds
	if s.fail {
		return nil, errors.New("upstream down")
	}
	out := make([]quote.Quote, 0, len(kinds))
	for _, k := range kinds {
		if k == quote.CCL {
			out = append(out, quote.Failed(k, "stub", errors.New("no data"), time.Now()))
			continue
		}
		out = append(out, quote.Quote{Dollar: k.Label, Code: k.Code, Sell: quote.Float(100), Source: "stub"})
	}
	return out, nil
}

func TestRedisCache_StoresAndServes(t *testing.T) {
	store := newMemStore()
	inner := &stubProvider{}
	c := &Provider{P: inner, Store: store, TTL: 30 * time.Second, Logger: zaptest.NewLogger(t)}
	require.Equal(t, "stub", c.Name())

	qs, err := c.Fetch(t.Context(), []quote.Kind{quote.Blue, quote.CCL})
	require.NoError(t, err)
	require.Len(t, qs, 2)
	require.True(t, qs[0].OK())
	require.False(t, qs[1].OK())

	// only the successful record is written
	require.Contains(t, store.data, "quotes:ARSB")
	require.NotContains(t, store.data, "quotes:ARSCONT")
	require.Equal(t, 30*time.Second, store.ttls["quotes:ARSB"])

	var cached quote.Quote
	require.NoError(t, json.Unmarshal([]byte(store.data["quotes:ARSB"]), &cached))
	require.Equal(t, "Blue", cached.Dollar)

	// second call serves Blue from redis and only asks for CCL
	qs, err = c.Fetch(t.Context(), []quote.Kind{quote.Blue, quote.CCL})
	require.NoError(t, err)
	require.Len(t, qs, 2)
	require.Equal(t, []quote.Kind{quote.CCL}, inner.requested)
	require.Equal(t, 2, inner.calls)
}

func TestRedisCache_RedisDownFallsThrough(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("dial tcp: connection refused")
	inner := &stubProvider{}
	c := &Provider{P: inner, Store: store, TTL: time.Minute, Prefix: "test:", Logger: zaptest.NewLogger(t)}

	qs, err := c.Fetch(t.Context(), []quote.Kind{quote.MEP})
	require.NoError(t, err)
	require.Len(t, qs, 1)
	require.True(t, qs[0].OK())
	require.Contains(t, store.data, "test:ARSMEP")
}

func TestRedisCache_UpstreamErrorWithPartialHit(t *testing.T) {
	store := newMemStore()
	b, err := json.Marshal(quote.Quote{Dollar: "Oficial", Code: "ARS", Sell: quote.Float(1000)})
	require.NoError(t, err)
	store.data["quotes:ARS"] = string(b)

	inner := &stubProvider{fail: true}
	c := &Provider{P: inner, Store: store, TTL: time.Minute}

	qs, err := c.Fetch(t.Context(), []quote.Kind{quote.Oficial, quote.Blue})
	require.NoError(t, err)
	require.Len(t, qs, 2)
	require.Equal(t, "Oficial", qs[0].Dollar)
	require.True(t, qs[0].OK())
	require.Equal(t, "Blue", qs[1].Dollar)
	require.Equal(t, "upstream down", qs[1].Error)
	require.Equal(t, "stub:ARSB", qs[1].Source)

	_, err = c.Fetch(t.Context(), []quote.Kind{quote.Blue})
	require.EqualError(t, err, "upstream down")
}

func TestRedisCache_CorruptEntryIsRefetched(t *testing.T) {
	store := newMemStore()
	store.data["quotes:ARSB"] = "{not json"
	inner := &stubProvider{}
	c := &Provider{P: inner, Store: store, TTL: time.Minute}

	qs, err := c.Fetch(t.Context(), []quote.Kind{quote.Blue})
	require.NoError(t, err)
	require.True(t, qs[0].OK())
	require.Equal(t, 1, inner.calls)
}

func TestRedisCache_DisabledWithoutStore(t *testing.T) {
	inner := &stubProvider{}
	c := &Provider{P: inner, TTL: time.Minute}

	qs, err := c.Fetch(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, qs, 0)
	require.Equal(t, 1, inner.calls)
}
