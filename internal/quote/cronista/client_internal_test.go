package cronista

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewClient_DefaultHTTPClientHasTimeout(t *testing.T) {
	c := NewClient()
	hc, ok := c.httpClient.(*http.Client)
	require.True(t, ok)
	require.NotSame(t, http.DefaultClient, hc)
	require.Equal(t, 10*time.Second, hc.Timeout)

	p := New(Config{}, nil, nil)
	hc, ok = p.client.httpClient.(*http.Client)
	require.True(t, ok)
	require.Equal(t, 10*time.Second, hc.Timeout)
}
