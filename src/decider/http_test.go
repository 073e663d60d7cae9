package decider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(serverURL string) *HTTPProvider {
	return NewHTTPProvider(HTTPProviderConfig{
		BaseURL:    serverURL,
		Timeout:    2 * time.Second,
		RetryCount: 0,
	})
}

func TestHTTPProviderDecide(t *testing.T) {
	var gotCtx Context
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/decide", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotCtx))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"decisions":[{"action":"enter","instrument":"BTC-USD","direction":"long","confidence":0.7,"leverage":10,"notional_usd":"500","stop_loss":"49000","profit_target":"52000"}]}`))
	}))
	defer server.Close()

	provider := newTestProvider(server.URL)
	decisions, err := provider.Decide(context.Background(), Context{})
	require.NoError(t, err)
	require.Len(t, decisions, 1)

	decision := decisions[0]
	assert.Equal(t, ActionEnter, decision.Action)
	assert.Equal(t, "BTC-USD", decision.Instrument)
	assert.True(t, decision.NotionalUSD.Equal(d("500")))
	assert.NoError(t, Validate(decision))
}

func TestHTTPProviderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"model overloaded"}`))
	}))
	defer server.Close()

	provider := newTestProvider(server.URL)
	_, err := provider.Decide(context.Background(), Context{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestHTTPProviderUnreachable(t *testing.T) {
	provider := newTestProvider("http://127.0.0.1:1")
	_, err := provider.Decide(context.Background(), Context{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
}
