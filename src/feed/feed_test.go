package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestQuoteStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	quote := Quote{Price: d("100"), At: now.Add(-60 * time.Second)}

	if quote.Stale(now, 90*time.Second) {
		t.Fatalf("60s old quote must be fresh at 90s max age")
	}
	if !quote.Stale(now, 30*time.Second) {
		t.Fatalf("60s old quote must be stale at 30s max age")
	}
}

func TestMemorySource(t *testing.T) {
	source := NewMemorySource()
	now := time.Now().UTC()

	if _, ok := source.Quote("BTC-USD"); ok {
		t.Fatalf("empty source must miss")
	}

	source.SetQuote("BTC-USD", d("50000"), now)
	quote, ok := source.Quote("BTC-USD")
	if !ok || !quote.Price.Equal(d("50000")) {
		t.Fatalf("expected stored quote, got %+v ok=%v", quote, ok)
	}

	instruments := source.Instruments()
	if len(instruments) != 1 || instruments[0] != "BTC-USD" {
		t.Fatalf("unexpected instrument list: %v", instruments)
	}
}

func TestWebsocketFeedConsumesTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		messages := []string{
			`{"instrument":"BTC-USD","price":"50000","atr":"120","ema20":"49800","timestamp":"2026-03-01T10:00:00Z"}`,
			`{"instrument":"","price":"1"}`,
			`not json`,
			`{"instrument":"ETH-USD","price":"2000"}`,
		}
		for _, msg := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	source := NewMemorySource()
	feed := NewWebsocketFeed(WebsocketConfig{
		URL:            "ws" + strings.TrimPrefix(server.URL, "http"),
		ReadTimeout:    time.Second,
		ReconnectDelay: 10 * time.Millisecond,
	}, source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	deadline := time.After(3 * time.Second)
	for {
		_, btcOK := source.Quote("BTC-USD")
		_, ethOK := source.Quote("ETH-USD")
		if btcOK && ethOK {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("feed never delivered both quotes")
		case <-time.After(10 * time.Millisecond):
		}
	}

	quote, _ := source.Quote("BTC-USD")
	if !quote.Price.Equal(d("50000")) {
		t.Fatalf("expected price 50000, got %s", quote.Price)
	}
	if !quote.At.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected wire timestamp, got %s", quote.At)
	}

	indicators, ok := source.Indicators("BTC-USD")
	if !ok {
		t.Fatalf("expected stored indicators")
	}
	if !indicators.ATR.Equal(d("120")) || !indicators.EMA20.Equal(d("49800")) {
		t.Fatalf("unexpected indicators: %+v", indicators)
	}

	// the malformed and empty-instrument messages were dropped
	if _, ok := source.Indicators("ETH-USD"); ok {
		t.Fatalf("tick without indicator fields must not store indicators")
	}
}
