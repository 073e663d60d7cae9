package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"riskpilot/src/model"
)

type WebsocketConfig struct {
	URL            string        `envconfig:"FEED_WS_URL" default:"ws://localhost:9010/ticks"`
	ReadTimeout    time.Duration `envconfig:"FEED_WS_READ_TIMEOUT" default:"60s"`
	ReconnectDelay time.Duration `envconfig:"FEED_WS_RECONNECT_DELAY" default:"5s"`
}

func GetWebsocketConfig() WebsocketConfig {
	var config WebsocketConfig
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// tickMessage is the wire shape pushed by the market-data collaborator. Price
// alone makes a quote; the indicator fields are optional and only stored when
// present.
type tickMessage struct {
	Instrument string           `json:"instrument"`
	Price      decimal.Decimal  `json:"price"`
	Timeframe  string           `json:"timeframe,omitempty"`
	EMA20      *decimal.Decimal `json:"ema20,omitempty"`
	RSI14      *decimal.Decimal `json:"rsi14,omitempty"`
	MACD       *decimal.Decimal `json:"macd,omitempty"`
	ATR        *decimal.Decimal `json:"atr,omitempty"`
	Volume     *decimal.Decimal `json:"volume,omitempty"`
	AvgVolume  *decimal.Decimal `json:"avg_volume,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// WebsocketFeed streams ticks from the market-data collaborator into a
// MemorySource. Connection loss is retried forever; the engine's staleness
// checks cover the gap.
type WebsocketFeed struct {
	config WebsocketConfig
	source *MemorySource
}

func NewWebsocketFeed(config WebsocketConfig, source *MemorySource) *WebsocketFeed {
	return &WebsocketFeed{config: config, source: source}
}

// Run blocks until the context is canceled, dialing and re-dialing the feed.
func (f *WebsocketFeed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.consume(ctx); err != nil {
			logger.WithError(err).WithField("url", f.config.URL).
				Warn("Price feed disconnected, will reconnect")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.config.ReconnectDelay):
		}
	}
}

func (f *WebsocketFeed) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.config.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial price feed: %w", err)
	}
	defer conn.Close()

	logger.WithField("url", f.config.URL).Info("Price feed connected")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout)); err != nil {
			return err
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var tick tickMessage
		if err := json.Unmarshal(payload, &tick); err != nil {
			logger.WithError(err).Warn("Dropping malformed feed message")
			continue
		}
		if tick.Instrument == "" || tick.Price.LessThanOrEqual(decimal.Zero) {
			continue
		}

		at := tick.Timestamp
		if at.IsZero() {
			at = time.Now().UTC()
		}
		f.source.SetQuote(tick.Instrument, tick.Price, at)

		if tick.ATR != nil || tick.EMA20 != nil {
			f.source.SetIndicators(model.IndicatorSnapshot{
				Instrument: tick.Instrument,
				Timeframe:  tick.Timeframe,
				Price:      tick.Price,
				EMA20:      deref(tick.EMA20),
				RSI14:      deref(tick.RSI14),
				MACD:       deref(tick.MACD),
				ATR:        deref(tick.ATR),
				Volume:     deref(tick.Volume),
				AvgVolume:  deref(tick.AvgVolume),
				At:         at,
			})
		}
	}
}

func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
