package engine

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// InitialBalanceUSD seeds the account on first boot; ignored once an
	// account row exists.
	InitialBalanceUSD float64 `envconfig:"INITIAL_BALANCE_USD" default:"1000"`
	// DecisionPeriod is the slow loop: context assembly, provider call,
	// admission, cooldown decay, reconciliation.
	DecisionPeriod time.Duration `envconfig:"DECISION_PERIOD" default:"2m"`
	// MonitorPeriod is the fast loop: mark-to-market, exits, trailing stops.
	MonitorPeriod time.Duration `envconfig:"MONITOR_PERIOD" default:"30s"`
	// RecentTradeCount bounds the trade history handed to the provider.
	RecentTradeCount int `envconfig:"RECENT_TRADE_COUNT" default:"20"`
	// ExecutionTimeout bounds each entry submission before it is parked for
	// reconciliation.
	ExecutionTimeout time.Duration `envconfig:"EXECUTION_SUBMIT_TIMEOUT" default:"15s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
