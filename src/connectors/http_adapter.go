package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"riskpilot/src/model"
)

type HTTPAdapterConfig struct {
	BaseURL    string        `envconfig:"EXECUTION_BASE_URL" default:"http://localhost:9020"`
	APIKey     string        `envconfig:"EXECUTION_API_KEY"`
	Timeout    time.Duration `envconfig:"EXECUTION_TIMEOUT" default:"15s"`
	RetryCount int           `envconfig:"EXECUTION_RETRY_COUNT" default:"2"`
}

func GetHTTPAdapterConfig() HTTPAdapterConfig {
	var config HTTPAdapterConfig
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()
	if code >= 500 && code <= 599 {
		return true
	}
	if code == http.StatusTooManyRequests {
		return true
	}
	if code == http.StatusRequestTimeout {
		return true
	}
	return false
}

// HTTPAdapter talks to the live order-execution service. Entry submissions
// carry the idempotency key so the service can deduplicate retried requests;
// the same key drives LookupEntry during reconciliation.
type HTTPAdapter struct {
	http *resty.Client
}

func NewHTTPAdapter(config HTTPAdapterConfig) *HTTPAdapter {
	httpClient := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetRetryCount(config.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(isRetryableResp)

	if config.APIKey != "" {
		httpClient.SetHeader("X-Api-Key", config.APIKey)
	}

	return &HTTPAdapter{http: httpClient}
}

type fillResponse struct {
	Fill  *Fill  `json:"fill"`
	Error string `json:"error,omitempty"`
}

func (a *HTTPAdapter) SubmitEntry(ctx context.Context, order EntryOrder) (*Fill, error) {
	var out fillResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(order).
		SetResult(&out).
		SetError(&out).
		Post("/orders/entry")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: entry %s", ErrExecutionTimeout, order.IdempotencyKey)
		}
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	if resp.IsError() || out.Fill == nil {
		logger.WithFields(map[string]interface{}{
			"connector":  "http",
			"instrument": order.Instrument,
			"status":     resp.StatusCode(),
			"error":      out.Error,
		}).Error("Entry submission rejected")
		return nil, fmt.Errorf("%w: status %d %s", ErrExecutionFailed, resp.StatusCode(), out.Error)
	}
	return out.Fill, nil
}

func (a *HTTPAdapter) SubmitExit(ctx context.Context, instrument string, quantity decimal.Decimal, reason model.CloseReason) (*Fill, error) {
	var out fillResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"instrument": instrument, "quantity": quantity, "reason": string(reason)}).
		SetResult(&out).
		SetError(&out).
		Post("/orders/exit")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	if resp.IsError() || out.Fill == nil {
		return nil, fmt.Errorf("%w: status %d %s", ErrExecutionFailed, resp.StatusCode(), out.Error)
	}
	return out.Fill, nil
}

func (a *HTTPAdapter) LookupEntry(ctx context.Context, idempotencyKey string) (*Fill, bool, error) {
	var out fillResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get("/orders/entry/" + idempotencyKey)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.IsError() || out.Fill == nil {
		return nil, false, fmt.Errorf("%w: status %d %s", ErrExecutionFailed, resp.StatusCode(), out.Error)
	}
	return out.Fill, true, nil
}
