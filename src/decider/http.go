package decider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
)

type HTTPProviderConfig struct {
	BaseURL    string        `envconfig:"DECIDER_BASE_URL" default:"http://localhost:9030"`
	APIKey     string        `envconfig:"DECIDER_API_KEY"`
	Timeout    time.Duration `envconfig:"DECIDER_TIMEOUT" default:"45s"`
	RetryCount int           `envconfig:"DECIDER_RETRY_COUNT" default:"1"`
}

func GetHTTPProviderConfig() HTTPProviderConfig {
	var config HTTPProviderConfig
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
	return false
}

// HTTPProvider posts the decision context to an external strategy service and
// returns whatever decisions come back. Individual decision validation stays
// with the caller.
type HTTPProvider struct {
	http *resty.Client
}

func NewHTTPProvider(config HTTPProviderConfig) *HTTPProvider {
	httpClient := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetRetryCount(config.RetryCount).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(isRetryableResp)

	if config.APIKey != "" {
		httpClient.SetHeader("X-Api-Key", config.APIKey)
	}

	return &HTTPProvider{http: httpClient}
}

type decideResponse struct {
	Decisions []Decision `json:"decisions"`
	Error     string     `json:"error,omitempty"`
}

func (p *HTTPProvider) Decide(ctx context.Context, decisionCtx Context) ([]Decision, error) {
	var out decideResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(decisionCtx).
		SetResult(&out).
		SetError(&out).
		Post("/decide")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if resp.IsError() {
		logger.WithFields(map[string]interface{}{
			"provider": "http",
			"status":   resp.StatusCode(),
			"error":    out.Error,
		}).Error("Decision request rejected")
		return nil, fmt.Errorf("%w: status %d %s", ErrProviderUnavailable, resp.StatusCode(), out.Error)
	}
	return out.Decisions, nil
}
