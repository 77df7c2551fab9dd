package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/gci-tools/reportes-console/internal/gateway"
	"github.com/gci-tools/reportes-console/internal/pkg/httpx"
	"github.com/gci-tools/reportes-console/internal/pkg/logger"
	"github.com/gci-tools/reportes-console/internal/platform/apierr"
)

// Status is the service's health answer.
type Status struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	UTCTime  string `json:"utc_time"`
	ClientIP string `json:"client_ip"`
}

type Client struct {
	log *logger.Logger
	gw  *gateway.Gateway
}

func New(log *logger.Logger, gw *gateway.Gateway) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if gw == nil {
		return nil, fmt.Errorf("gateway required")
	}
	return &Client{log: log.With("component", "Health"), gw: gw}, nil
}

func (c *Client) Check(ctx context.Context) (*Status, error) {
	return gateway.JSON[Status](ctx, c.gw, http.MethodGet, "/health", nil)
}

// Wait polls /health with fibonacci backoff until the service answers or the
// deadline expires. Only transient failures are retried.
func (c *Client) Wait(ctx context.Context, timeout time.Duration) (*Status, error) {
	if timeout <= 0 {
		timeout = time.Minute
	}
	b := retry.WithMaxDuration(timeout, retry.NewFibonacci(time.Second))
	var out *Status
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		st, err := c.Check(ctx)
		if err != nil {
			if httpx.IsRetryableError(err) || isTransport(err) {
				c.log.Debug("health not ready, retrying", "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		out = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// isTransport reports whether the call never produced an HTTP status at all
// (dial/DNS failures), which for readiness waiting counts as "not yet up".
func isTransport(err error) bool {
	var e *apierr.Error
	return errors.As(err, &e) && e != nil && e.Kind == apierr.KindRemote && e.Status == 0
}
