package client

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Watch keeps the stored session alive until ctx is done: tokens close to
// expiry are refreshed, and a session the backend revoked is dropped with an
// EventSignedOut. Transport failures are logged and retried on the next
// tick. The console's watch command runs it for as long as it is open.
func (c *Client) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.check(ctx); err != nil && ctx.Err() == nil {
				c.log.Warn("session check failed", "error", err)
			}
		}
	}
}

func (c *Client) check(ctx context.Context) error {
	s, err := c.storedSession()
	if err != nil || s == nil {
		return err
	}
	if c.expiring(s) {
		_, err := c.Refresh(ctx)
		if errors.Is(err, ErrSessionExpired) {
			return nil
		}
		return err
	}
	status, apiErr, err := c.call(ctx, http.MethodGet, "/auth/v1/session", s.AccessToken, nil, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		c.log.Info("session no longer accepted", "user_id", s.UserID, "code", apiErr.Error)
		_, err := c.Refresh(ctx)
		if errors.Is(err, ErrSessionExpired) {
			return nil
		}
		return err
	default:
		return unexpected("check session", status, apiErr)
	}
}
