package app

import (
	"template-service/internal/common/logging"
	"template-service/internal/common/ratelimit"
)

// InitializeRateLimiter creates the per-client limiter, or nil when rate
// limiting is off.
func (app *App) InitializeRateLimiter() *ratelimit.Limiter {
	if !app.Config.RateLimitEnabled {
		return nil
	}

	limiter, err := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: app.Config.RateLimitRPS,
		BurstSize:         app.Config.RateLimitBurst,
		Enabled:           true,
	})
	if err != nil {
		app.Logger.Warn("Rate limiting disabled", logging.Err(err))
		return nil
	}
	return limiter
}
