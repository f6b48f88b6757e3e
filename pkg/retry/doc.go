// Package retry provides backoff strategies and a retry loop for transient
// transfer failures.
//
// Strategies:
//   - ExponentialBackoff with jitter
//   - ConstantBackoff, used for the fixed pause between queue retries
//   - ErrorTypeBackoff, which waits longer after rate limiting
//
// Usage:
//
//	cfg := retry.FromSettings(appCfg.Retry, log)
//	body, err := retry.DoWithResult(ctx, func(ctx context.Context) ([]byte, error) {
//		return client.get(ctx, url)
//	}, cfg)
//
// Wait and Between are context-aware sleeps shared by the harvester and the
// download orchestrator.
package retry
