// Package ratelimit throttles media transfers so a large gallery does not
// hammer the asset CDN.
//
// TokenBucket refills continuously: a bucket built from
// requests_per_minute=120 and burst_size=10 lets ten transfers start at once
// and then one every 500ms. Unlimited is used when the rate is zero.
//
//	limiter := ratelimit.FromSettings(cfg.RateLimit)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
package ratelimit
