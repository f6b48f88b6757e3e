// Package scraper is the control surface for harvesting a Grok favorites
// gallery and downloading everything on it.
//
// A Scraper owns one run controller. Attach installs the browser page to
// work on and supersedes whatever was running before. StartHarvestAndDownload
// scrolls the page, builds the download queue and hands it to the
// orchestrator in the background; the answer comes back immediately as a
// StartResult.
//
// Status events go to the sink passed to New and to a bounded history, so an
// observer that connects late can rebuild its view with RequestCurrentState.
//
// Usage:
//
//	s := scraper.New(pool, console, scraper.OptionsFromConfig(cfg), log)
//	s.Attach(&scraper.Page{Surface: surface, Resolver: resolver, Reverser: unfav})
//
//	res := s.StartHarvestAndDownload(ctx, false, 0)
//	if res.Status != scraper.StartStarted {
//	    return fmt.Errorf("run not started: %s", res.Message)
//	}
//	summary, err := s.Wait(ctx)
//
// Unfavoriting:
//
// When a run finishes, its reversal index lists one entry per favorite card.
// ExecuteReversal takes 0-based entry indices and removes those cards from
// favorites; SkipReversal discards the index instead.
package scraper
