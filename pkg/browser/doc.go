// Package browser attaches grokfav to the live favorites gallery through
// go-rod.
//
// A Session launches (or reuses, through a persistent profile directory) a
// Chromium instance and exposes the single gallery tab as:
//   - PageSurface, the harvest.Surface the harvester scrolls and samples
//   - CardResolver, which groups media by the card holding the remove control
//   - Unfavoriter, which clicks remove controls by page position
//
// Session cookies can be exported for the HTTP media client so downloads run
// as the signed-in user.
package browser
