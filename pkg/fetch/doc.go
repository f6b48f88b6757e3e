// Package fetch downloads favorite media assets over HTTP.
//
// The Client reuses the cookies of the attached browser session so signed
// asset URLs resolve, classifies failures into typed errors from
// grokfav/pkg/errors and retries transient ones (network, 429, 5xx) with the
// error-type backoff from grokfav/pkg/retry.
package fetch
