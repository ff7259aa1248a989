// Package cache keeps finished transcriptions in Redis so a repeated upload
// of the same audio with the same decoding options skips inference.
package cache
