// Package api holds the transcription HTTP handlers: POST /transcribe takes a
// multipart upload and returns the transcription result as JSON, GET / reports
// the service configuration.
package api
