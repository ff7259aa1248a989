// Package service is the transcription façade. HandleTranscribe validates
// the upload, refuses work while no model is loaded, consults the result
// cache, takes a gate ticket, dispatches to the worker pool and normalizes
// the result. Request count and duration are recorded for every request
// that passed validation; errors are counted by kind on every path.
package service
