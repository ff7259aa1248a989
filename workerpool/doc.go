// Package workerpool runs transcription jobs on a fixed set of model workers.
//
// Each worker owns one transcription.Engine and runs at most one job at a
// time. Submit assigns the lowest-numbered idle worker and blocks while all
// workers are busy. Workers load asynchronously after Start; the
// ReadinessTracker turns Ready when the first load succeeds and back to
// NotReady only if every worker has failed.
//
// A worker whose engine reports transcription.ErrLoadFailed is marked Failed
// and never receives another job. Any other error, including a recovered
// panic, returns the worker to Idle.
package workerpool
