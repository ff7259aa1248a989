// Package transcription defines the request and result types of the
// transcription pipeline and the Engine contract every model backend
// implements.
//
// An Engine owns one loaded model instance. It is loaded once and then
// receives jobs one at a time; the worker pool guarantees that no two
// Transcribe calls overlap on the same Engine.
//
// # Backends
//
//   - transcription/whisper: faster-whisper HTTP sidecar
//   - transcription/openai: OpenAI-compatible audio transcription API
//   - transcription/whispercli: whisper.cpp command line binary
//
// # Usage
//
//	reg := transcription.NewRegistry()
//	reg.RegisterFactory(whisper.EngineName, whisper.Factory(cfg.Engine.Sidecar))
//	engine, err := reg.Create(whisper.EngineName, transcription.WorkerSpec{ID: 0, Options: opts})
package transcription
