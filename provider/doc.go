// Package provider implements a small generic factory registry for
// swappable backends selected by name at startup.
//
//	reg := provider.NewRegistry[transcription.Engine, transcription.WorkerSpec]()
//	reg.RegisterFactory("sidecar", whisper.Factory(cfg))
//	engine, err := reg.Create("sidecar", spec)
package provider
