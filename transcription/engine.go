package transcription

import (
	"context"
	"errors"

	"github.com/kbukum/whisperd/provider"
)

// Engine errors. Implementations wrap one of these so callers can classify
// failures with errors.Is.
var (
	// ErrLoadFailed means the model could not be initialized. A worker whose
	// engine reports it is not used again.
	ErrLoadFailed = errors.New("model load failed")
	// ErrDecodeFailed means the audio was unreadable or corrupt.
	ErrDecodeFailed = errors.New("audio decode failed")
	// ErrInferenceFailed means the model failed while decoding valid audio.
	ErrInferenceFailed = errors.New("inference failed")
)

// Engine owns one loaded instance of a speech model.
type Engine interface {
	provider.Provider

	// Load initializes the model. It is called once before any Transcribe.
	Load(ctx context.Context) error
	// Transcribe runs inference on one job. Calls on one Engine never overlap.
	Transcribe(ctx context.Context, job Job) (*Result, error)
	// Close releases the model.
	Close() error
}

// WorkerSpec is what an engine factory receives for each pool worker.
type WorkerSpec struct {
	ID      int
	Options Options
}

// Factory builds one Engine per worker.
type Factory = provider.Factory[Engine, WorkerSpec]

// NewRegistry creates an engine registry keyed by engine kind.
func NewRegistry() *provider.Registry[Engine, WorkerSpec] {
	return provider.NewRegistry[Engine, WorkerSpec]()
}
