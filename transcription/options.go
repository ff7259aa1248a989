package transcription

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Model sizes accepted by every engine.
const (
	ModelTiny    = "tiny"
	ModelBase    = "base"
	ModelSmall   = "small"
	ModelMedium  = "medium"
	ModelLarge   = "large"
	ModelLargeV2 = "large-v2"
	ModelLargeV3 = "large-v3"
)

// ModelSizes lists the supported model sizes, smallest first.
var ModelSizes = []string{ModelTiny, ModelBase, ModelSmall, ModelMedium, ModelLarge, ModelLargeV2, ModelLargeV3}

// ComputeMode selects the device a model runs on.
type ComputeMode string

const (
	ComputeCPU ComputeMode = "cpu"
	ComputeGPU ComputeMode = "gpu"
)

// ComputeType returns the quantization used for the mode: int8 on CPU,
// float16 on GPU.
func (m ComputeMode) ComputeType() string {
	if m == ComputeGPU {
		return "float16"
	}
	return "int8"
}

// Device returns the device name faster-whisper style runtimes expect.
func (m ComputeMode) Device() string {
	if m == ComputeGPU {
		return "cuda"
	}
	return "cpu"
}

// Task is the decoding task requested for a job.
type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

// Bounds for the tunable integer options.
const (
	MinBeamSize = 1
	MaxBeamSize = 20
	MinWorkers  = 1
	MaxWorkers  = 4
)

// DefaultExtensions are the audio file types accepted when none are configured.
var DefaultExtensions = []string{".mp3", ".wav", ".m4a", ".flac", ".ogg", ".wma", ".aac"}

// Options is the model configuration resolved once at startup.
type Options struct {
	ModelSize string
	Compute   ComputeMode
	BeamSize  int
	Workers   int
}

// Validate checks every field against its allowed range.
func (o Options) Validate() error {
	if !slices.Contains(ModelSizes, o.ModelSize) {
		return fmt.Errorf("model size %q must be one of %v", o.ModelSize, ModelSizes)
	}
	if o.Compute != ComputeCPU && o.Compute != ComputeGPU {
		return fmt.Errorf("compute mode %q must be cpu or gpu", o.Compute)
	}
	if o.BeamSize < MinBeamSize || o.BeamSize > MaxBeamSize {
		return fmt.Errorf("beam size %d must be between %d and %d", o.BeamSize, MinBeamSize, MaxBeamSize)
	}
	if o.Workers < MinWorkers || o.Workers > MaxWorkers {
		return fmt.Errorf("worker count %d must be between %d and %d", o.Workers, MinWorkers, MaxWorkers)
	}
	return nil
}

// ModelInfo returns the model description attached to every result.
func (o Options) ModelInfo() *ModelInfo {
	return &ModelInfo{
		ModelSize:   o.ModelSize,
		ComputeType: o.Compute.ComputeType(),
		BeamSize:    o.BeamSize,
	}
}

// Request is one inbound transcription call.
type Request struct {
	Audio    []byte
	Filename string
	Language string
	Task     Task
	// BeamSize overrides Options.BeamSize when non-zero.
	BeamSize int
}

// Extension returns the lower-cased file extension of the declared filename.
func (r Request) Extension() string {
	return strings.ToLower(filepath.Ext(r.Filename))
}

// Job is what an Engine receives: the request plus the resolved options.
type Job struct {
	Audio    []byte
	Filename string
	Language string
	Task     Task
	BeamSize int
	Options  Options
}

// NewJob resolves per-request overrides against the startup options.
func NewJob(req Request, opts Options) Job {
	job := Job{
		Audio:    req.Audio,
		Filename: req.Filename,
		Language: strings.TrimSpace(req.Language),
		Task:     req.Task,
		BeamSize: opts.BeamSize,
		Options:  opts,
	}
	if job.Task == "" {
		job.Task = TaskTranscribe
	}
	if req.BeamSize > 0 {
		job.BeamSize = req.BeamSize
	}
	return job
}

// Suffix returns the file extension to use for temporary copies of the
// audio, defaulting to .wav.
func (j Job) Suffix() string {
	if ext := filepath.Ext(j.Filename); ext != "" {
		return strings.ToLower(ext)
	}
	return ".wav"
}
