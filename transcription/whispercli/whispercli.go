// Package whispercli runs whisper.cpp's whisper-cli binary as a transcription engine.
package whispercli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/whisperd/modelstore"
	"github.com/kbukum/whisperd/process"
	"github.com/kbukum/whisperd/transcription"
)

// ProviderName is the registered engine kind.
const ProviderName = "cli"

const (
	defaultBinary  = "whisper-cli"
	defaultFFmpeg  = "ffmpeg"
	defaultTimeout = 30 * time.Minute
)

// Config holds configuration for the whisper-cli engine.
type Config struct {
	Binary string `mapstructure:"binary" json:"binary" yaml:"binary"`
	// ModelPath pins a ggml file. Empty resolves the configured model size
	// through the model store.
	ModelPath string        `mapstructure:"model_path" json:"model_path" yaml:"model_path"`
	Threads   int           `mapstructure:"threads" json:"threads" yaml:"threads"`
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	// Convert re-encodes input to 16kHz mono WAV with ffmpeg first.
	Convert      bool   `mapstructure:"convert" json:"convert" yaml:"convert"`
	FFmpegBinary string `mapstructure:"ffmpeg_binary" json:"ffmpeg_binary" yaml:"ffmpeg_binary"`
	TempDir      string `mapstructure:"temp_dir" json:"temp_dir" yaml:"temp_dir"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Binary == "" {
		c.Binary = defaultBinary
	}
	if c.FFmpegBinary == "" {
		c.FFmpegBinary = defaultFFmpeg
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}

// Engine implements transcription.Engine by shelling out to whisper-cli.
type Engine struct {
	cfg       Config
	opts      transcription.Options
	store     *modelstore.Store
	runner    *process.Runner
	binary    string
	modelPath string
}

// New creates an engine for one worker.
func New(cfg Config, spec transcription.WorkerSpec, store *modelstore.Store) *Engine {
	cfg.ApplyDefaults()
	return &Engine{
		cfg:   cfg,
		opts:  spec.Options,
		store: store,
		runner: process.NewRunner(process.Config{
			Name:        fmt.Sprintf("whisper-cli-%d", spec.ID),
			Timeout:     cfg.Timeout,
			MaxFailures: 5,
			Cooldown:    30 * time.Second,
			IsFailure: func(err error) bool {
				return !isInputError(err.Error())
			},
		}),
	}
}

// Factory returns a transcription.Factory building whisper-cli engines.
func Factory(cfg Config, store *modelstore.Store) transcription.Factory {
	return func(spec transcription.WorkerSpec) (transcription.Engine, error) {
		return New(cfg, spec, store), nil
	}
}

// Name returns the engine kind.
func (e *Engine) Name() string { return ProviderName }

// IsAvailable reports whether the binary and model were resolved.
func (e *Engine) IsAvailable(_ context.Context) bool {
	return e.binary != "" && e.modelPath != ""
}

// Load resolves the binary and the model file.
func (e *Engine) Load(ctx context.Context) error {
	bin, err := process.LookPath(e.cfg.Binary)
	if err != nil {
		return fmt.Errorf("%w: %v", transcription.ErrLoadFailed, err)
	}

	path := e.cfg.ModelPath
	if path == "" {
		if e.store == nil {
			return fmt.Errorf("%w: no model path and no model store", transcription.ErrLoadFailed)
		}
		path, err = e.store.Ensure(ctx, e.opts.ModelSize)
		if err != nil {
			return fmt.Errorf("%w: %v", transcription.ErrLoadFailed, err)
		}
	} else if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: model file: %v", transcription.ErrLoadFailed, err)
	}

	if e.cfg.Convert {
		if _, err := process.LookPath(e.cfg.FFmpegBinary); err != nil {
			return fmt.Errorf("%w: %v", transcription.ErrLoadFailed, err)
		}
	}
	e.binary, e.modelPath = bin, path
	return nil
}

// Transcribe writes the audio to a scratch directory and runs whisper-cli on it.
func (e *Engine) Transcribe(ctx context.Context, job transcription.Job) (*transcription.Result, error) {
	if !e.IsAvailable(ctx) {
		return nil, fmt.Errorf("%w: engine not loaded", transcription.ErrInferenceFailed)
	}

	dir, err := os.MkdirTemp(e.cfg.TempDir, "whisperd-")
	if err != nil {
		return nil, fmt.Errorf("%w: scratch dir: %v", transcription.ErrInferenceFailed, err)
	}
	defer os.RemoveAll(dir)

	base := filepath.Join(dir, uuid.NewString())
	input := base + job.Suffix()
	if err := os.WriteFile(input, job.Audio, 0o600); err != nil {
		return nil, fmt.Errorf("%w: write audio: %v", transcription.ErrInferenceFailed, err)
	}

	if e.cfg.Convert {
		wav := base + ".16k.wav"
		if _, err := e.runner.Run(ctx, process.Command{
			Binary: e.cfg.FFmpegBinary,
			Args:   []string{"-nostdin", "-y", "-loglevel", "error", "-i", input, "-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le", wav},
		}); err != nil {
			return nil, fmt.Errorf("%w: convert audio: %v", transcription.ErrDecodeFailed, err)
		}
		input = wav
	}

	res, err := e.runner.Run(ctx, process.Command{Binary: e.binary, Args: e.args(job, input, base)})
	if err != nil {
		if isInputError(err.Error()) {
			return nil, fmt.Errorf("%w: %v", transcription.ErrDecodeFailed, err)
		}
		return nil, fmt.Errorf("%w: %v", transcription.ErrInferenceFailed, err)
	}

	raw, err := os.ReadFile(base + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %v", transcription.ErrInferenceFailed, err)
	}
	out, err := parseOutput(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transcription.ErrInferenceFailed, err)
	}

	result := out.toResult(job)
	switch {
	case job.Language != "":
		result.LanguageProbability = 1
	default:
		result.LanguageProbability = detectedProbability(string(res.Stderr))
	}
	return result, nil
}

// Close forgets the resolved paths.
func (e *Engine) Close() error {
	e.binary, e.modelPath = "", ""
	return nil
}

func (e *Engine) args(job transcription.Job, input, outBase string) []string {
	lang := job.Language
	if lang == "" {
		lang = "auto"
	}
	args := []string{
		"-m", e.modelPath,
		"-f", input,
		"-ojf",
		"-of", outBase,
		"-bs", strconv.Itoa(job.BeamSize),
		"-l", lang,
	}
	if job.Task == transcription.TaskTranslate {
		args = append(args, "-tr")
	}
	if job.Options.Compute == transcription.ComputeCPU {
		args = append(args, "-ng")
	}
	if e.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(e.cfg.Threads))
	}
	return args
}

var inputErrorPatterns = []string{
	"failed to read",
	"failed to open",
	"invalid wav",
	"unsupported audio",
	"error opening input",
	"invalid data found when processing input",
}

func isInputError(msg string) bool {
	msg = strings.ToLower(msg)
	for _, p := range inputErrorPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

var detectedLangPattern = regexp.MustCompile(`auto-detected language: [a-z]+ \(p = ([0-9.]+)\)`)

func detectedProbability(stderr string) float64 {
	m := detectedLangPattern.FindStringSubmatch(stderr)
	if len(m) < 2 {
		return 0
	}
	p, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return p
}
