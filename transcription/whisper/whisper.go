package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/whisperd/resilience"
	"github.com/kbukum/whisperd/transcription"
)

const (
	// ProviderName is the registered engine kind for the sidecar engine.
	ProviderName = "sidecar"

	defaultURL          = "http://localhost:8387"
	defaultTimeout      = 10 * time.Minute
	defaultLoadTimeout  = 5 * time.Minute
	defaultPollInterval = time.Second
	maxErrorBody        = 4 << 10
)

// Config holds configuration for the faster-whisper sidecar engine.
type Config struct {
	// URLs lists sidecar base URLs. Worker i talks to URLs[i % len(URLs)].
	URLs []string `mapstructure:"urls" json:"urls" yaml:"urls"`
	// Timeout bounds one transcription request.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	// LoadTimeout bounds how long Load waits for the sidecar to report healthy.
	LoadTimeout time.Duration `mapstructure:"load_timeout" json:"load_timeout" yaml:"load_timeout"`
	// PollInterval is the delay between health checks during Load.
	PollInterval time.Duration `mapstructure:"poll_interval" json:"poll_interval" yaml:"poll_interval"`
	// DisableVAD turns off the sidecar's voice activity filter.
	DisableVAD bool `mapstructure:"disable_vad" json:"disable_vad" yaml:"disable_vad"`
	// BreakerFailures is the number of consecutive backend failures that open the breaker.
	BreakerFailures int `mapstructure:"breaker_failures" json:"breaker_failures" yaml:"breaker_failures"`
	// BreakerCooldown is how long the breaker stays open.
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" json:"breaker_cooldown" yaml:"breaker_cooldown"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if len(c.URLs) == 0 {
		c.URLs = []string{defaultURL}
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.LoadTimeout == 0 {
		c.LoadTimeout = defaultLoadTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerCooldown == 0 {
		c.BreakerCooldown = 30 * time.Second
	}
}

// URLFor returns the sidecar URL assigned to a worker.
func (c Config) URLFor(workerID int) string {
	if len(c.URLs) == 0 {
		return defaultURL
	}
	if workerID < 0 {
		workerID = -workerID
	}
	return strings.TrimRight(c.URLs[workerID%len(c.URLs)], "/")
}

// Engine implements transcription.Engine against one faster-whisper HTTP sidecar.
type Engine struct {
	cfg     Config
	url     string
	client  *http.Client
	breaker *resilience.CircuitBreaker
}

// New creates an engine for one worker.
func New(cfg Config, spec transcription.WorkerSpec) *Engine {
	cfg.ApplyDefaults()
	url := cfg.URLFor(spec.ID)
	return &Engine{
		cfg:    cfg,
		url:    url,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             fmt.Sprintf("sidecar-%d", spec.ID),
			MaxFailures:      cfg.BreakerFailures,
			Timeout:          cfg.BreakerCooldown,
			HalfOpenMaxCalls: 1,
			IsFailure: func(err error) bool {
				return !errors.Is(err, transcription.ErrDecodeFailed)
			},
		}),
	}
}

// Factory returns a transcription.Factory building sidecar engines from cfg.
func Factory(cfg Config) transcription.Factory {
	return func(spec transcription.WorkerSpec) (transcription.Engine, error) {
		return New(cfg, spec), nil
	}
}

// Name returns the engine kind.
func (e *Engine) Name() string { return ProviderName }

// URL returns the sidecar this engine talks to.
func (e *Engine) URL() string { return e.url }

// IsAvailable checks if the sidecar answers its health endpoint.
func (e *Engine) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url+"/health", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Load waits until the sidecar reports healthy.
func (e *Engine) Load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.LoadTimeout)
	defer cancel()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if e.IsAvailable(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: sidecar %s not healthy: %v", transcription.ErrLoadFailed, e.url, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Transcribe posts the audio to the sidecar.
func (e *Engine) Transcribe(ctx context.Context, job transcription.Job) (*transcription.Result, error) {
	var result *transcription.Result
	err := e.breaker.Execute(func() error {
		r, err := e.transcribe(ctx, job)
		result = r
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: sidecar %s: %v", transcription.ErrInferenceFailed, e.url, err)
	}
	return result, err
}

// Close is a no-op; the sidecar owns the model.
func (e *Engine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func (e *Engine) transcribe(ctx context.Context, job transcription.Job) (*transcription.Result, error) {
	body, contentType, err := e.encode(job)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", transcription.ErrInferenceFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url+"/transcribe", body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", transcription.ErrInferenceFailed, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sidecar request: %v", transcription.ErrInferenceFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		sentinel := transcription.ErrInferenceFailed
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			sentinel = transcription.ErrDecodeFailed
		}
		return nil, fmt.Errorf("%w: sidecar status %d: %s", sentinel, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out sidecarResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode sidecar response: %v", transcription.ErrInferenceFailed, err)
	}
	return out.toResult(job), nil
}

func (e *Engine) encode(job transcription.Job) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := job.Filename
	if name == "" {
		name = "audio" + job.Suffix()
	}
	part, err := w.CreateFormFile("audio", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(job.Audio); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"model", job.Options.ModelSize},
		{"task", string(job.Task)},
		{"beam_size", strconv.Itoa(job.BeamSize)},
		{"device", job.Options.Compute.Device()},
		{"compute_type", job.Options.Compute.ComputeType()},
		{"word_timestamps", "true"},
		{"vad_filter", strconv.FormatBool(!e.cfg.DisableVAD)},
	}
	if job.Language != "" {
		fields = append(fields, [2]string{"language", job.Language})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// sidecarResponse accepts both the nested result shape and the flat
// {text, segments} shape older sidecars return.
type sidecarResponse struct {
	Language            string     `json:"language"`
	LanguageProbability float64    `json:"language_probability"`
	Duration            float64    `json:"duration"`
	DurationAfterVAD    float64    `json:"duration_after_vad"`
	Transcription       *struct {
		FullText string           `json:"full_text"`
		Segments []sidecarSegment `json:"segments"`
	} `json:"transcription"`
	Text     string           `json:"text"`
	Segments []sidecarSegment `json:"segments"`
}

type sidecarSegment struct {
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Text  string        `json:"text"`
	Words []sidecarWord `json:"words"`
}

type sidecarWord struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Word        string  `json:"word"`
	Probability float64 `json:"probability"`
}

func (r *sidecarResponse) toResult(job transcription.Job) *transcription.Result {
	segs := r.Segments
	if r.Transcription != nil {
		segs = r.Transcription.Segments
	}

	res := &transcription.Result{
		Filename:            job.Filename,
		Language:            r.Language,
		LanguageProbability: r.LanguageProbability,
		Duration:            r.Duration,
		DurationAfterVAD:    r.DurationAfterVAD,
		Transcription: transcription.Transcript{
			Segments: make([]transcription.Segment, 0, len(segs)),
		},
	}
	if res.Language == "" && job.Language != "" {
		res.Language = job.Language
		res.LanguageProbability = 1
	}
	for _, s := range segs {
		seg := transcription.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
			Words: make([]transcription.Word, 0, len(s.Words)),
		}
		for _, w := range s.Words {
			seg.Words = append(seg.Words, transcription.Word(w))
		}
		res.Transcription.Segments = append(res.Transcription.Segments, seg)
	}
	if len(segs) == 0 && strings.TrimSpace(r.Text) != "" {
		res.Transcription.Segments = append(res.Transcription.Segments, transcription.Segment{
			End:   r.Duration,
			Text:  r.Text,
			Words: []transcription.Word{},
		})
	}
	return res
}
