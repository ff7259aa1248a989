// Package openai provides a transcription engine backed by an
// OpenAI-compatible /audio/transcriptions endpoint.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kbukum/whisperd/transcription"
)

// ProviderName is the registered engine kind.
const ProviderName = "openai"

const (
	defaultModel   = "whisper-1"
	defaultTimeout = 10 * time.Minute
)

// Config holds configuration for the OpenAI-compatible engine.
type Config struct {
	APIKey  string `mapstructure:"api_key" json:"-" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" json:"base_url" yaml:"base_url"`
	// Model is sent as-is. Empty means whisper-1.
	Model   string        `mapstructure:"model" json:"model" yaml:"model"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	// VerifyOnLoad lists the endpoint's models during Load.
	VerifyOnLoad bool `mapstructure:"verify_on_load" json:"verify_on_load" yaml:"verify_on_load"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}

// Engine implements transcription.Engine using go-openai.
type Engine struct {
	cfg    Config
	id     int
	client *goopenai.Client
}

// New creates an engine for one worker.
func New(cfg Config, spec transcription.WorkerSpec) *Engine {
	cfg.ApplyDefaults()
	return &Engine{cfg: cfg, id: spec.ID}
}

// Factory returns a transcription.Factory building OpenAI engines from cfg.
func Factory(cfg Config) transcription.Factory {
	return func(spec transcription.WorkerSpec) (transcription.Engine, error) {
		return New(cfg, spec), nil
	}
}

// Name returns the engine kind.
func (e *Engine) Name() string { return ProviderName }

// IsAvailable reports whether Load has configured a client.
func (e *Engine) IsAvailable(_ context.Context) bool {
	return e.client != nil
}

// Load builds the client. Either an API key or a base URL is required.
func (e *Engine) Load(ctx context.Context) error {
	if e.cfg.APIKey == "" && e.cfg.BaseURL == "" {
		return fmt.Errorf("%w: openai engine needs an api key or a base url", transcription.ErrLoadFailed)
	}

	clientCfg := goopenai.DefaultConfig(e.cfg.APIKey)
	if e.cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(e.cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: e.cfg.Timeout}
	client := goopenai.NewClientWithConfig(clientCfg)

	if e.cfg.VerifyOnLoad {
		if _, err := client.ListModels(ctx); err != nil {
			return fmt.Errorf("%w: list models: %v", transcription.ErrLoadFailed, err)
		}
	}
	e.client = client
	return nil
}

// Transcribe uploads the audio and converts the verbose_json response.
func (e *Engine) Transcribe(ctx context.Context, job transcription.Job) (*transcription.Result, error) {
	if e.client == nil {
		return nil, fmt.Errorf("%w: engine not loaded", transcription.ErrInferenceFailed)
	}

	name := job.Filename
	if name == "" {
		name = "audio" + job.Suffix()
	}
	req := goopenai.AudioRequest{
		Model:    e.cfg.Model,
		FilePath: name,
		Reader:   bytes.NewReader(job.Audio),
		Format:   goopenai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []goopenai.TranscriptionTimestampGranularity{
			goopenai.TranscriptionTimestampGranularityWord,
			goopenai.TranscriptionTimestampGranularitySegment,
		},
	}

	var (
		resp goopenai.AudioResponse
		err  error
	)
	if job.Task == transcription.TaskTranslate {
		resp, err = e.client.CreateTranslation(ctx, req)
	} else {
		req.Language = job.Language
		resp, err = e.client.CreateTranscription(ctx, req)
	}
	if err != nil {
		return nil, classify(err)
	}
	return toResult(job, resp), nil
}

// Close drops the client.
func (e *Engine) Close() error {
	e.client = nil
	return nil
}

func classify(err error) error {
	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch status {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %v", transcription.ErrDecodeFailed, err)
	}
	return fmt.Errorf("%w: %v", transcription.ErrInferenceFailed, err)
}

func toResult(job transcription.Job, resp goopenai.AudioResponse) *transcription.Result {
	res := &transcription.Result{
		Filename: job.Filename,
		Language: languageCode(resp.Language),
		Duration: resp.Duration,
	}
	if res.Language == "" {
		res.Language = job.Language
	}
	if res.Language != "" {
		res.LanguageProbability = 1
	}

	segs := make([]transcription.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segs = append(segs, transcription.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
			Words: []transcription.Word{},
		})
	}
	if len(segs) == 0 && strings.TrimSpace(resp.Text) != "" {
		segs = append(segs, transcription.Segment{End: resp.Duration, Text: resp.Text, Words: []transcription.Word{}})
	}

	for _, w := range resp.Words {
		idx := segmentFor(segs, (w.Start+w.End)/2)
		if idx < 0 {
			continue
		}
		p := 1.0
		if idx < len(resp.Segments) {
			p = math.Exp(resp.Segments[idx].AvgLogprob)
		}
		segs[idx].Words = append(segs[idx].Words, transcription.Word{
			Start:       w.Start,
			End:         w.End,
			Word:        w.Word,
			Probability: math.Min(1, math.Max(0, p)),
		})
	}
	res.Transcription.Segments = segs
	return res
}

// segmentFor returns the segment whose interval contains t, else the
// nearest one by start time.
func segmentFor(segs []transcription.Segment, t float64) int {
	if len(segs) == 0 {
		return -1
	}
	best, bestDist := 0, math.Inf(1)
	for i, s := range segs {
		if t >= s.Start && t <= s.End {
			return i
		}
		d := math.Min(math.Abs(t-s.Start), math.Abs(t-s.End))
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

var languageNames = map[string]string{
	"english": "en", "german": "de", "french": "fr", "spanish": "es",
	"italian": "it", "portuguese": "pt", "dutch": "nl", "russian": "ru",
	"chinese": "zh", "japanese": "ja", "korean": "ko", "arabic": "ar",
	"hindi": "hi", "turkish": "tr", "polish": "pl", "ukrainian": "uk",
	"swedish": "sv", "danish": "da", "norwegian": "no", "finnish": "fi",
}

// languageCode maps the full language names OpenAI returns to ISO codes.
func languageCode(lang string) string {
	l := strings.ToLower(strings.TrimSpace(lang))
	if code, ok := languageNames[l]; ok {
		return code
	}
	return l
}
