package modelstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kbukum/whisperd/logger"
)

// Config configures a Store.
type Config struct {
	// Dir holds downloaded ggml files.
	Dir string `mapstructure:"dir" json:"dir" yaml:"dir"`
	// AutoDownload fetches missing named models on Ensure.
	AutoDownload bool `mapstructure:"auto_download" json:"auto_download" yaml:"auto_download"`
	Retries      int  `mapstructure:"retries" json:"retries" yaml:"retries"`
	NoProgress   bool `mapstructure:"no_progress" json:"no_progress" yaml:"no_progress"`
}

// DefaultDir returns the per-user model directory.
func DefaultDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "whisperd", "models")
	}
	return filepath.Join(os.TempDir(), "whisperd", "models")
}

// Status reports whether a known model is present on disk.
type Status struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Present bool   `json:"present"`
	Bytes   int64  `json:"bytes"`
}

// Store manages ggml model files in one directory.
type Store struct {
	cfg Config
	log *logger.Logger
	// download is swapped in tests.
	download func(ctx context.Context, opts DownloadOptions) error
}

// New creates a Store.
func New(cfg Config, log *logger.Logger) *Store {
	if cfg.Dir == "" {
		cfg.Dir = DefaultDir()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{cfg: cfg, log: log.WithComponent("modelstore"), download: Download}
}

// Dir returns the model directory.
func (s *Store) Dir() string { return s.cfg.Dir }

// Ensure returns a local path for ref, downloading it when allowed.
func (s *Store) Ensure(ctx context.Context, ref string) (string, error) {
	r, err := Resolve(ref, s.cfg.Dir)
	if err != nil {
		return "", err
	}
	if !r.NeedsDownload {
		return r.Path, nil
	}
	if !s.cfg.AutoDownload {
		return "", fmt.Errorf("model %s not found at %s (run `whisperd models pull %s` or enable auto download)", r.Name, r.Path, r.Name)
	}
	return s.fetch(ctx, r)
}

// Pull downloads a named model, replacing any existing file when force is set.
func (s *Store) Pull(ctx context.Context, name string, force bool) (string, error) {
	r, err := Resolve(name, s.cfg.Dir)
	if err != nil {
		return "", err
	}
	if r.IsCustomPath {
		return "", fmt.Errorf("%s is a path, not a model name", name)
	}
	if !r.NeedsDownload && !force {
		return r.Path, nil
	}
	return s.fetch(ctx, r)
}

// List reports every known model and whether it is on disk.
func (s *Store) List() []Status {
	names := Names()
	out := make([]Status, 0, len(names))
	for _, name := range names {
		m, _ := Lookup(name)
		st := Status{Name: name, Path: filepath.Join(s.cfg.Dir, m.FileName)}
		if info, err := os.Stat(st.Path); err == nil && !info.IsDir() {
			st.Present = true
			st.Bytes = info.Size()
		}
		out = append(out, st)
	}
	return out
}

func (s *Store) fetch(ctx context.Context, r Resolved) (string, error) {
	s.log.Info("downloading model", logger.Fields("model", r.Name, "url", r.URL, "path", r.Path))
	err := s.download(ctx, DownloadOptions{
		URL:            r.URL,
		Destination:    r.Path,
		ExpectedSHA256: r.SHA256,
		Retries:        s.cfg.Retries,
		NoProgress:     s.cfg.NoProgress,
		Logger:         s.log,
	})
	if err != nil {
		return "", fmt.Errorf("download model %s: %w", r.Name, err)
	}
	s.log.Info("model downloaded", logger.Fields("model", r.Name, "path", r.Path))
	return r.Path, nil
}
