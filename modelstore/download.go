package modelstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/kbukum/whisperd/logger"
	"github.com/kbukum/whisperd/resilience"
)

// DownloadOptions configures a single file download.
type DownloadOptions struct {
	URL            string
	Destination    string
	ExpectedSHA256 string
	Retries        int
	NoProgress     bool
	HTTPClient     *http.Client
	Logger         *logger.Logger
}

// Download fetches URL into Destination through a .part file, verifying the
// checksum when one is given. Transport errors are retried; checksum and
// client errors are not.
func Download(ctx context.Context, opts DownloadOptions) error {
	if opts.URL == "" {
		return errors.New("download URL is required")
	}
	if opts.Destination == "" {
		return errors.New("destination path is required")
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Minute}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(opts.Destination), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	expected := strings.ToLower(strings.TrimSpace(opts.ExpectedSHA256))
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = opts.Retries
	cfg.InitialBackoff = 300 * time.Millisecond
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		opts.Logger.Warn("retrying download", logger.Fields(
			"attempt", attempt+1,
			"max", opts.Retries,
			"url", opts.URL,
			logger.FieldError, err.Error(),
		))
	}
	return resilience.RetryFunc(ctx, cfg, func() error {
		return downloadOnce(ctx, opts, expected)
	})
}

// VerifyFileChecksum hashes path and compares it with expected. An empty
// expected value always passes.
func VerifyFileChecksum(path, expected string) error {
	expected = strings.ToLower(strings.TrimSpace(expected))
	if expected == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash file: %w", err)
	}
	if actual := hex.EncodeToString(h.Sum(nil)); actual != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}

func downloadOnce(ctx context.Context, opts DownloadOptions, expected string) error {
	tmp := opts.Destination + ".part"
	_ = os.Remove(tmp)

	out, err := os.Create(tmp)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("create temp file: %w", err))
	}
	ok := false
	defer func() {
		_ = out.Close()
		if !ok {
			_ = os.Remove(tmp)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, http.NoBody)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", "whisperd/1")

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return resilience.Permanent(err)
		}
		return err
	}

	hash := sha256.New()
	w := io.MultiWriter(out, hash)

	var bar *progressbar.ProgressBar
	if renderProgress(opts.NoProgress, resp.ContentLength) {
		bar = progressbar.NewOptions64(
			resp.ContentLength,
			progressbar.OptionSetDescription("downloading "+filepath.Base(opts.Destination)),
			progressbar.OptionSetWidth(20),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
		w = io.MultiWriter(out, hash, bar)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download body: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}

	if actual := hex.EncodeToString(hash.Sum(nil)); expected != "" && actual != expected {
		return resilience.Permanent(fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual))
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, opts.Destination); err != nil {
		return resilience.Permanent(fmt.Errorf("move temp file into destination: %w", err))
	}
	ok = true
	return nil
}

func renderProgress(disabled bool, contentLength int64) bool {
	if disabled || contentLength <= 0 {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
