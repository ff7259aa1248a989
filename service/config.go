package service

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kbukum/whisperd/transcription"
)

// Gate modes.
const (
	// GateWait queues excess requests for up to RequestTimeout.
	GateWait = "wait"
	// GateReject turns excess requests away immediately.
	GateReject = "reject"
)

const (
	defaultMaxFileSize    = 100 << 20
	defaultRequestTimeout = 5 * time.Minute
)

// Config is the immutable service configuration.
type Config struct {
	Options           transcription.Options
	MaxFileSize       int64
	AllowedExtensions []string
	// RequestTimeout bounds the time a request may wait at the gate and
	// for a worker. It never interrupts a running inference.
	RequestTimeout time.Duration
	GateMode       string
}

// ApplyDefaults fills zero values and normalizes extensions to ".ext" form.
func (c *Config) ApplyDefaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = defaultMaxFileSize
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = slices.Clone(transcription.DefaultExtensions)
	}
	exts := make([]string, 0, len(c.AllowedExtensions))
	for _, e := range c.AllowedExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	c.AllowedExtensions = exts
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.GateMode == "" {
		c.GateMode = GateWait
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if err := c.Options.Validate(); err != nil {
		return err
	}
	if c.GateMode != GateWait && c.GateMode != GateReject {
		return fmt.Errorf("gate mode %q must be %s or %s", c.GateMode, GateWait, GateReject)
	}
	if len(c.AllowedExtensions) == 0 {
		return fmt.Errorf("at least one allowed extension is required")
	}
	return nil
}
