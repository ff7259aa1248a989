package cache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/kbukum/whisperd/logger"
	"github.com/kbukum/whisperd/redis"
	"github.com/kbukum/whisperd/transcription"
)

const (
	defaultTTL    = 24 * time.Hour
	defaultPrefix = "whisperd:result"
	opTimeout     = 2 * time.Second
)

// Config configures the result cache.
type Config struct {
	Enabled bool          `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	TTL     time.Duration `mapstructure:"ttl" json:"ttl" yaml:"ttl"`
	Prefix  string        `mapstructure:"prefix" json:"prefix" yaml:"prefix"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
}

// ResultCache stores finished transcriptions in Redis keyed by a content
// hash. Failures are logged and reported as misses.
type ResultCache struct {
	store *redis.JSONStore[transcription.Result]
	ttl   time.Duration
	log   *logger.Logger
}

// New creates a cache over an open Redis client.
func New(client *redis.Client, cfg Config, log *logger.Logger) *ResultCache {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &ResultCache{
		store: redis.NewJSONStore[transcription.Result](client, cfg.Prefix),
		ttl:   cfg.TTL,
		log:   log.WithComponent("cache"),
	}
}

// Key returns the hex blake2b-256 digest of the audio and every option
// that changes the output.
func Key(job transcription.Job) string {
	h, _ := blake2b.New256(nil)
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(job.Audio)))
	h.Write(n[:])
	h.Write(job.Audio)
	for _, part := range []string{
		job.Language,
		string(job.Task),
		job.Options.ModelSize,
		job.Options.Compute.ComputeType(),
	} {
		h.Write([]byte{0})
		h.Write([]byte(part))
	}
	binary.BigEndian.PutUint64(n[:], uint64(job.BeamSize))
	h.Write(n[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Lookup returns a cached result for job. The filename is not part of the
// key, so the cached copy is relabeled with the job's filename.
func (c *ResultCache) Lookup(ctx context.Context, job transcription.Job) (*transcription.Result, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := Key(job)
	res, err := c.store.Load(ctx, key)
	if err != nil {
		c.log.Warn("cache lookup failed", logger.Fields("key", key, logger.FieldError, err.Error()))
		return nil, false
	}
	if res == nil {
		return nil, false
	}
	res.Filename = job.Filename
	return res, true
}

// Store saves res for job.
func (c *ResultCache) Store(ctx context.Context, job transcription.Job, res *transcription.Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opTimeout)
	defer cancel()

	key := Key(job)
	if err := c.store.Save(ctx, key, res, c.ttl); err != nil {
		c.log.Warn("cache store failed", logger.Fields("key", key, logger.FieldError, err.Error()))
	}
}
