package cache

import (
	"context"
	"sync"

	"github.com/kbukum/whisperd/logger"
	"github.com/kbukum/whisperd/redis"
	"github.com/kbukum/whisperd/transcription"
)

// Lazy binds a ResultCache to a Redis component that may not have started
// yet. Until the component has a client every lookup misses and every
// store is dropped.
type Lazy struct {
	comp *redis.Component
	cfg  Config
	log  *logger.Logger

	once  sync.Once
	cache *ResultCache
}

// NewLazy creates a cache over comp.
func NewLazy(comp *redis.Component, cfg Config, log *logger.Logger) *Lazy {
	return &Lazy{comp: comp, cfg: cfg, log: log}
}

func (l *Lazy) get() *ResultCache {
	client := l.comp.Client()
	if client == nil {
		return nil
	}
	l.once.Do(func() {
		l.cache = New(client, l.cfg, l.log)
	})
	return l.cache
}

// Lookup implements service.Cache.
func (l *Lazy) Lookup(ctx context.Context, job transcription.Job) (*transcription.Result, bool) {
	c := l.get()
	if c == nil {
		return nil, false
	}
	return c.Lookup(ctx, job)
}

// Store implements service.Cache.
func (l *Lazy) Store(ctx context.Context, job transcription.Job, res *transcription.Result) {
	if c := l.get(); c != nil {
		c.Store(ctx, job, res)
	}
}
