package redis

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kbukum/whisperd/component"
	"github.com/kbukum/whisperd/logger"
)

const componentName = "redis"

// Component owns a Client for the component registry. The client is
// published atomically so request goroutines can read it while the
// registry starts or stops the component.
type Component struct {
	cfg    Config
	log    *logger.Logger
	client atomic.Pointer[Client]
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent prepares a component for cfg. Nothing dials until Start.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	if log == nil {
		log = logger.Nop()
	}
	cfg.ApplyDefaults()
	return &Component{cfg: cfg, log: log.WithComponent(componentName)}
}

// Client returns the connected client, or nil before Start and after Stop.
func (c *Component) Client() *Client { return c.client.Load() }

func (c *Component) Name() string { return componentName }

// Start connects and publishes the client once a ping succeeds.
func (c *Component) Start(ctx context.Context) error {
	client, err := New(c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("redis start: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis start: %w", err)
	}
	if old := c.client.Swap(client); old != nil {
		_ = old.Close()
	}
	c.log.Info("redis connected", logger.Fields("addr", c.cfg.Addr, "db", c.cfg.DB))
	return nil
}

// Stop unpublishes and closes the client.
func (c *Component) Stop(context.Context) error {
	return c.client.Swap(nil).Close()
}

// Health reports unhealthy before Start and degraded while the server is
// unreachable; the result cache is optional, so losing it never stops the
// service from answering.
func (c *Component) Health(ctx context.Context) component.Health {
	h := component.Health{Name: componentName, Status: component.StatusHealthy}
	client := c.client.Load()
	if client == nil {
		h.Status, h.Message = component.StatusUnhealthy, "not connected"
		return h
	}
	begin := time.Now()
	if err := client.Ping(ctx); err != nil {
		h.Status, h.Message = component.StatusDegraded, err.Error()
		return h
	}
	h.Message = fmt.Sprintf("ping %s", time.Since(begin).Round(time.Microsecond))
	return h
}

// Describe implements component.Describable.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Redis",
		Type:    componentName,
		Details: fmt.Sprintf("%s db=%d pool=%d", c.cfg.Addr, c.cfg.DB, c.cfg.PoolSize),
	}
}
