package server

import (
	"context"
	"fmt"

	"github.com/kbukum/whisperd/component"
)

const componentName = "http-server"

var (
	_ component.Component     = (*Component)(nil)
	_ component.Describable   = (*Component)(nil)
	_ component.RouteProvider = (*Component)(nil)
)

// Component registers a Server with the component registry. It is
// registered last so it starts after the workers and drains first.
type Component struct {
	server *Server
}

func NewComponent(s *Server) *Component {
	return &Component{server: s}
}

func (sc *Component) Name() string { return componentName }

func (sc *Component) Start(ctx context.Context) error { return sc.server.Start(ctx) }

func (sc *Component) Stop(ctx context.Context) error { return sc.server.Stop(ctx) }

// Health is healthy once the listener is bound.
func (sc *Component) Health(context.Context) component.Health {
	h := component.Health{Name: componentName, Status: component.StatusHealthy}
	if !sc.server.bound() {
		h.Status, h.Message = component.StatusUnhealthy, "listener not bound"
	}
	return h
}

func (sc *Component) Describe() component.Description {
	cfg := sc.server.config
	return component.Description{
		Name:    "HTTP Server",
		Type:    "server",
		Details: fmt.Sprintf("%s:%d h2c, max body %d bytes", cfg.Host, cfg.Port, cfg.MaxBodyBytes()),
		Port:    cfg.Port,
	}
}
