package server

import (
	"cmp"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/whisperd/component"
)

// systemPaths are the routes registered by RegisterDefaultEndpoints.
var systemPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/health":  true,
	"/version": true,
	"/metrics": true,
}

var methodRank = []string{"GET", "POST", "PUT", "PATCH", "DELETE"}

func rankMethod(m string) int {
	if i := slices.Index(methodRank, m); i >= 0 {
		return i
	}
	return len(methodRank)
}

// Routes lists the Gin routes for the startup summary: API routes first,
// then system routes, each group ordered by path and method.
func (sc *Component) Routes() []component.Route {
	rs := sc.server.engine.Routes()
	slices.SortFunc(rs, func(a, b gin.RouteInfo) int {
		if sa, sb := systemPaths[a.Path], systemPaths[b.Path]; sa != sb {
			if sa {
				return 1
			}
			return -1
		}
		return cmp.Or(
			strings.Compare(a.Path, b.Path),
			cmp.Compare(rankMethod(a.Method), rankMethod(b.Method)),
		)
	})

	out := make([]component.Route, len(rs))
	for i, r := range rs {
		handler := formatHandlerName(r.Handler)
		if systemPaths[r.Path] {
			handler += " (system)"
		}
		out[i] = component.Route{Method: r.Method, Path: r.Path, Handler: handler}
	}
	return out
}

// formatHandlerName shortens Gin's handler symbol:
// "github.com/kbukum/whisperd/api.(*Handler).Transcribe-fm" becomes
// "Handler.Transcribe", and a closure such as
// "github.com/kbukum/whisperd/server/endpoint.Liveness.func1" becomes
// "liveness".
func formatHandlerName(symbol string) string {
	name := strings.TrimSuffix(symbol, "-fm")
	name = name[strings.LastIndex(name, "/")+1:]
	name = strings.NewReplacer("(*", "", ")", "").Replace(name)

	parts := strings.Split(name, ".")
	if strings.HasPrefix(parts[len(parts)-1], "func") {
		for i := len(parts) - 1; i >= 0; i-- {
			if !strings.HasPrefix(parts[i], "func") {
				return strings.ToLower(parts[i])
			}
		}
	}
	if len(parts) > 1 && strings.ToLower(parts[0]) == parts[0] {
		parts = parts[1:]
	}
	return strings.Join(parts, ".")
}
