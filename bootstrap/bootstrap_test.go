package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/whisperd/component"
	"github.com/kbukum/whisperd/config"
	"github.com/kbukum/whisperd/logger"
)

type testConfig struct {
	config.ServiceConfig
}

func newTestConfig() *testConfig {
	return &testConfig{ServiceConfig: config.ServiceConfig{
		Name:        "whisperd",
		Version:     "1.2.3",
		Environment: "development",
	}}
}

type journal struct{ events []string }

func (j *journal) add(e string) { j.events = append(j.events, e) }

func (j *journal) hook(name string, err error) Hook {
	return func(context.Context) error {
		j.add(name)
		return err
	}
}

type fakeComponent struct {
	name     string
	j        *journal
	status   component.HealthStatus
	startErr error
	stopErr  error
}

func (f *fakeComponent) Name() string { return f.name }

func (f *fakeComponent) Start(context.Context) error {
	f.j.add("start " + f.name)
	return f.startErr
}

func (f *fakeComponent) Stop(context.Context) error {
	f.j.add("stop " + f.name)
	return f.stopErr
}

func (f *fakeComponent) Health(context.Context) component.Health {
	status := f.status
	if status == "" {
		status = component.StatusHealthy
	}
	return component.Health{Name: f.name, Status: status}
}

type describedComponent struct{ fakeComponent }

func (d *describedComponent) Describe() component.Description {
	return component.Description{Name: "Worker Pool", Type: "workers", Details: "2 x tiny/int8"}
}

func (d *describedComponent) Routes() []component.Route {
	return []component.Route{{Method: "POST", Path: "/transcribe", Handler: "Handler.Transcribe"}}
}

func newTestApp(t *testing.T, opts ...Option) (*App[*testConfig], *journal) {
	t.Helper()
	opts = append([]Option{WithLogger(logger.Nop()), WithSummaryOutput(nil)}, opts...)
	app, err := NewApp(newTestConfig(), opts...)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app, &journal{}
}

func register(t *testing.T, app *App[*testConfig], cs ...component.Component) {
	t.Helper()
	for _, c := range cs {
		if err := app.RegisterComponent(c); err != nil {
			t.Fatalf("register %s: %v", c.Name(), err)
		}
	}
}

func TestNewApp(t *testing.T) {
	app, _ := newTestApp(t)
	if app.Name != "whisperd" || app.Version != "1.2.3" {
		t.Errorf("name/version = %q/%q", app.Name, app.Version)
	}
	if app.Cfg.Logging.Level != "debug" {
		t.Errorf("development should default to debug logging, got %q", app.Cfg.Logging.Level)
	}
	if app.gracefulTimeout != DefaultGracefulTimeout {
		t.Errorf("graceful timeout = %v", app.gracefulTimeout)
	}
	if app.Summary != nil {
		t.Error("WithSummaryOutput(nil) should disable the summary")
	}

	app, _ = newTestApp(t, WithGracefulTimeout(3*time.Second))
	if app.gracefulTimeout != 3*time.Second {
		t.Errorf("WithGracefulTimeout ignored: %v", app.gracefulTimeout)
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	cfg := newTestConfig()
	cfg.Name = ""
	if _, err := NewApp(cfg, WithLogger(logger.Nop())); err == nil {
		t.Error("expected a validation error for a missing name")
	}
	cfg = newTestConfig()
	cfg.Environment = "qa"
	if _, err := NewApp(cfg, WithLogger(logger.Nop())); err == nil {
		t.Error("expected a validation error for an unknown environment")
	}
}

func TestRunTaskLifecycleOrder(t *testing.T) {
	app, j := newTestApp(t)
	register(t, app,
		&fakeComponent{name: "workerpool", j: j},
		&fakeComponent{name: "http-server", j: j},
	)
	app.OnStart(j.hook("onStart", nil))
	app.OnConfigure(func(_ context.Context, a *App[*testConfig]) error {
		if a != app {
			t.Error("configure callback received a different app")
		}
		j.add("configure")
		return nil
	})
	app.OnReady(j.hook("onReady", nil), j.hook("onReady2", nil))
	app.OnStop(j.hook("onStop", nil))

	err := app.RunTask(context.Background(), func(context.Context) error {
		j.add("task")
		return nil
	})
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	want := []string{
		"start workerpool", "start http-server",
		"onStart", "configure", "onReady", "onReady2",
		"task",
		"onStop", "stop http-server", "stop workerpool",
	}
	if !slices.Equal(j.events, want) {
		t.Errorf("events:\n got %v\nwant %v", j.events, want)
	}
}

func TestRunTaskStartupFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		setup func(app *App[*testConfig], j *journal)
		want  []string
	}{
		{
			name: "component start",
			setup: func(app *App[*testConfig], j *journal) {
				_ = app.RegisterComponent(&fakeComponent{name: "telemetry", j: j})
				_ = app.RegisterComponent(&fakeComponent{name: "redis", j: j, startErr: boom})
			},
			want: []string{"start telemetry", "start redis", "stop telemetry"},
		},
		{
			name: "onStart hook",
			setup: func(app *App[*testConfig], j *journal) {
				_ = app.RegisterComponent(&fakeComponent{name: "workerpool", j: j})
				app.OnStart(j.hook("onStart", boom), j.hook("never", nil))
			},
			want: []string{"start workerpool", "onStart", "stop workerpool"},
		},
		{
			name: "configure",
			setup: func(app *App[*testConfig], j *journal) {
				app.OnConfigure(func(context.Context, *App[*testConfig]) error { return boom })
				app.OnReady(j.hook("never", nil))
			},
			want: nil,
		},
		{
			name: "onReady hook",
			setup: func(app *App[*testConfig], j *journal) {
				app.OnReady(j.hook("onReady", boom))
				app.OnStop(j.hook("onStop", nil))
			},
			want: []string{"onReady"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, j := newTestApp(t)
			tt.setup(app, j)

			ran := false
			err := app.RunTask(context.Background(), func(context.Context) error {
				ran = true
				return nil
			})
			if !errors.Is(err, boom) {
				t.Fatalf("expected wrapped startup error, got %v", err)
			}
			if ran {
				t.Error("task must not run after a failed startup")
			}
			if !slices.Equal(j.events, tt.want) {
				t.Errorf("events = %v, want %v", j.events, tt.want)
			}
		})
	}
}

func TestRunTaskErrorPrecedence(t *testing.T) {
	taskErr := errors.New("transcription failed")
	stopErr := errors.New("drain timed out")

	app, j := newTestApp(t)
	register(t, app, &fakeComponent{name: "workerpool", j: j, stopErr: stopErr})
	if err := app.RunTask(context.Background(), func(context.Context) error { return taskErr }); !errors.Is(err, taskErr) {
		t.Errorf("task error should win, got %v", err)
	}

	app, j = newTestApp(t)
	register(t, app, &fakeComponent{name: "workerpool", j: j, stopErr: stopErr})
	if err := app.RunTask(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, stopErr) {
		t.Errorf("stop error should surface when the task succeeds, got %v", err)
	}

	app, _ = newTestApp(t)
	app.OnStop(func(context.Context) error { return stopErr })
	if err := app.RunTask(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, stopErr) {
		t.Errorf("onStop error should surface, got %v", err)
	}
}

func TestRunTaskContextCancellation(t *testing.T) {
	app, _ := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := app.RunTask(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	app, j := newTestApp(t)
	register(t, app, &fakeComponent{name: "http-server", j: j})
	ctx, cancel := context.WithCancel(context.Background())
	app.OnReady(func(context.Context) error {
		cancel()
		return nil
	})

	if err := app.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !slices.Equal(j.events, []string{"start http-server", "stop http-server"}) {
		t.Errorf("events = %v", j.events)
	}
}

func TestShutdown(t *testing.T) {
	app, j := newTestApp(t)
	register(t, app, &fakeComponent{name: "workerpool", j: j})
	if err := app.Components.StartAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if j.events[len(j.events)-1] != "stop workerpool" {
		t.Errorf("events = %v", j.events)
	}
}

func TestReadyCheck(t *testing.T) {
	tests := []struct {
		name    string
		status  component.HealthStatus
		wantErr bool
	}{
		{"healthy", component.StatusHealthy, false},
		{"degraded", component.StatusDegraded, true},
		{"unhealthy", component.StatusUnhealthy, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, j := newTestApp(t)
			register(t, app, &fakeComponent{name: "workerpool", j: j, status: tt.status})
			err := app.ReadyCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadyCheck() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "workerpool="+string(tt.status)) {
				t.Errorf("error should name the component: %v", err)
			}
		})
	}

	app, _ := newTestApp(t)
	if err := app.ReadyCheck(context.Background()); err != nil {
		t.Errorf("empty registry should be ready: %v", err)
	}
}

func TestRunTaskToleratesUnhealthyAtStartup(t *testing.T) {
	app, j := newTestApp(t)
	register(t, app, &fakeComponent{name: "workerpool", j: j, status: component.StatusUnhealthy})
	if err := app.RunTask(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("an unhealthy component should only warn at startup: %v", err)
	}
}

func TestSummaryDisplay(t *testing.T) {
	j := &journal{}
	reg := component.NewRegistry()
	_ = reg.Register(&describedComponent{fakeComponent{name: "workerpool", j: j}})
	_ = reg.Register(&fakeComponent{name: "redis", j: j, status: component.StatusDegraded})

	var buf bytes.Buffer
	s := NewSummary("whisperd", "1.2.3")
	s.SetOutput(&buf)
	s.SetStartupDuration(1500 * time.Millisecond)
	s.Display(context.Background(), reg)

	out := buf.String()
	for _, want := range []string{
		"whisperd 1.2.3 started in 1.50s",
		"Worker Pool [workers]: 2 x tiny/int8",
		"POST    /transcribe",
		"redis: degraded",
		"1/2 healthy",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	s.Display(context.Background(), nil)
	if !strings.Contains(buf.String(), "whisperd 1.2.3") {
		t.Errorf("nil registry summary = %q", buf.String())
	}
}

func TestRunTaskPrintsSummary(t *testing.T) {
	var buf bytes.Buffer
	app, j := newTestApp(t, WithSummaryOutput(&buf))
	register(t, app, &fakeComponent{name: "workerpool", j: j})

	if err := app.RunTask(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "All components healthy (1/1)") {
		t.Errorf("summary not printed:\n%s", buf.String())
	}
}
