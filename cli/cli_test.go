package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"testing"

	"github.com/kbukum/whisperd/app"
	"github.com/kbukum/whisperd/bootstrap"
	"github.com/kbukum/whisperd/logger"
	"github.com/kbukum/whisperd/transcription"
)

type echoEngine struct{}

func (echoEngine) Name() string                     { return "echo" }
func (echoEngine) IsAvailable(context.Context) bool { return true }
func (echoEngine) Load(context.Context) error       { return nil }
func (echoEngine) Close() error                     { return nil }

func (echoEngine) Transcribe(_ context.Context, job transcription.Job) (*transcription.Result, error) {
	text := fmt.Sprintf("%d bytes task=%s beam=%d", len(job.Audio), job.Task, job.BeamSize)
	return &transcription.Result{
		Language: "en",
		Transcription: transcription.Transcript{
			FullText: " " + text + " ",
			Segments: []transcription.Segment{{Start: 0, End: 1, Text: text}},
		},
	}, nil
}

type harness struct {
	st      *appState
	out     bytes.Buffer
	errOut  bytes.Buffer
	dir     string
	cfgPath string
}

func newHarness(t *testing.T, extraConfig string) *harness {
	t.Helper()
	h := &harness{dir: t.TempDir()}
	h.cfgPath = filepath.Join(h.dir, "config.yml")
	cfg := fmt.Sprintf("model:\n  size: tiny\nmetrics:\n  no_runtime: true\nengine:\n  models:\n    dir: %s\n%s", filepath.Join(h.dir, "models"), extraConfig)
	if err := os.WriteFile(h.cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	h.st = &appState{
		out:    &h.out,
		errOut: &h.errOut,
		appOpts: []bootstrap.Option{
			bootstrap.WithLogger(logger.Nop()),
			bootstrap.WithSummaryOutput(nil),
		},
		buildOpts: []app.Option{
			app.WithEngine("sidecar", func(transcription.WorkerSpec) (transcription.Engine, error) {
				return echoEngine{}, nil
			}),
		},
	}
	return h
}

func (h *harness) run(args ...string) error {
	cmd := newRootCmd(h.st)
	cmd.SetArgs(append([]string{"--config", h.cfgPath}, args...))
	return cmd.Execute()
}

// mustRun fails the test when the command errors.
func (h *harness) mustRun(t *testing.T, args ...string) {
	t.Helper()
	if err := h.run(args...); err != nil {
		t.Fatalf("%v failed: %v", args, err)
	}
}

func expectErrorContains(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil || !strings.Contains(err.Error(), want) {
		t.Errorf("expected error containing %q, got %v", want, err)
	}
}

func writeAudio(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, bytes.Repeat([]byte{1}, size), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestTranscribeText(t *testing.T) {
	h := newHarness(t, "")
	audio := writeAudio(t, h.dir, "clip.wav", 32)

	h.mustRun(t, "transcribe", audio, "--beam-size", "2")
	if got, want := h.out.String(), "32 bytes task=transcribe beam=2\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestTranscribeJSON(t *testing.T) {
	h := newHarness(t, "")
	audio := writeAudio(t, h.dir, "clip.flac", 8)

	h.mustRun(t, "transcribe", audio, "--format", "json", "--task", "translate")

	var res transcription.Result
	if err := json.Unmarshal(h.out.Bytes(), &res); err != nil {
		t.Fatalf("invalid json output %q: %v", h.out.String(), err)
	}
	if res.Filename != "clip.flac" {
		t.Errorf("filename = %q", res.Filename)
	}
	if res.Transcription.FullText != "8 bytes task=translate beam=5" {
		t.Errorf("full_text = %q", res.Transcription.FullText)
	}
	if res.ModelInfo == nil || res.ModelInfo.ModelSize != "tiny" {
		t.Errorf("model_info = %+v", res.ModelInfo)
	}
}

func TestTranscribeRejectsBadExtension(t *testing.T) {
	h := newHarness(t, "")
	audio := writeAudio(t, h.dir, "notes.txt", 8)
	if err := h.run("transcribe", audio); err == nil {
		t.Error("expected an error for .txt")
	}
	if h.out.Len() != 0 {
		t.Errorf("unexpected output %q", h.out.String())
	}
}

func TestTranscribeBadFormat(t *testing.T) {
	h := newHarness(t, "")
	audio := writeAudio(t, h.dir, "clip.wav", 8)
	expectErrorContains(t, h.run("transcribe", audio, "--format", "xml"), "--format")
}

func TestTranscribeMissingFile(t *testing.T) {
	h := newHarness(t, "")
	expectErrorContains(t, h.run("transcribe", filepath.Join(h.dir, "gone.wav")), "read audio")
}

func TestTranscribeRequiresOneArg(t *testing.T) {
	h := newHarness(t, "")
	if err := h.run("transcribe"); err == nil {
		t.Error("expected an error without a file argument")
	}
}

func TestServeBuildsServer(t *testing.T) {
	h := newHarness(t, "")
	stop := errors.New("stop")
	var names []string
	h.st.run = func(_ context.Context, a *bootstrap.App[*app.Config]) error {
		for _, c := range a.Components.All() {
			names = append(names, c.Name())
		}
		return stop
	}
	if err := h.run("serve"); !errors.Is(err, stop) {
		t.Fatalf("expected the run error back, got %v", err)
	}
	if want := []string{"telemetry", "workerpool", "http-server"}; !slices.Equal(names, want) {
		t.Errorf("components = %v, want %v", names, want)
	}
}

func TestServeInvalidConfig(t *testing.T) {
	h := newHarness(t, "transcription:\n  gate_mode: drop\n")
	if err := h.run("serve"); err == nil {
		t.Error("expected a config error")
	}
}

func TestModelsList(t *testing.T) {
	h := newHarness(t, "")
	models := filepath.Join(h.dir, "models")
	if err := os.MkdirAll(models, 0o755); err != nil {
		t.Fatal(err)
	}
	writeAudio(t, models, "ggml-tiny.bin", 2048)

	h.mustRun(t, "models", "list")
	out := h.out.String()
	for _, pattern := range []string{
		`(?m)^NAME\s+STATUS\s+SIZE\s+PATH$`,
		`(?m)^tiny\s+present\s+2\.0KB\s+`,
		`(?m)^base\s+missing\s+-\s+`,
	} {
		if !regexp.MustCompile(pattern).MatchString(out) {
			t.Errorf("output does not match %s:\n%s", pattern, out)
		}
	}
}

func TestModelsPullPresent(t *testing.T) {
	h := newHarness(t, "")
	models := filepath.Join(h.dir, "models")
	if err := os.MkdirAll(models, 0o755); err != nil {
		t.Fatal(err)
	}
	writeAudio(t, models, "ggml-base.bin", 16)

	h.mustRun(t, "models", "pull", "base")
	if want := "Model base ready at " + filepath.Join(models, "ggml-base.bin"); !strings.Contains(h.out.String(), want) {
		t.Errorf("output %q missing %q", h.out.String(), want)
	}
}

func TestModelsPullUnknown(t *testing.T) {
	h := newHarness(t, "")
	expectErrorContains(t, h.run("models", "pull", "gigantic"), "unknown model")
}

func TestVersion(t *testing.T) {
	h := newHarness(t, "")
	h.mustRun(t, "version")
	if !strings.Contains(h.out.String(), "whisperd ") {
		t.Errorf("unexpected version output %q", h.out.String())
	}

	h.out.Reset()
	h.mustRun(t, "version", "--json")
	if !strings.Contains(h.out.String(), `"version"`) {
		t.Errorf("unexpected json version output %q", h.out.String())
	}
}
