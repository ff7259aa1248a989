package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbukum/whisperd/app"
	"github.com/kbukum/whisperd/bootstrap"
	"github.com/kbukum/whisperd/transcription"
)

const (
	formatJSON = "json"
	formatText = "text"
)

type transcribeFlags struct {
	language string
	task     string
	beamSize int
	format   string
	model    string
	workers  int
}

func newTranscribeCmd(st *appState) *cobra.Command {
	var f transcribeFlags

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe one audio file in-process and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.format != formatJSON && f.format != formatText {
				return fmt.Errorf("--format must be %s or %s", formatJSON, formatText)
			}
			path := filepath.Clean(args[0])
			audio, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read audio: %w", err)
			}

			cfg, err := st.loadConfig()
			if err != nil {
				return err
			}
			// stdout carries the transcript.
			cfg.Logging.Output = "stderr"
			if f.model != "" {
				cfg.Model.Size = f.model
			}
			if f.workers > 0 {
				cfg.Model.Workers = f.workers
			}

			opts := append([]bootstrap.Option{bootstrap.WithSummaryOutput(nil)}, st.appOpts...)
			a, err := app.New(cfg, opts...)
			if err != nil {
				return err
			}
			buildOpts := append([]app.Option{app.WithoutServer()}, st.buildOpts...)
			stack, err := app.Build(cmd.Context(), a, buildOpts...)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}

			req := transcription.Request{
				Audio:    audio,
				Filename: filepath.Base(path),
				Language: f.language,
				Task:     transcription.Task(f.task),
				BeamSize: f.beamSize,
			}
			return a.RunTask(cmd.Context(), func(ctx context.Context) error {
				if err := stack.Pool.WaitReady(ctx); err != nil {
					return fmt.Errorf("waiting for workers: %w", err)
				}
				res, err := stack.Service.HandleTranscribe(ctx, req)
				if err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), res, f.format)
			})
		},
	}

	cmd.Flags().StringVar(&f.language, "language", "", "Language code; detected when empty")
	cmd.Flags().StringVar(&f.task, "task", string(transcription.TaskTranscribe), "transcribe or translate")
	cmd.Flags().IntVar(&f.beamSize, "beam-size", 0, "Beam size override for this file")
	cmd.Flags().StringVar(&f.format, "format", formatText, "Output format: text or json")
	cmd.Flags().StringVar(&f.model, "model", "", "Model size override")
	cmd.Flags().IntVar(&f.workers, "workers", 1, "Workers to load")
	return cmd
}

func writeResult(w io.Writer, res *transcription.Result, format string) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	text := strings.TrimSpace(res.Transcription.FullText)
	if text == "" {
		text = "[no speech detected]"
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
