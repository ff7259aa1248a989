package modelstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const baseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// Model describes one downloadable ggml model.
type Model struct {
	Name     string
	FileName string
	URL      string
	// SHA256 is empty when no published checksum is pinned.
	SHA256 string
}

// Resolved is a model reference mapped onto the local filesystem.
type Resolved struct {
	Model
	Path          string
	NeedsDownload bool
	IsCustomPath  bool
}

var registry = map[string]Model{
	"tiny": {
		Name:     "tiny",
		FileName: "ggml-tiny.bin",
		SHA256:   "be07e048e1e599ad46341c8d2a135645097a538221678b7acdd1b1919c6e1b21",
	},
	"base": {
		Name:     "base",
		FileName: "ggml-base.bin",
		SHA256:   "60ed5bc3dd14eea856493d334349b405782ddcaf0028d4b5df4088345fba2efe",
	},
	"small": {
		Name:     "small",
		FileName: "ggml-small.bin",
		SHA256:   "1be3a9b2063867b937e64e2ec7483364a79917e157fa98c5d94b5c1fffea987b",
	},
	"medium": {
		Name:     "medium",
		FileName: "ggml-medium.bin",
		SHA256:   "6c14d5adee5f86394037b4e4e8b59f1673b6cee10e3cf0b11bbdbee79c156208",
	},
	"large-v2": {
		Name:     "large-v2",
		FileName: "ggml-large-v2.bin",
	},
	"large-v3": {
		Name:     "large-v3",
		FileName: "ggml-large-v3.bin",
		SHA256:   "64d182b440b98d5203c4f9bd541544d84c605196c4f7b845dfa11fb23594d1e2",
	},
}

// "large" follows the newest large checkpoint.
var aliases = map[string]string{"large": "large-v3"}

func init() {
	for name, m := range registry {
		m.URL = baseURL + m.FileName
		registry[name] = m
	}
}

// Names returns the known model names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry)+len(aliases))
	for name := range registry {
		names = append(names, name)
	}
	for name := range aliases {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup finds a model by name or alias.
func Lookup(name string) (Model, bool) {
	if target, ok := aliases[name]; ok {
		name = target
	}
	m, ok := registry[name]
	return m, ok
}

// Resolve maps a model name or a filesystem path to a local file under dir.
func Resolve(ref, dir string) (Resolved, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Resolved{}, errors.New("model reference is required")
	}

	if m, ok := Lookup(ref); ok {
		if strings.TrimSpace(dir) == "" {
			return Resolved{}, errors.New("model directory must not be empty for named model")
		}
		path := filepath.Join(dir, m.FileName)
		_, err := os.Stat(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Resolved{}, fmt.Errorf("stat model path: %w", err)
		}
		return Resolved{Model: m, Path: path, NeedsDownload: err != nil}, nil
	}

	if !looksLikePath(ref) {
		return Resolved{}, fmt.Errorf("unknown model %q (known models: %s)", ref, strings.Join(Names(), ", "))
	}
	path := filepath.Clean(ref)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Resolved{}, fmt.Errorf("custom model path does not exist: %s", path)
		}
		return Resolved{}, fmt.Errorf("stat custom model path: %w", err)
	}
	return Resolved{Path: path, IsCustomPath: true}, nil
}

func looksLikePath(s string) bool {
	return strings.ContainsRune(s, os.PathSeparator) || strings.HasSuffix(strings.ToLower(s), ".bin")
}
