// Package modelstore resolves and downloads whisper.cpp ggml model files.
//
// Named models (tiny through large-v3) live in a single directory and are
// fetched from the whisper.cpp model repository with checksum verification.
// A reference that looks like a path is used as-is.
package modelstore
