// Package version provides build version information for whisperd.
//
// Version, git commit, branch, and build time are set at compile time
// via -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/whisperd/version.Version=1.0.0" ./cmd/whisperd
package version
