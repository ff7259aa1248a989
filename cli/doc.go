// Package cli implements the whisperd command line.
package cli
