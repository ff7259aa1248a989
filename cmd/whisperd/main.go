package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kbukum/whisperd/cli"
)

func main() {
	cmd := cli.NewRootCmd()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if shouldPrintUsageHint(err) {
			fmt.Fprintf(os.Stderr, "Run '%s --help' for usage.\n", cmd.CommandPath())
		}
		os.Exit(1)
	}
}

func shouldPrintUsageHint(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"unknown command", "unknown flag", "unknown shorthand flag", "accepts ", "requires at least"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
