package main

import (
	"os"
	"strings"
)

// init runs before any lipgloss renderer touches the terminal.
//
// Lipgloss/Termenv background detection can emit OSC/DSR control sequences
// to stdout. Those are harmless in a real terminal but corrupt the JSON
// lines written by -json and -serve. Termenv skips TTY probing when CI is
// set, so machine-readable invocations set it early.
func init() {
	if os.Getenv("CI") != "" {
		return
	}

	if !shouldSuppressTTYQueries(os.Args[1:], os.Getenv("PARITY_TEST_MODE") != "") {
		return
	}

	_ = os.Setenv("CI", "1")
}

func shouldSuppressTTYQueries(args []string, envTest bool) bool {
	if envTest {
		return true
	}

	for _, arg := range args {
		name, _, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		switch name {
		case "json", "serve", "version", "help", "export-sqlite":
			return true
		}
	}

	return false
}
