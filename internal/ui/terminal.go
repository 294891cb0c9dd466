package ui

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether stdout is a TTY.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor honors NO_COLOR, then CLICOLOR=0, then CLICOLOR_FORCE,
// and otherwise colors only when attached to a terminal.
func ShouldUseColor() bool {
	_, noColor := os.LookupEnv("NO_COLOR")
	_, force := os.LookupEnv("CLICOLOR_FORCE")
	switch {
	case noColor, os.Getenv("CLICOLOR") == "0":
		return false
	case force:
		return true
	}
	return IsTerminal()
}

// ShouldUseEmoji is false when AUTHCAP_NO_EMOJI is set or output is piped.
func ShouldUseEmoji() bool {
	if _, off := os.LookupEnv("AUTHCAP_NO_EMOJI"); off {
		return false
	}
	return IsTerminal()
}
