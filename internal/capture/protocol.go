// Package capture implements the credential capture process: it opens a
// browser session for one account, waits for the operator to signal that
// the manual login step is done, then atomically persists the session's
// cookies and per-origin storage to the credential store.
//
// The supervisor talks to a capture process only through its environment,
// arguments, stdin, output streams and exit code.
package capture

import (
	"fmt"
	"strconv"
	"strings"
)

// Environment variables understood by the capture process.
const (
	EnvMode        = "SETUP_AUTH_MODE"
	EnvTargetIndex = "SETUP_AUTH_TARGET_INDEX"
	EnvLang        = "SETUP_AUTH_LANG"
	EnvBrowserPath = "BROWSER_EXECUTABLE_PATH"
)

// DefaultLang is the language hint used when none is configured.
const DefaultLang = "zh"

// DefaultTargetURL is the page the capture session opens.
const DefaultTargetURL = "https://aistudio.google.com/u/0/apps/bundled/blank?showPreview=true&showCode=true&showAssistant=true"

// Mode selects what a capture run does with the session it captures.
type Mode string

const (
	// ModeCreate provisions a new numbered credential.
	ModeCreate Mode = "create"
	// ModeRelogin refreshes an existing credential in place.
	ModeRelogin Mode = "relogin"
)

// ParseMode maps a mode string to a Mode. Anything but "relogin" is Create.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeRelogin)) {
		return ModeRelogin
	}
	return ModeCreate
}

// ParseIndex parses an account index: a base-10, non-negative integer.
func ParseIndex(s string) (int, error) {
	s = strings.TrimSpace(s)
	index, err := strconv.Atoi(s)
	if err != nil || index < 0 {
		return 0, fmt.Errorf("invalid account index %q", s)
	}
	return index, nil
}

// Args returns the capture subcommand arguments for a mode.
func Args(mode Mode, targetIndex int) []string {
	if mode == ModeRelogin {
		return []string{"capture", string(ModeRelogin), strconv.Itoa(targetIndex)}
	}
	return []string{"capture", string(ModeCreate)}
}
