// Package cmd provides CLI commands for the authcap tool.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/steveyegge/authcap/internal/config"
	"github.com/steveyegge/authcap/internal/exitcode"
	"github.com/steveyegge/authcap/internal/ui"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "authcap",
	Short:   "Supervised browser credential capture",
	Version: Version,
	Long: `authcap captures browser login sessions into numbered credential files
(auth-<n>.json) and keeps a proxy's credential table in sync with them.

A long-running server supervises one capture process at a time. Operators
start a capture, complete the login in the browser window, then signal the
capture to continue so the session is saved.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.InitColor()
	},
}

// Execute runs the root command and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if code, ok := IsSilentExit(err); ok {
			return code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitcode.Code(err)
	}
	return exitcode.Success
}

// Command group IDs - used by subcommands to organize help output
const (
	GroupServer = "server"
	GroupSetup  = "setup"
	GroupStore  = "store"
	GroupDiag   = "diag"
)

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupServer, Title: "Server:"},
		&cobra.Group{ID: GroupSetup, Title: "Credential Capture:"},
		&cobra.Group{ID: GroupStore, Title: "Credential Store:"},
		&cobra.Group{ID: GroupDiag, Title: "Diagnostics:"},
	)
	rootCmd.SetHelpCommandGroupID(GroupDiag)
	rootCmd.SetCompletionCommandGroupID(GroupDiag)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, exitcode.Wrap(exitcode.ErrUsage, "loading config", err)
	}
	return cfg, nil
}

// silentExitError carries an exit code for commands that already reported
// their failure.
type silentExitError struct {
	code int
}

func (e *silentExitError) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

// NewSilentExit returns an error that exits with code without printing.
func NewSilentExit(code int) error {
	return &silentExitError{code: code}
}

// IsSilentExit reports whether err is a silent exit and returns its code.
func IsSilentExit(err error) (int, bool) {
	var se *silentExitError
	if errors.As(err, &se) {
		return se.code, true
	}
	return 0, false
}

// buildCommandPath walks the command hierarchy to build the full command path.
// For example: "authcap setup start", "authcap auth list", etc.
func buildCommandPath(cmd *cobra.Command) string {
	var parts []string
	for c := cmd; c != nil; c = c.Parent() {
		parts = append([]string{c.Name()}, parts...)
	}
	return strings.Join(parts, " ")
}

// requireSubcommand returns a RunE function for parent commands that require
// a subcommand. Without this, Cobra silently shows help and exits 0 for
// unknown subcommands like "authcap setup foobar", masking errors.
func requireSubcommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return exitcode.Newf(exitcode.ErrUsage, "requires a subcommand\n\nRun '%s --help' for usage", buildCommandPath(cmd))
	}
	return exitcode.Newf(exitcode.ErrUsage, "unknown command %q for %q\n\nRun '%s --help' for available commands",
		args[0], buildCommandPath(cmd), buildCommandPath(cmd))
}
