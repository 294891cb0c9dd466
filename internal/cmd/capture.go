package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/steveyegge/authcap/internal/capture"
	"github.com/steveyegge/authcap/internal/credstore"
	"github.com/steveyegge/authcap/internal/exitcode"
)

var captureCmd = &cobra.Command{
	Use:    "capture",
	Short:  "Run a capture process (internal)",
	Hidden: true,
	RunE:   requireSubcommand,
	Long: `Run one capture in the foreground. The server starts this as its capture
process; it can also be run by hand.

A newline on stdin signals that the login in the browser is complete.
Failures are printed as "ERROR: <message>" on stderr and reported through
the exit code: 2 usage, 13 credential not found, 14 browser not found,
1 anything else.`,
}

var captureCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Capture a new credential under the next free index",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 {
			return captureFailed(cmd, exitcode.Newf(exitcode.ErrUsage, "capture create takes no arguments"))
		}
		return runCapture(cmd, capture.ModeCreate, 0)
	},
}

var captureReloginCmd = &cobra.Command{
	Use:   "relogin <index>",
	Short: "Refresh an existing credential in place",
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw string
		switch len(args) {
		case 0:
			raw = os.Getenv(capture.EnvTargetIndex)
		case 1:
			raw = args[0]
		default:
			return captureFailed(cmd, exitcode.Newf(exitcode.ErrUsage, "usage: capture relogin <index>"))
		}
		index, err := capture.ParseIndex(raw)
		if err != nil {
			return captureFailed(cmd, exitcode.Wrap(exitcode.ErrUsage, "relogin", err))
		}
		return runCapture(cmd, capture.ModeRelogin, index)
	},
}

func init() {
	captureCmd.AddCommand(captureCreateCmd)
	captureCmd.AddCommand(captureReloginCmd)
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, mode capture.Mode, index int) error {
	cfg, err := loadConfig()
	if err != nil {
		return captureFailed(cmd, err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return captureFailed(cmd, fmt.Errorf("getting working directory: %w", err))
	}
	bin, err := capture.ResolveBrowserPath(cfg.Capture.BrowserPath, cwd)
	if err != nil {
		return captureFailed(cmd, exitcode.Wrap(exitcode.ErrDriverNotFound, "locating browser", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = capture.Run(ctx, capture.Options{
		Mode:        mode,
		TargetIndex: index,
		Store:       credstore.New(cfg.Store.Dir),
		Browser:     &capture.RodBrowser{Bin: bin, Headless: cfg.Capture.Headless},
		TargetURL:   cfg.Capture.TargetURL,
		Lang:        cfg.Capture.Lang,
		In:          cmd.InOrStdin(),
		Out:         cmd.OutOrStdout(),
	})
	if err != nil {
		return captureFailed(cmd, err)
	}
	return nil
}

// captureFailed prints err in the capture process error format and exits
// with its code.
func captureFailed(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "ERROR: %v\n", err)
	return NewSilentExit(exitcode.Code(err))
}
