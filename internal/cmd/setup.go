package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/steveyegge/authcap/internal/capture"
	"github.com/steveyegge/authcap/internal/client"
	"github.com/steveyegge/authcap/internal/exitcode"
	"github.com/steveyegge/authcap/internal/supervisor"
	setuptui "github.com/steveyegge/authcap/internal/tui/setup"
	"github.com/steveyegge/authcap/internal/ui"
)

var (
	setupServer  string
	setupRelogin int
	setupWatch   bool
	setupJSON    bool
)

var setupCmd = &cobra.Command{
	Use:     "setup",
	GroupID: GroupSetup,
	Short:   "Drive credential capture on a running server",
	RunE:    requireSubcommand,
	Long: `Drive the capture supervisor of a running 'authcap serve'.

A capture opens a browser window. Log in there, then run
'authcap setup continue' (or press enter in 'authcap setup watch') to save
the session.`,
}

var setupStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a capture",
	Long: `Start a capture. Without flags a new credential is created under the next
free index; --relogin refreshes an existing one in place.

Examples:
  authcap setup start                 # Capture a new account
  authcap setup start --relogin 3     # Refresh auth-3.json
  authcap setup start --watch         # Start and open the live view`,
	Args: cobra.NoArgs,
	RunE: runSetupStart,
}

var setupContinueCmd = &cobra.Command{
	Use:   "continue",
	Short: "Signal the capture that login is complete",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetupAction(cmd, (*client.Client).Continue)
	},
}

var setupCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Terminate the running capture",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetupAction(cmd, (*client.Client).Cancel)
	},
}

var setupStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show capture status",
	Args:  cobra.NoArgs,
	RunE:  runSetupStatus,
}

var setupWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of the capture with continue and cancel keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setupClient()
		if err != nil {
			return err
		}
		return runSetupWatch(c)
	},
}

func init() {
	setupCmd.PersistentFlags().StringVar(&setupServer, "server", "", "Server URL (default from config)")

	setupStartCmd.Flags().IntVar(&setupRelogin, "relogin", -1, "Refresh the credential with this index")
	setupStartCmd.Flags().BoolVar(&setupWatch, "watch", false, "Open the live view after starting")
	setupStatusCmd.Flags().BoolVar(&setupJSON, "json", false, "Output as JSON")

	setupCmd.AddCommand(setupStartCmd)
	setupCmd.AddCommand(setupContinueCmd)
	setupCmd.AddCommand(setupCancelCmd)
	setupCmd.AddCommand(setupStatusCmd)
	setupCmd.AddCommand(setupWatchCmd)
	rootCmd.AddCommand(setupCmd)
}

func setupClient() (*client.Client, error) {
	if setupServer != "" {
		return client.New(setupServer), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return client.New("http://" + cfg.Addr()), nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func runSetupStart(cmd *cobra.Command, args []string) error {
	c, err := setupClient()
	if err != nil {
		return err
	}

	mode := capture.ModeCreate
	var target *int
	if cmd.Flags().Changed("relogin") {
		mode = capture.ModeRelogin
		target = &setupRelogin
	}

	ctx, cancel := requestContext()
	defer cancel()
	res, err := c.Start(ctx, mode, target)
	if err != nil {
		return err
	}
	if err := reportResult(cmd, res); err != nil {
		return err
	}
	if setupWatch {
		return runSetupWatch(c)
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.DimStyle.Render("Log in in the browser window, then run: authcap setup continue"))
	return nil
}

func runSetupAction(cmd *cobra.Command, action func(*client.Client, context.Context) (supervisor.Result, error)) error {
	c, err := setupClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	res, err := action(c, ctx)
	if err != nil {
		return err
	}
	return reportResult(cmd, res)
}

// reportResult prints a control result and converts a refusal to its exit code.
func reportResult(cmd *cobra.Command, res supervisor.Result) error {
	fmt.Fprintln(cmd.OutOrStdout(), ui.ResultLine(res))
	if err := res.Err(); err != nil {
		return NewSilentExit(exitcode.Code(err))
	}
	return nil
}

func runSetupStatus(cmd *cobra.Command, args []string) error {
	c, err := setupClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if setupJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Fprintf(out, "%s %s\n", ui.BoldStyle.Render("Phase:"), ui.PhaseStyle(st.Phase).Render(string(st.Phase)))
	if st.RunID == "" {
		fmt.Fprintln(out, ui.DimStyle.Render("No capture has run yet."))
		return nil
	}
	fmt.Fprintf(out, "%s %s\n", ui.BoldStyle.Render("Run:"), st.RunID)
	fmt.Fprintf(out, "%s %s\n", ui.BoldStyle.Render("Mode:"), st.Mode)
	if st.TargetIndex != nil {
		fmt.Fprintf(out, "%s auth-%d\n", ui.BoldStyle.Render("Target:"), *st.TargetIndex)
	}
	if st.PID != nil && st.Running {
		fmt.Fprintf(out, "%s %d\n", ui.BoldStyle.Render("PID:"), *st.PID)
	}
	fmt.Fprintf(out, "%s %t\n", ui.BoldStyle.Render("Continue sent:"), st.ContinueSent)
	if st.ExitCode != nil {
		fmt.Fprintf(out, "%s %d\n", ui.BoldStyle.Render("Exit code:"), *st.ExitCode)
	}
	if st.LastAuthFile != nil {
		fmt.Fprintf(out, "%s %s\n", ui.BoldStyle.Render("Credential:"), *st.LastAuthFile)
	}
	if st.Error != nil {
		fmt.Fprintf(out, "%s %s\n", ui.BoldStyle.Render("Error:"), ui.ErrorStyle.Render(*st.Error))
	}
	return nil
}

func runSetupWatch(c *client.Client) error {
	w, err := c.Watch(client.WatchConfig{})
	if err != nil {
		return err
	}
	defer w.Close()

	p := tea.NewProgram(setuptui.New(c, w.Events()), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}
