package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/steveyegge/authcap/internal/capture"
	"github.com/steveyegge/authcap/internal/client"
	"github.com/steveyegge/authcap/internal/credstore"
	"github.com/steveyegge/authcap/internal/exitcode"
	"github.com/steveyegge/authcap/internal/ui"
)

var (
	authDir    string
	authJSON   bool
	authServer string
)

var authCmd = &cobra.Command{
	Use:     "auth",
	GroupID: GroupStore,
	Short:   "Inspect the credential store",
	RunE:    requireSubcommand,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List credential files by index",
	Args:  cobra.NoArgs,
	RunE:  runAuthList,
}

var authLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the most recent credential file",
	Long: `Print the path of the highest-indexed credential file.
Exits with code 13 when the store holds none.`,
	Args: cobra.NoArgs,
	RunE: runAuthLatest,
}

var authSourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Show the credentials loaded by a running server",
	Args:  cobra.NoArgs,
	RunE:  runAuthSources,
}

var authSwitchCmd = &cobra.Command{
	Use:   "switch [index]",
	Short: "Select the credential a running server routes with",
	Long: `Select a loaded credential on a running server. Without an index the
server advances to the next loaded credential, wrapping around.
Exits with code 13 when the index is not loaded.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthSwitch,
}

func init() {
	authCmd.PersistentFlags().StringVar(&authDir, "dir", "", "Credential directory (default from config)")
	authCmd.PersistentFlags().BoolVar(&authJSON, "json", false, "Output as JSON")
	authCmd.PersistentFlags().StringVar(&authServer, "server", "", "Server URL for sources and switch (default from config)")

	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(authLatestCmd)
	authCmd.AddCommand(authSourcesCmd)
	authCmd.AddCommand(authSwitchCmd)
	rootCmd.AddCommand(authCmd)
}

func authStore() (*credstore.Store, error) {
	if authDir != "" {
		return credstore.New(authDir), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return credstore.New(cfg.Store.Dir), nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	store, err := authStore()
	if err != nil {
		return err
	}
	entries, err := store.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if authJSON {
		if entries == nil {
			entries = []credstore.Entry{}
		}
		return json.NewEncoder(out).Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintf(out, "No credential files in %s\n", store.Dir())
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%4d  %s\n", e.Index, e.File)
	}
	return nil
}

func runAuthLatest(cmd *cobra.Command, args []string) error {
	store, err := authStore()
	if err != nil {
		return err
	}
	latest, ok := store.Latest()
	if !ok {
		return exitcode.Newf(exitcode.ErrCredentialNotFound, "no credential files in %s", store.Dir())
	}

	out := cmd.OutOrStdout()
	if authJSON {
		return json.NewEncoder(out).Encode(latest)
	}
	fmt.Fprintln(out, store.Path(latest.Index))
	return nil
}

func authClient() (*client.Client, error) {
	if authServer != "" {
		return client.New(authServer), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return client.New("http://" + cfg.Addr()), nil
}

func runAuthSources(cmd *cobra.Command, args []string) error {
	c, err := authClient()
	if err != nil {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()
	indices, current, err := c.Sources(ctx)
	if err != nil {
		return err
	}
	return printSources(cmd, indices, current)
}

func runAuthSwitch(cmd *cobra.Command, args []string) error {
	var index *int
	if len(args) == 1 {
		n, err := capture.ParseIndex(args[0])
		if err != nil {
			return exitcode.Wrap(exitcode.ErrUsage, "switch", err)
		}
		index = &n
	}
	c, err := authClient()
	if err != nil {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()
	indices, current, err := c.SwitchSource(ctx, index)
	if err != nil {
		return err
	}
	return printSources(cmd, indices, current)
}

func printSources(cmd *cobra.Command, indices []int, current *int) error {
	out := cmd.OutOrStdout()
	if authJSON {
		return json.NewEncoder(out).Encode(map[string]interface{}{"indices": indices, "current": current})
	}
	if len(indices) == 0 {
		fmt.Fprintln(out, ui.DimStyle.Render("No credentials loaded."))
		return nil
	}
	for _, idx := range indices {
		marker := " "
		if current != nil && *current == idx {
			marker = ui.SuccessStyle.Render("*")
		}
		fmt.Fprintf(out, "%s %s\n", marker, credstore.Filename(idx))
	}
	return nil
}
