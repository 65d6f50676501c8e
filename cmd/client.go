package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/grovetools/repostore/cli"
	"github.com/grovetools/repostore/config"
	"github.com/grovetools/repostore/errors"
	"github.com/grovetools/repostore/internal/daemon/collector"
	"github.com/grovetools/repostore/internal/daemon/store"
	"github.com/grovetools/repostore/logging"
	"github.com/grovetools/repostore/pkg/actions"
	"github.com/grovetools/repostore/pkg/daemon"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// endpointFor returns --endpoint, else the configured socket, else the default.
func endpointFor(cmd *cobra.Command) (string, error) {
	if endpoint, _ := cmd.Flags().GetString("endpoint"); endpoint != "" {
		return endpoint, nil
	}
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return socketPath(cfg), nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	return config.LoadOrDefault(cli.GetOptions(cmd).ConfigFile, cli.GetLogger(cmd, "repostored"))
}

// printJSON writes v indented on a terminal and compact otherwise.
func printJSON(cmd *cobra.Command, v interface{}) error {
	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func connect(cmd *cobra.Command) (*daemon.RemoteClient, error) {
	endpoint, err := endpointFor(cmd)
	if err != nil {
		return nil, err
	}
	return daemon.Connect(endpoint)
}

func newStateCmd() *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the repository state",
		Long: `Print the repository state held by the daemon.

When the daemon is not running, or --local is given, the configured
collector roots are scanned in-process instead.`,
		Example: `# Summary of the running daemon's store
repostored state

# Full state document, scanned locally
repostored state --local --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			lc, err := localClient(cfg)
			if err != nil {
				return err
			}

			var client daemon.Client = lc
			if !local {
				endpoint, err := endpointFor(cmd)
				if err != nil {
					return err
				}
				if client, err = daemon.New(endpoint, lc); err != nil {
					return err
				}
			}
			defer client.Close()

			state, err := client.State(cmd.Context())
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, state)
			}
			printSummary(cmd.OutOrStdout(), state, client.IsRunning())
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Scan in-process even if the daemon is running")
	return cmd
}

// localClient builds the in-process fallback, scanning the configured roots
// when the collector is enabled.
func localClient(cfg *config.Config) (*daemon.LocalClient, error) {
	if !cfg.Collector.IsEnabled() {
		return daemon.NewLocalClient(store.New(), nil), nil
	}
	gc, err := collector.NewGitCollector(collector.GitOptions{
		Roots:   cfg.Collector.Roots,
		Exclude: cfg.Collector.Exclude,
		Revs:    cfg.Collector.Revs,
	}, logging.NewLogger("collector"))
	if err != nil {
		return nil, err
	}
	return daemon.NewLocalClient(store.New(), gc), nil
}

func printSummary(w io.Writer, state *daemon.State, remote bool) {
	source := "local scan"
	if remote {
		source = "daemon"
	}
	fmt.Fprintf(w, "Source:             %s\n", source)
	fmt.Fprintf(w, "Repositories:       %d\n", len(state.Repos.Content))
	fmt.Fprintf(w, "Resolved revisions: %d\n", len(state.ResolvedRevs.Content))
	fmt.Fprintf(w, "Resolutions:        %d\n", len(state.Resolutions.Content))
	fmt.Fprintf(w, "Branch lists:       %d\n", len(state.Branches.Content))
	fmt.Fprintf(w, "Tag lists:          %d\n", len(state.Tags.Content))
	fmt.Fprintf(w, "Inventories:        %d\n", len(state.Inventory.Content))

	cloning := 0
	for _, c := range state.Repos.Cloning {
		if c {
			cloning++
		}
	}
	if cloning > 0 {
		fmt.Fprintf(w, "Cloning:            %d\n", cloning)
	}
}

func newDispatchCmd() *cobra.Command {
	var kinds []string
	for _, k := range actions.Kinds() {
		kinds = append(kinds, string(k))
	}

	return &cobra.Command{
		Use:   "dispatch <type> [payload]",
		Short: "Send an action to the daemon",
		Long: fmt.Sprintf(`Send an action to the running daemon.

The payload is a JSON object; "-" reads it from stdin. Repository action
types: %s. Other types are accepted and ignored by the store.`, strings.Join(kinds, ", ")),
		Example: `repostored dispatch RepoCloning '{"repo":"github.com/a/b","isCloning":true}'
echo '{"repo":"github.com/a/b","rev":"main","commitID":"abc"}' | repostored dispatch ResolvedRev -`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := actions.Envelope{Type: actions.Kind(args[0])}
			if len(args) == 2 {
				payload, err := readPayload(cmd.InOrStdin(), args[1])
				if err != nil {
					return err
				}
				env.Payload = payload
			}

			a, err := actions.DecodeEnvelope(env)
			if err != nil {
				return err
			}

			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Dispatch(cmd.Context(), a); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Dispatched %s\n", a.Kind())
			if !actions.IsRepoKind(a.Kind()) {
				fmt.Fprintln(out, "Note: not a repository action type; the store will ignore it")
			}
			return nil
		},
	}
}

func readPayload(stdin io.Reader, arg string) (json.RawMessage, error) {
	data := []byte(arg)
	if arg == "-" {
		var err error
		if data, err = io.ReadAll(stdin); err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
	}
	if !json.Valid(data) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Empty the daemon's store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Store reset queued")
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	var useWebSocket bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print store changes as they happen",
		Long:  "Print one line per store change until interrupted. Notifications carry the sequence number and action type only; fetch the state to see the new values.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var changes <-chan daemon.Change
			if useWebSocket {
				changes, err = client.Watch(ctx)
			} else {
				changes, err = client.Stream(ctx)
			}
			if err != nil {
				return err
			}

			asJSON := cli.GetOptions(cmd).JSONOutput
			out := cmd.OutOrStdout()
			for change := range changes {
				if asJSON {
					if err := json.NewEncoder(out).Encode(change); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintf(out, "%d\t%s\n", change.Seq, change.Kind)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&useWebSocket, "ws", false, "Use the WebSocket endpoint instead of Server-Sent Events")
	return cmd
}

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the repository action types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, actions.Kinds())
			}
			for _, k := range actions.Kinds() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}
