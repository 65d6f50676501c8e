package cli

import (
	"encoding/json"
	"fmt"

	"github.com/grovetools/repostore/version"
	"github.com/spf13/cobra"
)

// SetVersion sets cmd.Version and a --version template from the build info.
func SetVersion(cmd *cobra.Command) {
	info := version.GetInfo()
	cmd.Version = info.Short()
	cmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")
}

// NewVersionCommand creates a standard version command
func NewVersionCommand(componentName string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: fmt.Sprintf("Print the version of %s", componentName),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.GetInfo()
			if GetOptions(cmd).JSONOutput {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", componentName, info)
			return nil
		},
	}
}
