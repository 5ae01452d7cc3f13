package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ConfigCmd creates the config command.
func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the client configuration",
		Long:  "Shows or stores the API URL used when neither --api-url nor " + envAPIURL + " is set.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the API URL in effect and where it comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flagURL, _ := cmd.Flags().GetString("api-url")
			source, apiURL, err := ResolveAPIURL(flagURL)
			if err != nil {
				return err
			}
			if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"api_url": apiURL, "source": string(source)})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API URL: %s (from %s)\n", apiURL, source)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-url <url>",
		Short: "Store the API URL in the user config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ValidateAPIURL(args[0]); err != nil {
				return err
			}
			if err := SaveGlobalConfig(&GlobalConfig{APIURL: normalizeURL(args[0])}); err != nil {
				return err
			}
			path, _ := GetConfigPath()
			fmt.Fprintf(cmd.OutOrStdout(), "API URL saved to %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Remove the user config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Client configuration removed.")
			return nil
		},
	})

	return cmd
}
