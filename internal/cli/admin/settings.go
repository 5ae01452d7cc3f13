package admin

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/repository"
	"github.com/spf13/cobra"
)

func SettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage retrieval settings stored in the database",
		Long: `List, set and unset the rag_settings overrides. Overrides apply on top of the
GROUNDWORK_* environment defaults and are read on every indexing run and question.

Keys: ` + strings.Join(repository.SettingKeys, ", "),
	}

	cmd.AddCommand(settingsListCmd())
	cmd.AddCommand(settingsSetCmd())
	cmd.AddCommand(settingsUnsetCmd())

	return cmd
}

type settingView struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	Overridden bool   `json:"overridden"`
}

func settingViews(effective domain.RAGSettings, stored map[string]string) []settingView {
	views := make([]settingView, 0, len(repository.SettingKeys))
	for _, key := range repository.SettingKeys {
		value, _ := repository.SettingValue(effective, key)
		_, overridden := stored[key]
		views = append(views, settingView{Key: key, Value: value, Overridden: overridden})
	}
	return views
}

func writeSettingsTable(w io.Writer, views []settingView) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tVALUE\tSOURCE")
	for _, v := range views {
		source := "default"
		if v.Overridden {
			source = "override"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Key, preview(v.Value, 60), source)
	}
	return tw.Flush()
}

func settingsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the effective settings and which ones are overridden",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := openRuntime(ctx, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			stored, err := rt.settings.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list settings: %w", err)
			}
			effective, err := rt.settings.Load(ctx)
			if err != nil {
				return fmt.Errorf("stored settings are invalid: %w", err)
			}

			views := settingViews(effective, stored)
			if wantsJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), views)
			}
			return writeSettingsTable(cmd.OutOrStdout(), views)
		},
	}
	addOutputFlag(cmd)
	return cmd
}

func settingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store an override",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := openRuntime(ctx, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.settings.Set(ctx, args[0], args[1]); err != nil {
				return fmt.Errorf("failed to set %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s set\n", args[0])
			return nil
		},
	}
}

func settingsUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove an override so the default applies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := openRuntime(ctx, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.settings.Unset(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to unset %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s reset to default\n", args[0])
			return nil
		},
	}
}
