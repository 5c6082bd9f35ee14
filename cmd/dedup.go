package cmd

import (
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDedupCmd(a *app) *cobra.Command {
	dedupCmd := &cobra.Command{
		Use:   "dedup",
		Short: "Inspect or load the record of messaged applicants",
	}
	dedupCmd.AddCommand(newDedupImportCmd(a), newDedupExportCmd(a))
	return dedupCmd
}

func newDedupImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Merge a {key: sentAtMillis} map into the record; existing keys keep their timestamp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path, err := homedir.Expand(args[0])
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			var entries map[string]int64
			if err := json.Unmarshal(raw, &entries); err != nil {
				return fmt.Errorf("failed to parse %s: want a JSON object of key to unix millis: %w", path, err)
			}
			for k := range entries {
				if k == "" {
					return fmt.Errorf("failed to parse %s: empty key", path)
				}
			}

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Import(ctx, entries); err != nil {
				return err
			}
			a.logger.Info("Dedup record imported.", zap.String("file", path), zap.Int("entries", len(entries)))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries\n", len(entries))
			return nil
		},
	}
}

func newDedupExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the record of messaged applicants as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			m, err := st.SentMap(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		},
	}
}
