package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/piwi3910/CrateFit/internal/logging"
	"github.com/piwi3910/CrateFit/internal/persist"
)

func newTasksCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Back up and restore the finished-task archive",
	}
	cmd.AddCommand(newTasksExportCmd(flags), newTasksImportCmd(flags))
	return cmd
}

func newTasksExportCmd(flags *globalFlags) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the config and every archived task to a JSON backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			archive, err := persist.OpenArchive(filepath.Join(cfg.DataDir, "archive"), logging.Discard())
			if err != nil {
				return err
			}
			defer archive.Close()

			if err := persist.ExportArchive(cmd.Context(), out, cfg, archive); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "cratefit-backup.json", "backup file to write")
	return cmd
}

func newTasksImportCmd(flags *globalFlags) *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Restore archived tasks from a JSON backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			backup, err := persist.ImportBackup(in)
			if err != nil {
				return err
			}
			archive, err := persist.OpenArchive(filepath.Join(cfg.DataDir, "archive"), logging.Discard())
			if err != nil {
				return err
			}
			defer archive.Close()

			n, err := persist.RestoreBackup(cmd.Context(), archive, backup)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d tasks from %s\n", n, in)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "backup file to read")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
