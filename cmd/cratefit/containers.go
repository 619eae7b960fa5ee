package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/piwi3910/CrateFit/internal/persist"
)

func newContainersCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "containers",
		Short: "List or import container presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			inv, err := persist.LoadInventory(filepath.Join(cfg.DataDir, inventoryFile))
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSIZE\tDESCRIPTION")
			for _, c := range inv.Containers {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Size, c.Description)
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(newContainersImportCmd(flags))
	return cmd
}

func newContainersImportCmd(flags *globalFlags) *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Merge container presets from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.DataDir, inventoryFile)
			inv, err := persist.LoadInventory(path)
			if err != nil {
				return err
			}
			merged, added, err := persist.ImportInventory(in, inv)
			if err != nil {
				return err
			}
			if err := persist.SaveInventory(path, merged); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d container presets\n", added)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "presets file to merge")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
