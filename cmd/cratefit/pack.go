package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/piwi3910/CrateFit/internal/engine"
	"github.com/piwi3910/CrateFit/internal/export"
	"github.com/piwi3910/CrateFit/internal/importer"
	"github.com/piwi3910/CrateFit/internal/model"
	"github.com/piwi3910/CrateFit/internal/persist"
)

type packOptions struct {
	width, height, depth int
	container            string
	itemsPath            string

	algorithm   string
	population  int
	generations int
	seed        int64
	compare     bool
	verbose     bool

	pdfPath    string
	labelsPath string
	dxfPath    string
	xlsxPath   string
}

func newPackCmd(flags *globalFlags) *cobra.Command {
	opts := &packOptions{}

	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Pack an item list into a container and print the result",
		Example: `  cratefit pack --width 100 --height 80 --depth 60 --items boxes.csv --pdf plan.pdf
  cratefit pack --width 100 --height 80 --depth 60 --items boxes.xlsx --compare
  cratefit pack --container "Euro pallet" --items boxes.csv --dxf pallet.dxf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			settings := model.DefaultSettings()
			cfg.ApplyToSettings(&settings)
			if opts.algorithm != "" {
				settings.Algorithm = model.Algorithm(opts.algorithm)
			}
			if opts.population > 0 {
				settings.PopulationSize = opts.population
			}
			if opts.generations > 0 {
				settings.Generations = opts.generations
			}
			settings.Seed = opts.seed
			if opts.container != "" {
				if err := opts.applyPreset(filepath.Join(cfg.DataDir, inventoryFile)); err != nil {
					return err
				}
			}
			return runPack(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, settings)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.width, "width", 0, "container width")
	f.IntVar(&opts.height, "height", 0, "container height")
	f.IntVar(&opts.depth, "depth", 0, "container depth")
	f.StringVar(&opts.container, "container", "", "container preset name or id, instead of --width/--height/--depth")
	f.StringVar(&opts.itemsPath, "items", "", "item list (.csv, .tsv, .xlsx)")
	f.StringVar(&opts.algorithm, "algorithm", "", "genetic or greedy")
	f.IntVar(&opts.population, "population", 0, "genetic population size")
	f.IntVar(&opts.generations, "generations", 0, "genetic generation count")
	f.Int64Var(&opts.seed, "seed", 0, "random seed, 0 picks one from the clock")
	f.BoolVar(&opts.compare, "compare", false, "run what-if scenarios and print a comparison table")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "print per-generation progress")
	f.StringVar(&opts.pdfPath, "pdf", "", "write a PDF packing plan")
	f.StringVar(&opts.labelsPath, "labels", "", "write a PDF sheet of QR item labels")
	f.StringVar(&opts.dxfPath, "dxf", "", "write a DXF wireframe")
	f.StringVar(&opts.xlsxPath, "xlsx", "", "write an Excel workbook")
	cmd.MarkFlagsRequiredTogether("width", "height", "depth")
	cmd.MarkFlagsMutuallyExclusive("container", "width")
	cmd.MarkFlagsOneRequired("container", "width")
	_ = cmd.MarkFlagRequired("items")
	return cmd
}

// applyPreset sets the container size from the named preset.
func (o *packOptions) applyPreset(inventoryPath string) error {
	inv, err := persist.LoadInventory(inventoryPath)
	if err != nil {
		return err
	}
	preset := inv.Lookup(o.container)
	if preset == nil {
		return fmt.Errorf("unknown container preset %q (see 'cratefit containers')", o.container)
	}
	o.width, o.height, o.depth = preset.Size.Width, preset.Size.Height, preset.Size.Depth
	return nil
}

func runPack(ctx context.Context, out, errOut io.Writer, opts *packOptions, settings model.PackSettings) error {
	size := model.Dimensions{Width: opts.width, Height: opts.height, Depth: opts.depth}
	if err := size.ValidateGrid(); err != nil {
		return fmt.Errorf("container: %w", err)
	}

	imported := importer.ImportFile(opts.itemsPath)
	for _, w := range imported.Warnings {
		fmt.Fprintln(errOut, "warning:", w)
	}
	if !imported.OK() {
		for _, e := range imported.Errors {
			fmt.Fprintln(errOut, "error:", e)
		}
		return fmt.Errorf("import %s: %d errors", opts.itemsPath, len(imported.Errors))
	}
	items, err := model.ExpandItems(imported.Items)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return errors.New("no items to pack")
	}

	if opts.compare {
		return printComparison(ctx, out, settings, size, items)
	}

	var onProgress engine.ProgressFunc
	if opts.verbose {
		onProgress = func(p engine.Progress) {
			fmt.Fprintf(errOut, "generation %d/%d best %.2f%% mean %.2f%% sd %.2f\n",
				p.Generation, p.Generations, p.Best, p.Mean, p.StdDev)
		}
	}

	result, err := engine.New(settings).Optimize(ctx, size, items, onProgress)
	if err != nil {
		return err
	}
	printResult(out, result, len(items))

	if !result.Succeeded() {
		return errors.New(result.Message)
	}
	return writeExports(out, opts, result)
}

func printResult(out io.Writer, result model.PackResult, itemCount int) {
	fmt.Fprintf(out, "Container %s: %d of %d items placed, %.2f%% utilization in %.2fs\n",
		result.Container, len(result.Placements), itemCount, result.Utilization, result.ExecutionTime)
	if len(result.Placements) == 0 {
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tX\tY\tZ\tSIZE")
	for _, p := range result.Placements {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			p.ItemID, p.ItemName, p.Position.X, p.Position.Y, p.Position.Z, p.Size)
	}
	tw.Flush()
}

func printComparison(ctx context.Context, out io.Writer, base model.PackSettings, size model.Dimensions, items []model.Item) error {
	results, err := engine.CompareScenarios(ctx, engine.BuildDefaultScenarios(base), size, items)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tSTATUS\tPLACED\tUTILIZATION\tWASTE\tTIME")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%.2f%%\t%.2f%%\t%.2fs\n",
			r.Scenario.Name, r.Result.Status, r.PlacedCount, len(items),
			r.Result.Utilization, r.WastePercent, r.ExecutionTime)
	}
	return tw.Flush()
}

func writeExports(out io.Writer, opts *packOptions, result model.PackResult) error {
	outputs := []struct {
		path  string
		write func(string, model.PackResult) error
	}{
		{opts.pdfPath, export.ExportPDF},
		{opts.labelsPath, export.ExportLabels},
		{opts.dxfPath, export.ExportDXF},
		{opts.xlsxPath, export.ExportXLSX},
	}
	for _, o := range outputs {
		if o.path == "" {
			continue
		}
		if err := o.write(o.path, result); err != nil {
			return fmt.Errorf("write %s: %w", o.path, err)
		}
		fmt.Fprintln(out, "wrote", o.path)
	}
	return nil
}
