package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"flowval/adapters/excel"
	"flowval/app"
	"flowval/domain/flow"
	"flowval/domain/report"
	"flowval/domain/run"
	"flowval/internal/config"
	"flowval/internal/errors"
	"flowval/internal/moments"
)

func newAssembleCmd(g *globals) *cobra.Command {
	var discover bool

	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Assemble per-site files into the historical and synthetic Qdaily matrices",
		Long: `Read every site's historical record and one-year synthetic file and write
Qdaily-hist.csv and Qdaily-syn-<tag>.csv, one column per site in catalog order.

Example: flowval assemble --tag stat --discover`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cmd, g, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.assembly().Run(cmd.Context(), app.AssemblyRequest{Discover: discover})
			if err != nil {
				return err
			}
			fmt.Printf("Historical: %s (%s x %d)\n", res.HistoricalPath, humanize.Comma(int64(res.Historical.Rows())), res.Historical.Cols())
			fmt.Printf("Synthetic:  %s (%s x %d)\n", res.SyntheticPath, humanize.Comma(int64(res.Synthetic.Rows())), res.Synthetic.Cols())
			printManifest(res.ManifestPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&discover, "discover", false, "Discover sites from file names instead of the configured catalog")
	return cmd
}

// analysisFlags are the overrides shared by variability and moments
type analysisFlags struct {
	site     string
	quantile float64
	tail     string
	space    string
	window   string
	seed     int64
	center   string
}

func (f *analysisFlags) apply(cmd *cobra.Command) func(*config.Config) error {
	return func(cfg *config.Config) error {
		flags := cmd.Flags()
		if flags.Changed("site") {
			cfg.Analysis.Site = f.site
		}
		if flags.Changed("quantile") {
			cfg.Analysis.Quantile = f.quantile
		}
		if flags.Changed("tail") {
			cfg.Analysis.Tail = f.tail
		}
		if flags.Changed("space") && f.space != "" {
			cfg.Analysis.Space = f.space
		}
		if flags.Changed("window") {
			cfg.Analysis.Window = f.window
		}
		if flags.Changed("seed") {
			cfg.Analysis.Seed = f.seed
		}
		if flags.Changed("levene-center") {
			cfg.Analysis.LeveneCenter = f.center
		}
		return nil
	}
}

func newVariabilityCmd(g *globals) *cobra.Command {
	f := &analysisFlags{}

	cmd := &cobra.Command{
		Use:   "variability",
		Short: "Check convergence of tail statistics as realizations are added",
		Long: `Sort each synthetic year, keep the requested tail and follow the mean and
spread of the kept flows through 50, 100, ... realizations.

Example: flowval variability --site "Jordan Lake" --space log --tail flood --quantile 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cmd, g, f.apply(cmd))
			if err != nil {
				return err
			}
			defer e.Close()

			space, err := flow.ParseSpace(e.cfg.Analysis.Space)
			if err != nil {
				return errors.InvalidInput(err.Error())
			}
			res, err := e.variability().Run(cmd.Context(), app.VariabilityRequest{Space: space})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "%s, %s space, %s tail (%d weeks/year)\n", res.Result.Site, res.Result.Space, res.Result.Tail, res.Result.Kept)
			fmt.Fprintln(w, "checkpoint\tused\tmean\tstd")
			for _, p := range res.Result.Curve.Points {
				fmt.Fprintf(w, "%d\t%d\t%.4g\t%.4g\n", p.Checkpoint, p.Used, p.Mean, p.Std)
			}
			w.Flush()
			fmt.Printf("Figure: %s\n", res.FigurePath)
			printManifest(res.ManifestPath)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.site, "site", "", "Site key, name or column index")
	flags.Float64Var(&f.quantile, "quantile", 1.0, "Share of each year's weeks to keep, in (0, 1]")
	flags.StringVar(&f.tail, "tail", "flood", "Tail to keep: drought (lowest) or flood (highest)")
	flags.StringVar(&f.space, "space", "log", "Value space: real or log")
	flags.StringVar(&f.window, "window", "exclusive", "Realizations per checkpoint c: exclusive (c-1) or inclusive (c)")
	return cmd
}

func newFDCCmd(g *globals) *cobra.Command {
	var reassemble bool
	var title string

	cmd := &cobra.Command{
		Use:   "fdc",
		Short: "Plot historical and synthetic flow duration curve ranges for every site",
		Long: `Build the annual flow duration curves of every site from the Qdaily
matrices and shade the range across years, historical against synthetic.
Missing matrices are assembled first.

Example: flowval fdc --tag stat`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cmd, g, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.fdc().Run(cmd.Context(), app.FDCRequest{Reassemble: reassemble, Title: title})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "site\thist years\tsyn years\tcoverage")
			for _, r := range res.Ranges {
				fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\n", r.Site, r.Historical.Years, r.Synthetic.Years, r.Coverage())
			}
			w.Flush()
			fmt.Printf("Figure: %s\n", res.FigurePath)
			printManifest(res.ManifestPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reassemble, "reassemble", false, "Rebuild the Qdaily matrices even if they exist")
	cmd.Flags().StringVar(&title, "title", app.FDCTitle, "Figure title")
	return cmd
}

func newMomentsCmd(g *globals) *cobra.Command {
	f := &analysisFlags{}

	cmd := &cobra.Command{
		Use:   "moments",
		Short: "Compare weekly flow distributions with rank-sum and Levene tests",
		Long: `Compare each week's historical flows with the pooled synthetic flows of that
week, and bootstrap historical weekly means and standard deviations to set
against the per-realization synthetic ones. Runs in real and log space
unless --space is given.

Example: flowval moments --site trainingJordanLakeInflow --seed 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cmd, g, f.apply(cmd))
			if err != nil {
				return err
			}
			defer e.Close()

			req := app.MomentsRequest{}
			if f.space != "" {
				space, err := flow.ParseSpace(f.space)
				if err != nil {
					return errors.InvalidInput(err.Error())
				}
				req.Spaces = []flow.Space{space}
			}
			svc, err := e.moments()
			if err != nil {
				return err
			}
			res, err := svc.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			for i, wm := range res.Moments {
				differ := 0
				for _, t := range wm.Tests {
					if t.Significant(moments.Alpha) {
						differ++
					}
				}
				fmt.Printf("%s, %s space: %d of %d weeks differ at p < %.2f", wm.Site, wm.Space, differ, wm.Weeks(), moments.Alpha)
				if d := wm.DegenerateWeeks(); len(d) > 0 {
					fmt.Printf(" (NaN in weeks %v)", d)
				}
				fmt.Printf("\nFigure: %s\n", res.FigurePaths[i])
			}
			printManifest(res.ManifestPath)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.site, "site", "", "Site key, name or column index")
	flags.StringVar(&f.space, "space", "", "Only this space (real or log); default both")
	flags.Int64Var(&f.seed, "seed", 42, "Seed of the historical bootstrap")
	flags.StringVar(&f.center, "levene-center", "median", "Levene centering: median or mean")
	return cmd
}

func newAllCmd(g *globals) *cobra.Command {
	f := &analysisFlags{}

	cmd := &cobra.Command{
		Use:   "all",
		Short: "Assemble, then run the fdc, variability and moments analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cmd, g, f.apply(cmd))
			if err != nil {
				return err
			}
			defer e.Close()

			assembly := e.assembly()
			momentsSvc, err := e.moments()
			if err != nil {
				return err
			}
			p := &app.Pipeline{
				Assembly:    assembly,
				FDC:         app.NewFDCService(e.cfg, assembly, e.matrices, e.figures, e.recorder, e.logger),
				Variability: e.variability(),
				Moments:     momentsSvc,
				Logger:      e.logger,
			}
			res, err := p.Run(cmd.Context(), "")
			if err != nil {
				return err
			}

			fmt.Printf("Figures:\n  %s\n", res.FDC.FigurePath)
			for _, v := range res.Variability {
				fmt.Printf("  %s\n", v.FigurePath)
			}
			for _, path := range res.Moments.FigurePaths {
				fmt.Printf("  %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&f.site, "site", "", "Site for variability and moments")
	cmd.Flags().Int64Var(&f.seed, "seed", 42, "Seed of the historical bootstrap")
	return cmd
}

func newSitesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List catalog sites and which input files exist for each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cmd, g, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			files, err := app.Inventory(e.cfg, e.locator)
			if err != nil {
				return err
			}
			mark := func(path string) string {
				if path == "" {
					return "-"
				}
				return "ok"
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "#\tkey\tname\t%s\t%s\t%s\n", e.cfg.Data.HistoricalSuffix, e.cfg.Data.SyntheticSuffix, e.cfg.Data.EnsembleSuffix)
			for i, f := range files {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", i, f.Site.Key, f.Site.Name, mark(f.Historical), mark(f.Synthetic), mark(f.Ensemble))
			}
			return w.Flush()
		},
	}
}

func newRunsCmd(g *globals) *cobra.Command {
	var analysis string
	var limit int
	var tables bool

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List archived runs, or show one run's manifest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cmd, g, nil)
			if err != nil {
				return err
			}
			defer e.Close()
			if e.archive == nil {
				return errors.ConfigInvalid("no run archive: set DATABASE_URL or database.url")
			}

			if len(args) == 1 {
				m, err := e.archive.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printRun(m)
				for _, in := range m.Inputs {
					fmt.Printf("  in  %s (%s, %s)\n", in.Path, in.Fingerprint, humanize.Bytes(uint64(in.Bytes)))
				}
				for _, out := range m.Outputs {
					fmt.Printf("  out %s\n", out)
				}
				if tables {
					rep, err := app.ReadRunReport(cmd.Context(), m, excel.NewReader(e.logger))
					if err != nil {
						return err
					}
					printReport(rep)
				}
				return nil
			}

			runs, err := e.archive.ListRuns(cmd.Context(), run.Analysis(analysis), limit)
			if err != nil {
				return err
			}
			for _, m := range runs {
				printRun(m)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&analysis, "analysis", "", "Only runs of this analysis (assemble, variability, fdc, moments)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	cmd.Flags().BoolVar(&tables, "tables", false, "With a run id, also print the tables of the run's xlsx report")
	return cmd
}

func printRun(m *run.Manifest) {
	fmt.Printf("%s  %-11s %-6s seed=%d  %s  %s\n", m.RunID, m.Analysis, m.Tag, m.Seed,
		m.Fingerprint.Fingerprint, humanize.Time(m.StartedAt))
}

func printReport(r *report.Report) {
	fmt.Printf("\n%s\n", r.Title)
	for _, t := range r.Tables {
		fmt.Printf("\n[%s]\n", t.Name)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, strings.Join(t.Columns, "\t"))
		for _, row := range t.Rows {
			cells := make([]string, len(row))
			for i, c := range row {
				cells[i] = report.FormatCell(c)
			}
			fmt.Fprintln(w, strings.Join(cells, "\t"))
		}
		w.Flush()
	}
}

func printManifest(path string) {
	if path != "" {
		fmt.Printf("Manifest: %s\n", path)
	}
}
