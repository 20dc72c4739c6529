package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"flowval/adapters/csvgrid"
	"flowval/adapters/excel"
	"flowval/adapters/markdown"
	"flowval/adapters/plot"
	"flowval/adapters/postgres"
	"flowval/adapters/rng"
	"flowval/app"
	"flowval/internal"
	"flowval/internal/config"
	"flowval/ports"
)

// globals holds the persistent flags shared by every command
type globals struct {
	configPath string
	logLevel   string
	workers    int
	tag        string
	report     bool
	summary    bool
}

func main() {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:   "flowval",
		Short: "Validate synthetic streamflow ensembles against the historical record",
		Long: `flowval compares synthetic weekly streamflow ensembles with historical
records: internal variability of the ensemble, flow duration curve ranges and
weekly moment tests. Figures are written as PDF; every run leaves a YAML
manifest and, when DATABASE_URL is set, an archived copy in PostgreSQL.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "Configuration file (default ./flowval.yaml if present)")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level: error, warn, info, debug, trace")
	flags.IntVar(&g.workers, "workers", 0, "Concurrent workers (0 uses all CPUs)")
	flags.StringVar(&g.tag, "tag", "", "Dataset tag, e.g. stat or dyn")
	flags.BoolVar(&g.report, "report", false, "Also write an xlsx report")
	flags.BoolVar(&g.summary, "summary", false, "Also write markdown and html summaries")

	rootCmd.AddCommand(
		newAssembleCmd(g),
		newVariabilityCmd(g),
		newFDCCmd(g),
		newMomentsCmd(g),
		newAllCmd(g),
		newSitesCmd(g),
		newRunsCmd(g),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is everything a command needs, built from configuration and flags
type env struct {
	cfg      *config.Config
	logger   *internal.Logger
	db       *sqlx.DB
	archive  ports.RunArchive
	recorder *app.Recorder
	reader   *csvgrid.Reader
	locator  csvgrid.Locator
	matrices *csvgrid.MatrixStore
	figures  *plot.Renderer
}

func (e *env) Close() {
	if e.db != nil {
		e.db.Close()
	}
}

// setup loads configuration, applies flag overrides and wires the adapters.
// tweak may adjust the configuration before it is validated again.
func setup(ctx context.Context, cmd *cobra.Command, g *globals, tweak func(*config.Config) error) (*env, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = g.workers
	}
	if flags.Changed("tag") {
		cfg.Data.Tag = g.tag
	}
	if flags.Changed("report") {
		cfg.Output.Report = g.report
	}
	if flags.Changed("summary") {
		cfg.Output.Summary = g.summary
	}
	if tweak != nil {
		if err := tweak(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := internal.DefaultLogger
	switch {
	case g.logLevel != "":
		level, ok := internal.ParseLogLevel(g.logLevel)
		if !ok {
			return nil, fmt.Errorf("unknown log level %q", g.logLevel)
		}
		logger.SetLevel(level)
	case os.Getenv("LOG_LEVEL") == "":
		if level, ok := internal.ParseLogLevel(cfg.LogLevel); ok {
			logger.SetLevel(level)
		}
	}

	e := &env{
		cfg:      cfg,
		logger:   logger,
		reader:   csvgrid.NewReader(logger),
		matrices: csvgrid.NewMatrixStore(logger),
		figures:  plot.NewRenderer(logger),
	}
	if cfg.Database.URL != "" {
		db, err := postgres.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		e.db = db
		e.archive = postgres.NewRunArchive(db)
		logger.Debug("Run archive enabled")
	}
	e.recorder = app.NewRecorder(cfg.Output, excel.NewWriter(logger), markdown.NewWriter(logger), e.archive, logger)
	return e, nil
}

func (e *env) assembly() *app.AssemblyService {
	return app.NewAssemblyService(e.cfg, e.reader, e.locator, e.matrices, e.recorder, e.logger)
}

func (e *env) fdc() *app.FDCService {
	return app.NewFDCService(e.cfg, e.assembly(), e.matrices, e.figures, e.recorder, e.logger)
}

func (e *env) variability() *app.VariabilityService {
	return app.NewVariabilityService(e.cfg, e.reader, e.locator, e.figures, e.recorder, e.logger)
}

func (e *env) moments() (*app.MomentsService, error) {
	return app.NewMomentsService(e.cfg, e.reader, e.locator, rng.NewSeededAdapter(), e.figures, e.recorder, e.logger)
}
