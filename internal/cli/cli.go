// Package cli implements the zolltools command-line interface.
package cli

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/Jython1415/zolltools/internal/config"
	"github.com/Jython1415/zolltools/internal/logctx"
	"github.com/Jython1415/zolltools/pkg/logging"
	"github.com/Jython1415/zolltools/pkg/metrics"
	"github.com/Jython1415/zolltools/pkg/sasconvert"
)

// ErrNotAllConverted is returned when at least one file was not converted
// and retired, so that the process exits non-zero.
var ErrNotAllConverted = errors.New("not every file was converted")

// options holds dependencies tests replace.
type options struct {
	open sasconvert.SourceOpener
}

type app struct {
	opts       options
	configPath string
	cfg        config.Config

	targetSize   string
	dir          string
	maxWorkers   int
	memoryBudget string
	debug        bool
	human        bool
	metricsFile  string
	mappingFile  string
	cacheDir     string
}

// Run executes the CLI with the given arguments, writing results to out.
func Run(ctx context.Context, args []string, out io.Writer) error {
	root := newRootCommand(options{})
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func newRootCommand(opts options) *cobra.Command {
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:           "zolltools",
		Short:         "Convert SAS7BDAT tables to validated Parquet files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.resolve(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&a.targetSize, "target-size", "", "in-memory size each chunk aims for (e.g. 1e8, 256MiB)")
	pf.StringVar(&a.dir, "dir", "", "directory holding the tables")
	pf.IntVar(&a.maxWorkers, "max-workers", 0, "files converted at once (0: all)")
	pf.StringVar(&a.memoryBudget, "memory-budget", "", `memory shared by concurrent conversions ("auto" or a size)`)
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")
	pf.BoolVar(&a.human, "human", false, "human-readable console logs")
	pf.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after a run")
	pf.StringVar(&a.mappingFile, "mapping-file", "", "JSON file mapping location codes to descriptions")

	root.AddCommand(
		a.convertCommand(),
		a.convertFileCommand(),
		a.validateCommand(),
		a.estimateCommand(),
		a.tablesCommand(),
		a.columnsCommand(),
		a.codesCommand(),
	)
	return root
}

// resolve builds the configuration: defaults, file, environment, then
// any flag the user set explicitly.
func (a *app) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("target-size") {
		n, err := config.ParseTarget(a.targetSize)
		if err != nil {
			return err
		}
		cfg.TargetInMemorySizeBytes = n
	}
	if flags.Changed("dir") {
		cfg.DirectoryPath = a.dir
	}
	if flags.Changed("max-workers") {
		cfg.MaxWorkers = a.maxWorkers
	}
	if flags.Changed("memory-budget") {
		cfg.MemoryBudget = a.memoryBudget
	}
	if flags.Changed("debug") {
		cfg.Debug = a.debug
	}
	if flags.Changed("human") {
		cfg.Human = a.human
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = a.metricsFile
	}
	if flags.Changed("mapping-file") {
		cfg.MappingFile = a.mappingFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	logging.Init(logging.Options{Debug: cfg.Debug, Human: cfg.Human, Out: cmd.ErrOrStderr()})
	cmd.SetContext(logctx.WithLogger(cmd.Context(), *logging.L()))
	return nil
}

func (a *app) converter(dir string, rec *metrics.Recorder) (*sasconvert.Converter, error) {
	budget, err := a.cfg.Budget()
	if err != nil {
		return nil, err
	}
	if budget != nil {
		log := logging.WithPhase("config")
		log.Info().
			Uint64("budget_bytes", budget.Total()).
			Str("budget_source", string(budget.Source())).
			Msg("memory budget enabled")
	}
	return sasconvert.New(sasconvert.Config{
		Dir:              dir,
		TargetChunkBytes: a.cfg.TargetInMemorySizeBytes,
		Open:             a.opts.open,
		MaxWorkers:       a.cfg.MaxWorkers,
		Budget:           budget,
		Metrics:          rec,
	}), nil
}

func (a *app) recorder() *metrics.Recorder {
	if a.cfg.MetricsFile == "" {
		return nil
	}
	return metrics.NewRecorder()
}
