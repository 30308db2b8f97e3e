package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Jython1415/zolltools/pkg/humanfmt"
	"github.com/Jython1415/zolltools/pkg/logging"
	"github.com/Jython1415/zolltools/pkg/memdiag"
	"github.com/Jython1415/zolltools/pkg/metrics"
	"github.com/Jython1415/zolltools/pkg/pqfile"
	"github.com/Jython1415/zolltools/pkg/sasconvert"
)

func (a *app) convertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "convert [dir]",
		Short: "Convert, validate and replace every SAS7BDAT file in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.DirectoryPath
			if len(args) == 1 {
				dir = args[0]
			}

			rec := a.recorder()
			conv, err := a.converter(dir, rec)
			if err != nil {
				return err
			}
			mem := a.memTracker(conv)
			mem.Start()
			rep, err := conv.ConvertAllReport(cmd.Context())
			mem.Stop()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, res := range rep.Results {
				switch {
				case res.Err != nil:
					fmt.Fprintf(out, "error      %s: %v\n", filepath.Base(res.Source), res.Err)
				case res.Converted:
					fmt.Fprintf(out, "converted  %s -> %s\n", filepath.Base(res.Source), filepath.Base(res.Output))
				default:
					fmt.Fprintf(out, "invalid    %s (source and output kept)\n", filepath.Base(res.Source))
				}
			}
			converted, invalid, failed := rep.Counts()
			fmt.Fprintf(out, "%d converted, %d invalid, %d failed in %s\n",
				converted, invalid, failed, humanfmt.Duration(rep.Duration))

			if err := a.writeMetrics(rec); err != nil {
				return err
			}
			if err := rep.Err(); err != nil {
				return err
			}
			if !rep.AllConverted() {
				return ErrNotAllConverted
			}
			return nil
		},
	}
}

func (a *app) convertFileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "convert-file <file.sas7bdat>",
		Short: "Convert, validate and replace one SAS7BDAT file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec := a.recorder()
			conv, err := a.converter(filepath.Dir(args[0]), rec)
			if err != nil {
				return err
			}
			ok, err := conv.ConvertAndReplace(cmd.Context(), args[0])
			if werr := a.writeMetrics(rec); werr != nil && err == nil {
				err = werr
			}
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "invalid    %s (source and output kept)\n", args[0])
				return ErrNotAllConverted
			}
			fmt.Fprintf(cmd.OutOrStdout(), "converted  %s\n", args[0])
			return nil
		},
	}
}

func (a *app) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.parquet>",
		Short: "Compare a Parquet output with its SAS7BDAT source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := a.converter(filepath.Dir(args[0]), nil)
			if err != nil {
				return err
			}
			ok, err := conv.Validate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "invalid  %s\n", args[0])
				return ErrNotAllConverted
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid    %s\n", args[0])
			return nil
		},
	}
}

func (a *app) estimateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate <file>",
		Short: "Print the rows per chunk for a SAS7BDAT or Parquet file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			var rows int
			var err error
			if strings.HasSuffix(file, pqfile.Ext) {
				rows, err = a.manager(filepath.Dir(file)).ChunkRows(file, 0)
			} else {
				conv, cerr := a.converter(filepath.Dir(file), nil)
				if cerr != nil {
					return cerr
				}
				rows, err = conv.EstimateChunkRows(cmd.Context(), file)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows per chunk (target %s)\n",
				rows, humanfmt.Bytes(a.cfg.TargetInMemorySizeBytes))
			return nil
		},
	}
}

func (a *app) memTracker(conv *sasconvert.Converter) *memdiag.Tracker {
	cfg := memdiag.FromEnv(os.Getenv)
	cfg.Budget = conv.Config().Budget
	return memdiag.NewTracker(cfg, *logging.L())
}

func (a *app) writeMetrics(rec *metrics.Recorder) error {
	if rec == nil {
		return nil
	}
	return rec.WriteTextfile(a.cfg.MetricsFile)
}
