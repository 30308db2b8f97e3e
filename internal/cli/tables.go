package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Jython1415/zolltools/pkg/humanfmt"
	"github.com/Jython1415/zolltools/pkg/tabledir"
)

func (a *app) manager(dir string) *tabledir.Manager {
	return tabledir.New(tabledir.Config{
		Dir:                dir,
		DefaultTargetBytes: a.cfg.TargetInMemorySizeBytes,
		CacheDir:           a.cacheDir,
	})
}

func (a *app) tablesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables [dir]",
		Short: "List the Parquet tables in a directory with their estimated size",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.DirectoryPath
			if len(args) == 1 {
				dir = args[0]
			}
			sizes, err := a.manager(dir).Sizes()
			if err != nil {
				return err
			}
			for _, ts := range sizes {
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %s\n", filepath.Base(ts.File), humanfmt.Bytes(ts.Bytes))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&a.cacheDir, "cache-dir", "", "cache table size estimates in this directory")
	return cmd
}

func (a *app) columnsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "columns <file.parquet>",
		Short: "Print the column names of a Parquet table in file order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cols, err := a.manager(filepath.Dir(args[0])).Columns(args[0])
			if err != nil {
				return err
			}
			for _, c := range cols {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}
