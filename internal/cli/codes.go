package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Jython1415/zolltools/pkg/locationcodes"
)

var errNoMapping = errors.New("no location code mapping configured (set --mapping-file or mapping_file)")

func (a *app) codesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Look up location codes and manage code groupings",
	}
	cmd.AddCommand(a.codesDescribeCommand(), a.codesGroupingsCommand())
	return cmd
}

func (a *app) codesDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <code>...",
		Short: "Print the description of each location code",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.MappingFile == "" {
				return errNoMapping
			}
			m := locationcodes.NewMapping(a.cfg.MappingFile)
			var unknown []error
			for _, code := range args {
				desc, err := m.Description(code)
				if errors.Is(err, locationcodes.ErrUnknownCode) {
					unknown = append(unknown, err)
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t?\n", code)
					continue
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", code, desc)
			}
			return errors.Join(unknown...)
		},
	}
}

func (a *app) codesGroupingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groupings",
		Short: "Manage location code groupings in the data directory",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the saved groupings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				names, err := a.groupings().List()
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Create the groupings directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				dir, err := a.groupings().Init()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), dir)
				return nil
			},
		},
		&cobra.Command{
			Use:   "check <name>",
			Short: "Report codes in a grouping that the mapping cannot describe",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if a.cfg.MappingFile == "" {
					return errNoMapping
				}
				grp, err := a.groupings().Load(args[0])
				if err != nil {
					return err
				}
				unknown, err := grp.Unknown(locationcodes.NewMapping(a.cfg.MappingFile))
				if err != nil {
					return err
				}
				for _, code := range unknown {
					fmt.Fprintln(cmd.OutOrStdout(), code)
				}
				if len(unknown) > 0 {
					return fmt.Errorf("grouping %q has %d unknown codes", args[0], len(unknown))
				}
				return nil
			},
		},
	)
	return cmd
}

func (a *app) groupings() locationcodes.Groupings {
	return locationcodes.Groupings{Root: a.cfg.DirectoryPath}
}
