package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/protspace/pkg/bundle"
	"github.com/ajitpratap0/protspace/pkg/errors"
	"github.com/ajitpratap0/protspace/pkg/settings"
	"github.com/ajitpratap0/protspace/pkg/table"
)

func newBundleCommand(stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Inspect and edit parquetbundle files",
	}
	cmd.AddCommand(newBundleExtractCommand(stdout))
	cmd.AddCommand(newBundleSettingsCommand(stdout))
	cmd.AddCommand(newBundleInspectCommand(stdout))
	return cmd
}

func newBundleExtractCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <bundle> <directory>",
		Short: "Write each part of a bundle to its own parquet file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := bundle.ExtractFile(args[0], args[1])
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(stdout, p)
			}
			return nil
		},
	}
}

func newBundleSettingsCommand(stdout io.Writer) *cobra.Command {
	var output, compression string
	var merge, show bool

	cmd := &cobra.Command{
		Use:   "settings <bundle> [settings]",
		Short: "Show, replace or merge the settings of a bundle",
		Long: `Without a settings argument (or with --show) the stored settings are printed
as JSON. Otherwise the settings part is replaced by the given JSON file or
inline JSON object; with --merge the given settings are applied on top of
the stored ones. The three tables are copied unchanged.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 || show {
				return showSettings(cmd, stdout, args[0])
			}

			overlay, err := settings.Load(args[1])
			if err != nil {
				return err
			}
			next := overlay
			if merge {
				b, err := bundle.ReadFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				next = b.Settings.Merge(overlay)
			}

			out := output
			if out == "" {
				out = args[0]
			}
			if err := bundle.ReplaceSettingsFile(args[0], out, next.NormalizeColors(), table.Options{Compression: compression}); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Wrote %s with settings for %d annotations\n", out, len(next))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this path instead of replacing the bundle in place")
	cmd.Flags().BoolVar(&merge, "merge", false, "Merge into the stored settings instead of replacing them")
	cmd.Flags().BoolVar(&show, "show", false, "Print the stored settings")
	cmd.Flags().StringVar(&compression, "compression", "", "Parquet compression of the settings part")
	return cmd
}

func showSettings(cmd *cobra.Command, stdout io.Writer, path string) error {
	b, err := bundle.ReadFile(cmd.Context(), path)
	if err != nil {
		return err
	}
	if !b.HasSettings() {
		return errors.New(errors.ErrorTypeNotFound, "bundle has no settings part").WithDetail("path", path)
	}
	data, err := b.Settings.Marshal()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(data))
	return err
}

func newBundleInspectCommand(stdout io.Writer) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <bundle>",
		Short: "Show the parts, digests and annotations of a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeFile, "failed to read bundle").WithDetail("path", args[0])
			}
			info, err := bundle.Inspect(cmd.Context(), data)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			return printInfo(stdout, info)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func printInfo(w io.Writer, info *bundle.Info) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PART\tBYTES\tROWS\tSHA256")
	for _, p := range info.Parts {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", p.Name, p.Size, p.Rows, p.SHA256)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nAnnotations: %d\n", len(info.Annotations))
	for _, a := range info.Annotations {
		fmt.Fprintf(w, "  %s\n", a)
	}
	if len(info.Styled) > 0 {
		fmt.Fprintf(w, "Styled: %d\n", len(info.Styled))
		for _, a := range info.Styled {
			fmt.Fprintf(w, "  %s\n", a)
		}
	}
	return nil
}
