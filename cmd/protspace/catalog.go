package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/protspace/pkg/annotation"
)

func newCatalogCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the annotations and groups that can be requested",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "Annotation catalog v%d\n", annotation.CatalogVersion)
			sources := append(append([]annotation.Source{}, annotation.Sources...), annotation.SourceDerived)
			for _, source := range sources {
				fmt.Fprintf(stdout, "\n%s:\n", source)
				for _, name := range annotation.Catalog(source) {
					fmt.Fprintf(stdout, "  %s\n", name)
				}
			}
			fmt.Fprintln(stdout, "\nGroups:")
			for _, g := range annotation.GroupNames() {
				fmt.Fprintf(stdout, "  %s: %s\n", g, strings.Join(annotation.Groups[g], ", "))
			}
		},
	}
}
