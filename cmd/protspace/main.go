package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/errors"
)

var version = "0.1.0"

// Exit codes.
const (
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := newRootCommand(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.IsType(err, errors.ErrorTypeConfig) || errors.IsType(err, errors.ErrorTypeValidation) {
		return exitConfig
	}
	return exitFailure
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "protspace",
		Short: "protspace - protein annotation and bundle tooling",
		Long: `protspace fetches protein annotations from UniProt, the UniProt taxonomy
service and InterPro, and packages them with projection tables into a
parquetbundle for visualisation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rc.PersistentFlags().StringP("config", "c", "", "YAML configuration file")
	rc.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rc.PersistentFlags().String("log-format", "", "Log encoding (json, console)")

	rc.AddCommand(newAnnotateCommand(stdout))
	rc.AddCommand(newBundleCommand(stdout))
	rc.AddCommand(newCatalogCommand(stdout))
	rc.AddCommand(newVersionCommand(stdout))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

func newVersionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "protspace v%s\n", version)
			fmt.Fprintf(stdout, "Annotation catalog: v%d\n", annotation.CatalogVersion)
			fmt.Fprintf(stdout, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(stdout, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
