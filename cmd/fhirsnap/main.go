// Command fhirsnap is a cobra-based CLI wrapper around the conformance
// toolkit: generate a snapshot from a package of StructureDefinitions,
// flatten one into its canonical form, or evaluate a FHIRPath expression
// against a resource file.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	verbose bool
	logger  zerolog.Logger
)

func main() {
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

	if err := newRootCmd().Execute(); err != nil {
		logger.Error().Err(err).Msg("fhirsnap failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fhirsnap",
		Short: "FHIR R4 conformance toolkit: snapshot generation, canonical flattening, FHIRPath evaluation",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSnapshotCmd())
	rootCmd.AddCommand(newCanonicalCmd())
	rootCmd.AddCommand(newEvalCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("fhirsnap version %s\n", version)
		},
	}
}
