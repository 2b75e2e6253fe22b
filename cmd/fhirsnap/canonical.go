package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fhirkit/conformance/pkg/canonical"
	"github.com/fhirkit/conformance/pkg/snapshot"
)

func newCanonicalCmd() *cobra.Command {
	var packageDir, profileURL, outPath string

	cmd := &cobra.Command{
		Use:   "canonical",
		Short: "Flatten a profile into its canonical, defaulted element view",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			reg, sd, err := resolveProfile(ctx, packageDir, profileURL)
			if err != nil {
				return err
			}

			if sd.Snapshot == nil || len(sd.Snapshot.Element) == 0 {
				gen := snapshot.New(reg)
				withSnapshot, result, err := gen.Generate(ctx, sd)
				if err != nil {
					return fmt.Errorf("generating snapshot: %w", err)
				}
				if !result.Success {
					logger.Warn().Msg("snapshot had errors; canonical view may be incomplete")
				}
				sd = withSnapshot
			}

			profile, err := canonical.Build(sd)
			if err != nil {
				return fmt.Errorf("building canonical profile: %w", err)
			}

			out, err := json.MarshalIndent(profile, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling canonical profile: %w", err)
			}

			if outPath == "" {
				fmt.Println(string(out))
				return nil
			}
			return os.WriteFile(outPath, out, 0o644)
		},
	}

	cmd.Flags().StringVar(&packageDir, "package-dir", ".", "directory containing StructureDefinition JSON (and bundles thereof)")
	cmd.Flags().StringVar(&profileURL, "url", "", "canonical URL of the profile to flatten (required)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default: stdout)")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}
