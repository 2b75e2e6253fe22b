package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fhirkit/conformance/pkg/snapshot"
)

func newSnapshotCmd() *cobra.Command {
	var packageDir, profileURL, outPath string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Generate a snapshot for a profile by merging its differential against its base chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			reg, sd, err := resolveProfile(ctx, packageDir, profileURL)
			if err != nil {
				return err
			}

			gen := snapshot.New(reg)
			withSnapshot, result, err := gen.Generate(ctx, sd)
			if err != nil {
				return fmt.Errorf("generating snapshot: %w", err)
			}

			for _, issue := range result.Issues {
				event := logger.Warn()
				if issue.Severity == snapshot.SeverityError {
					event = logger.Error()
				}
				event.Str("code", issue.Code).Str("path", issue.Path).Msg(issue.Message)
			}
			if !result.Success {
				logger.Warn().Msg("snapshot generation completed with errors")
			}

			out, err := json.MarshalIndent(withSnapshot, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling snapshot: %w", err)
			}

			if outPath == "" {
				fmt.Println(string(out))
				return nil
			}
			return os.WriteFile(outPath, out, 0o644)
		},
	}

	cmd.Flags().StringVar(&packageDir, "package-dir", ".", "directory containing StructureDefinition JSON (and bundles thereof)")
	cmd.Flags().StringVar(&profileURL, "url", "", "canonical URL of the profile to snapshot (required)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default: stdout)")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}
