package main

import (
	"context"
	"fmt"

	"github.com/fhirkit/conformance/pkg/fhir"
	"github.com/fhirkit/conformance/pkg/registry"
)

// loadRegistry reads every StructureDefinition under packageDir and
// registers it, so profile-to-base chains resolve without a network call.
func loadRegistry(ctx context.Context, packageDir string) (*registry.Registry, error) {
	reg := registry.New()
	loader := &registry.FilesystemLoader{Dir: packageDir}
	n, err := reg.Load(ctx, loader)
	if err != nil {
		return nil, fmt.Errorf("loading package directory %s: %w", packageDir, err)
	}
	logger.Debug().Int("count", n).Str("dir", packageDir).Msg("loaded structure definitions")
	return reg, nil
}

// resolveProfile looks url up in reg, after having loaded packageDir.
func resolveProfile(ctx context.Context, packageDir, url string) (*registry.Registry, *fhir.StructureDefinition, error) {
	reg, err := loadRegistry(ctx, packageDir)
	if err != nil {
		return nil, nil, err
	}
	sd, err := reg.Get(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving profile %s: %w", url, err)
	}
	return reg, sd, nil
}
