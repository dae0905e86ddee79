// Package model embeds the canonical trajectory summary file of each schema
// version. The files serve as reference data for Avro schema synthesis.
package model

import (
	"embed"
	"fmt"
	"path"
	"sort"

	"github.com/gmn-data-platform/gmntraj/schema"
)

//go:embed data_models/*.txt
var files embed.FS

var byVersion = map[string]string{
	schema.V2ID: "traj_summary_20220304_solrange_344.0-345.0.txt",
}

// Versions returns the schema versions that have a model file.
func Versions() []string {
	out := make([]string, 0, len(byVersion))
	for v := range byVersion {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return schema.CompareIDs(out[i], out[j]) < 0 })
	return out
}

// FileName returns the model file name for a version.
func FileName(version string) (string, error) {
	name, ok := byVersion[version]
	if !ok {
		return "", fmt.Errorf("no model trajectory summary for schema version %q", version)
	}
	return name, nil
}

// TrajectorySummary returns the data directory formatted model file for a
// schema version.
func TrajectorySummary(version string) ([]byte, error) {
	name, err := FileName(version)
	if err != nil {
		return nil, err
	}
	data, err := files.ReadFile(path.Join("data_models", name))
	if err != nil {
		return nil, fmt.Errorf("read model file %s: %w", name, err)
	}
	return data, nil
}
