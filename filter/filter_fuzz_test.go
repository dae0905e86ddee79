//go:build !integration

package filter

import (
	"testing"

	"github.com/gmn-data-platform/gmntraj/schema"
)

func FuzzCompile(f *testing.F) {
	// Seed corpus: valid CEL expressions.
	seeds := []string{
		`iau_code == "PER"`,
		`num_stat >= 3`,
		`beg_in_fov && end_in_fov`,
		`vgeo_km_s != null && vgeo_km_s > 55.0`,
		`unique_trajectory_identifier.startsWith("2022")`,
		`beginning_utc_time > timestamp("2022-03-04T23:00:00Z")`,
		`schema_version == "2.0"`,
		// Invalid and edge-case inputs.
		"",
		"not valid cel",
		"num_stat ==",
		"(((",
		"1/0",
		"iau_code + 1",
		"unknown_var == true",
		`"unclosed string`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	v := schema.V2()
	f.Fuzz(func(t *testing.T, expr string) {
		// Must never panic; errors are expected for bad input.
		Compile(expr, v)
	})
}
