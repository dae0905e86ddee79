package schema

import (
	"errors"
	"testing"

	"github.com/gmn-data-platform/gmntraj/gmnerr"
)

func testIndex() ColumnSpec {
	return ColumnSpec{Name: "Id", CamelCaseName: "id", Type: String}
}

func TestV2_Shape(t *testing.T) {
	v := V2()
	if v.ID != "2.0" {
		t.Errorf("ID = %q, want 2.0", v.ID)
	}
	if len(v.Columns) != 86 {
		t.Fatalf("len(Columns) = %d, want 86", len(v.Columns))
	}
	if got := len(v.FileColumns()); got != 85 {
		t.Errorf("len(FileColumns) = %d, want 85", got)
	}
	if v.Index.CamelCaseName != "unique_trajectory_identifier" {
		t.Errorf("index camel name = %q", v.Index.CamelCaseName)
	}

	last := v.Columns[len(v.Columns)-1]
	if last.CamelCaseName != "schema_version" || !last.Derived || last.Type != Category {
		t.Errorf("last column = %+v, want derived category schema_version", last)
	}

	for i, c := range v.Columns {
		if c.Position != i {
			t.Errorf("column %q position = %d, want %d", c.Name, c.Position, i)
		}
	}
}

func TestV2_ColumnLookup(t *testing.T) {
	v := V2()
	tests := []struct {
		name  string
		camel string
		typ   SemanticType
	}{
		{"Beginning (UTC Time)", "beginning_utc_time", Datetime},
		{"IAU (No)", "iau_no", Integer},
		{"IAU (code)", "iau_code", Category},
		{"Vgeo (km/s)", "vgeo_km_s", Float},
		{"Vgeo sigma (km/s)", "vgeo_sigma", Float},
		{"e", "e", Float},
		{"TisserandJ sigma", "tisserandj_sigma", Float},
		{"Q (AU)", "aphelion_q_au", Float},
		{"n (deg/day)", "n_deg_day", Float},
		{"Beg in (FOV)", "beg_in_fov", Boolean},
		{"Participating (stations)", "participating_stations", String},
	}
	for _, tt := range tests {
		t.Run(tt.camel, func(t *testing.T) {
			byName, ok := v.Column(tt.name)
			if !ok {
				t.Fatalf("column %q not found", tt.name)
			}
			byCamel, ok := v.Column(tt.camel)
			if !ok {
				t.Fatalf("column %q not found", tt.camel)
			}
			if byName != byCamel {
				t.Errorf("lookup by name %+v != lookup by camel %+v", byName, byCamel)
			}
			if byName.CamelCaseName != tt.camel || byName.Type != tt.typ {
				t.Errorf("got %+v, want camel=%s type=%s", byName, tt.camel, tt.typ)
			}
		})
	}
}

func TestNewVersion_Validation(t *testing.T) {
	tests := []struct {
		name string
		id   string
		cols []ColumnSpec
	}{
		{"bad id", "two", []ColumnSpec{{Name: "a", CamelCaseName: "a", Type: Float}}},
		{"duplicate name", "1.0", []ColumnSpec{
			{Name: "a", CamelCaseName: "a", Type: Float},
			{Name: "a", CamelCaseName: "b", Type: Float},
		}},
		{"duplicate camel", "1.0", []ColumnSpec{
			{Name: "a", CamelCaseName: "x", Type: Float},
			{Name: "b", CamelCaseName: "x", Type: Float},
		}},
		{"clashes with index", "1.0", []ColumnSpec{{Name: "Id", CamelCaseName: "other", Type: Float}}},
		{"unknown type", "1.0", []ColumnSpec{{Name: "a", CamelCaseName: "a", Type: "decimal"}}},
		{"missing camel", "1.0", []ColumnSpec{{Name: "a", Type: Float}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewVersion(tt.id, testIndex(), tt.cols); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestVersion_ValidatePositions(t *testing.T) {
	v := &Version{
		ID:    "1.0",
		Index: testIndex(),
		Columns: []ColumnSpec{
			{Name: "a", CamelCaseName: "a", Type: Float, Position: 0},
			{Name: "b", CamelCaseName: "b", Type: Float, Position: 2},
		},
	}
	if err := v.Validate(); err == nil {
		t.Error("expected error for non-contiguous positions")
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	a := V2()
	b := V2()
	if a.Hash == "" || a.Hash != b.Hash {
		t.Errorf("hashes differ: %s vs %s", a.Hash, b.Hash)
	}
}

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2.0", "2.0", 0},
		{"2.0", "2", 0},
		{"1.9", "2.0", -1},
		{"2.1", "2.0", 1},
		{"10.0", "9.9", 1},
		{"2.0", "x", -1},
		{"x", "y", -1},
	}
	for _, tt := range tests {
		if got := CompareIDs(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareIDs(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := Default()

	v, err := r.Resolve("2.0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v.ID != "2.0" {
		t.Errorf("ID = %q", v.ID)
	}

	for _, id := range []string{"2", "2.0.0", "", "3.0"} {
		_, err := r.Resolve(id)
		var target *gmnerr.UnknownSchemaVersionError
		if !errors.As(err, &target) {
			t.Errorf("Resolve(%q): got %v, want UnknownSchemaVersionError", id, err)
		}
	}
}

func TestRegistry_RegisterImmutable(t *testing.T) {
	r := NewRegistry()
	v1, err := NewVersion("1.0", testIndex(), []ColumnSpec{{Name: "a", CamelCaseName: "a", Type: Float}})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Register(v1); err != nil {
		t.Fatalf("Register: %v", err)
	}

	same, _ := NewVersion("1.0", testIndex(), []ColumnSpec{{Name: "a", CamelCaseName: "a", Type: Float}})
	if err := r.Register(same); err != nil {
		t.Errorf("re-registering identical columns should be a no-op, got %v", err)
	}

	changed, _ := NewVersion("1.0", testIndex(), []ColumnSpec{{Name: "a", CamelCaseName: "a", Type: Integer}})
	if err := r.Register(changed); err == nil {
		t.Error("expected error when changing columns of a registered version")
	}
}

func TestRegistry_LatestAndList(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Latest(); err == nil {
		t.Error("expected error on empty registry")
	}

	for _, id := range []string{"10.0", "2.0", "2.1"} {
		v, err := NewVersion(id, testIndex(), []ColumnSpec{{Name: "a", CamelCaseName: "a", Type: Float}})
		if err != nil {
			t.Fatal(err)
		}
		if err := r.Register(v); err != nil {
			t.Fatal(err)
		}
	}

	ids := r.IDs()
	want := []string{"2.0", "2.1", "10.0"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("IDs = %v, want %v", ids, want)
		}
	}
	latest, err := r.Latest()
	if err != nil || latest.ID != "10.0" {
		t.Errorf("Latest = %v, %v; want 10.0", latest, err)
	}
}

func TestRegistry_Infer(t *testing.T) {
	r := NewRegistry()
	small, _ := NewVersion("1.0", testIndex(), []ColumnSpec{
		{Name: "A", CamelCaseName: "a", Type: Float},
		{Name: "V", CamelCaseName: "v", Type: Category, Derived: true},
	})
	large, _ := NewVersion("1.1", testIndex(), []ColumnSpec{
		{Name: "A", CamelCaseName: "a", Type: Float},
		{Name: "B", CamelCaseName: "b", Type: Float},
		{Name: "V", CamelCaseName: "v", Type: Category, Derived: true},
	})
	_ = r.Register(small)
	_ = r.Register(large)

	v, err := r.InferByFileColumns(2)
	if err != nil || v.ID != "1.1" {
		t.Errorf("InferByFileColumns(2) = %v, %v; want 1.1", v, err)
	}
	if _, err := r.InferByFileColumns(5); err == nil {
		t.Error("expected error for unmatched column count")
	}

	v, err = r.InferByHeader([]string{"id", "a", "v"})
	if err != nil || v.ID != "1.0" {
		t.Errorf("InferByHeader = %v, %v; want 1.0", v, err)
	}
	if _, err := r.InferByHeader([]string{"id", "v", "a"}); err == nil {
		t.Error("expected error for reordered header")
	}
}

func TestVersion_HeaderMismatch(t *testing.T) {
	v, err := NewVersion("1.1", testIndex(), []ColumnSpec{
		{Name: "A", CamelCaseName: "a", Type: Float},
		{Name: "B", CamelCaseName: "b", Type: Float},
		{Name: "V", CamelCaseName: "v", Type: Category, Derived: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		tokens []string
		want   int
	}{
		{"exact", []string{"id", "a", "b", "v"}, -1},
		{"empty", nil, 0},
		{"wrong index", []string{"key", "a", "b", "v"}, 0},
		{"swapped columns", []string{"id", "b", "a", "v"}, 1},
		{"short", []string{"id", "a", "b"}, 3},
		{"long", []string{"id", "a", "b", "v", "w"}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.HeaderMismatch(tt.tokens); got != tt.want {
				t.Errorf("HeaderMismatch = %d, want %d", got, tt.want)
			}
			if got := v.MatchesHeader(tt.tokens); got != (tt.want < 0) {
				t.Errorf("MatchesHeader = %v", got)
			}
		})
	}
}
