package transform

import (
	"strings"
	"testing"

	"github.com/gmn-data-platform/gmntraj/reader"
	"github.com/gmn-data-platform/gmntraj/schema"
	"github.com/gmn-data-platform/gmntraj/table"
	"github.com/gmn-data-platform/gmntraj/testutil"
)

func modelTable(t *testing.T) *table.Table {
	t.Helper()
	lines := testutil.ModelLines(t, schema.V2ID)
	rec, err := reader.Normalize(strings.Join(lines, "\n"), reader.DataDirectory)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	tbl, err := table.Coerce(rec, table.Options{CamelCase: true})
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	return tbl
}

func TestDropColumns(t *testing.T) {
	tbl := modelTable(t)
	out, err := DropColumns("participating_stations", "Schema (version)", "missing")(tbl)
	if err != nil {
		t.Fatal(err)
	}
	if _, cols := out.Shape(); cols != 84 {
		t.Errorf("cols = %d, want 84", cols)
	}
	if _, ok := out.Column("participating_stations"); ok {
		t.Error("column should be dropped")
	}
	if _, cols := tbl.Shape(); cols != 86 {
		t.Error("input table must not change")
	}
}

func TestKeepColumns(t *testing.T) {
	tbl := modelTable(t)
	out, err := KeepColumns("num_stat", "beginning_utc_time")(tbl)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(out.ColumnNames(), ","); got != "beginning_utc_time,num_stat" {
		t.Errorf("columns = %s, want table order", got)
	}
	if _, err := KeepColumns("nope")(tbl); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestChain(t *testing.T) {
	if Chain() != nil {
		t.Error("empty chain should be nil")
	}
	tbl := modelTable(t)
	fn := Chain(
		FilterFieldIn("iau_code", "ORS", "XVI"),
		FilterCEL(`num_stat >= 3`),
		KeepColumns("iau_code", "num_stat"),
	)
	out, err := fn(tbl)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	rows, cols := out.Shape()
	if rows == 0 || cols != 2 {
		t.Fatalf("shape = (%d, %d)", rows, cols)
	}
	code, _ := out.Column("iau_code")
	stat, _ := out.Column("num_stat")
	for i := range out.Index {
		if c := code.Values[i].(table.Category); c != "ORS" && c != "XVI" {
			t.Errorf("row %d: iau_code = %s", i, c)
		}
		if stat.Values[i].(int) < 3 {
			t.Errorf("row %d: num_stat = %v", i, stat.Values[i])
		}
	}
}

func TestChain_Error(t *testing.T) {
	if _, err := Chain(FilterCEL("num_stat"), DropColumns("x"))(modelTable(t)); err == nil {
		t.Error("expected compile error to stop the chain")
	}
}
