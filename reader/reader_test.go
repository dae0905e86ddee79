package reader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/gmn-data-platform/gmntraj/gmnerr"
	"github.com/gmn-data-platform/gmntraj/schema"
	"github.com/gmn-data-platform/gmntraj/testutil"
)

const (
	modelFirstIDs = "20220304220741_yrPTs 20220304221458_vpeSU 20220304221734_ii908"
	restFirstIDs  = "20220304220741_yrPTs 20220401012310_f5I2M 20220401012444_BIAD6"
)

func readTestdata(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read testdata: %v", err)
	}
	return string(data)
}

func modelText(t *testing.T) string {
	t.Helper()
	return strings.Join(testutil.ModelLines(t, schema.V2ID), "\n") + "\n"
}

func assertModelRecords(t *testing.T, rec *Records) {
	t.Helper()
	if rec.Len() != 534 {
		t.Fatalf("Len = %d, want 534", rec.Len())
	}
	if rec.Version.ID != "2.0" {
		t.Errorf("Version = %s, want 2.0", rec.Version.ID)
	}
	if got := strings.Join(rec.Index[:3], " "); got != modelFirstIDs {
		t.Errorf("first ids = %s, want %s", got, modelFirstIDs)
	}
	for i, row := range rec.Rows {
		if len(row) != 86 {
			t.Fatalf("row %d has %d columns, want 86", i, len(row))
		}
	}
	if last := rec.Rows[0][85]; last != "2.0" {
		t.Errorf("derived schema version = %q, want 2.0", last)
	}
	if rec.Rows[0][1] != "2022-03-04 22:07:41.621138" {
		t.Errorf("UTC time token = %q", rec.Rows[0][1])
	}
}

func TestNormalize_ModelText(t *testing.T) {
	rec, err := Normalize(modelText(t), DataDirectory)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	assertModelRecords(t, rec)
	if rec.HeaderLines != 5 || rec.TotalLines != 539 {
		t.Errorf("HeaderLines = %d, TotalLines = %d; want 5, 539", rec.HeaderLines, rec.TotalLines)
	}
}

func TestNormalize_InputKinds(t *testing.T) {
	text := modelText(t)
	path := filepath.Join(t.TempDir(), "traj_summary.txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	inputs := map[string]any{
		"path":   Path(path),
		"bytes":  []byte(text),
		"reader": f,
		"chunks": []string{text},
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			rec, err := Normalize(in, DataDirectory)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			assertModelRecords(t, rec)
		})
	}
}

func TestNormalize_MissingPath(t *testing.T) {
	_, err := Normalize(Path(filepath.Join(t.TempDir(), "missing.txt")), DataDirectory)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want os.ErrNotExist", err)
	}
}

func TestNormalize_Chunks(t *testing.T) {
	lines := testutil.ModelLines(t, schema.V2ID)
	whole, err := Normalize(strings.Join(lines, "\n"), DataDirectory)
	if err != nil {
		t.Fatal(err)
	}

	chunks := []string{
		strings.Join(lines[:40], "\n"),
		strings.Join(lines[40:80], "\n"),
		strings.Join(lines[80:], "\n"),
	}
	split, err := Normalize(chunks, DataDirectory)
	if err != nil {
		t.Fatalf("Normalize chunks: %v", err)
	}
	assertModelRecords(t, split)
	if !reflect.DeepEqual(whole.Index, split.Index) || !reflect.DeepEqual(whole.Rows, split.Rows) {
		t.Error("chunked input should normalize to the same records")
	}
}

func TestNormalize_ChunksWithRepeatedHeaders(t *testing.T) {
	lines := testutil.ModelLines(t, schema.V2ID)
	header, data := lines[:5], lines[5:]
	whole, err := Normalize(strings.Join(lines, "\n"), DataDirectory)
	if err != nil {
		t.Fatal(err)
	}

	for _, n := range []int{1, 2, 3, 7, 534} {
		t.Run(fmt.Sprintf("chunks=%d", n), func(t *testing.T) {
			size := (len(data) + n - 1) / n
			var chunks []string
			headers := 0
			for start := 0; start < len(data); start += size {
				end := min(start+size, len(data))
				chunk := append(append([]string{}, header...), data[start:end]...)
				chunks = append(chunks, strings.Join(chunk, "\n"))
				headers += len(header)
			}

			rec, err := Normalize(chunks, DataDirectory)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if !reflect.DeepEqual(whole.Index, rec.Index) || !reflect.DeepEqual(whole.Rows, rec.Rows) {
				t.Errorf("n=%d: chunked input differs from unsplit input", n)
			}
			if rec.HeaderLines != headers {
				t.Errorf("HeaderLines = %d, want %d", rec.HeaderLines, headers)
			}
			if rec.Len() != rec.TotalLines-rec.HeaderLines {
				t.Errorf("Len = %d, want TotalLines-HeaderLines = %d", rec.Len(), rec.TotalLines-rec.HeaderLines)
			}
		})
	}
}

func TestNormalize_TwoFilesWithHeaders(t *testing.T) {
	first := testutil.ModelLines(t, schema.V2ID)
	second := strings.Split(readTestdata(t, "traj_summary_monthly_201812.txt"), "\n")

	rec, err := Normalize([]string{
		strings.Join(first[:12], "\n"),
		strings.Join(second[:12], "\n"),
	}, DataDirectory)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.Len() != 14 {
		t.Errorf("Len = %d, want 14", rec.Len())
	}
	if !strings.HasPrefix(rec.Index[7], "201812") {
		t.Errorf("row 7 should come from the second file, got %s", rec.Index[7])
	}
}

func TestNormalize_REST(t *testing.T) {
	rec, err := Normalize(readTestdata(t, "meteor_summary.csv"), RESTAPI)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.Len() != 100 {
		t.Fatalf("Len = %d, want 100", rec.Len())
	}
	if got := strings.Join(rec.Index[:3], " "); got != restFirstIDs {
		t.Errorf("first ids = %s, want %s", got, restFirstIDs)
	}
	if rec.HeaderLines != 1 {
		t.Errorf("HeaderLines = %d, want 1", rec.HeaderLines)
	}
	if len(rec.Rows[0]) != 86 {
		t.Errorf("row has %d columns, want 86", len(rec.Rows[0]))
	}
	if !strings.Contains(rec.Rows[0][84], ",") {
		t.Errorf("quoted station list should stay one token, got %q", rec.Rows[0][84])
	}
}

func TestNormalize_RESTChunksWithRepeatedHeader(t *testing.T) {
	lines := strings.Split(readTestdata(t, "meteor_summary.csv"), "\n")
	rec, err := Normalize([]string{
		strings.Join(lines[:2], "\n"),
		lines[0] + "\n" + strings.Join(lines[2:4], "\n"),
	}, RESTAPI)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.Len() != 3 {
		t.Errorf("Len = %d, want 3", rec.Len())
	}
	if rec.HeaderLines != 2 {
		t.Errorf("HeaderLines = %d, want 2", rec.HeaderLines)
	}
}

func TestNormalize_RESTWithoutHeader(t *testing.T) {
	v := schema.V2()
	ids := testutil.IDs(2)
	text := testutil.RESTLine(v, ids[0], nil) + "\n" + testutil.RESTLine(v, ids[1], nil)

	rec, err := Normalize(text, RESTAPI)
	if err != nil {
		t.Fatalf("Normalize (inferred from row): %v", err)
	}
	if rec.Version.ID != "2.0" || rec.Len() != 2 {
		t.Errorf("got version %s len %d", rec.Version.ID, rec.Len())
	}

	rec, err = Normalize(text, RESTAPI, WithVersion("2.0"))
	if err != nil {
		t.Fatalf("Normalize (declared): %v", err)
	}
	if rec.Len() != 2 {
		t.Errorf("Len = %d, want 2", rec.Len())
	}
}

func TestNormalize_InvalidInputType(t *testing.T) {
	for _, in := range []any{5, nil, []int{1}, map[string]string{}} {
		_, err := Normalize(in, DataDirectory)
		var target *gmnerr.InvalidInputTypeError
		if !errors.As(err, &target) {
			t.Errorf("Normalize(%T): got %v, want InvalidInputTypeError", in, err)
		}
	}
}

func TestNormalize_Empty(t *testing.T) {
	v := schema.V2()
	inputs := map[string]string{
		"blank":       "",
		"header only": strings.Join(testutil.DataDirectoryHeader(v), "\n"),
		"newlines":    "\n\n\n",
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(in, DataDirectory)
			if !errors.Is(err, gmnerr.ErrEmptyInput) {
				t.Errorf("got %v, want ErrEmptyInput", err)
			}
		})
	}

	_, err := Normalize([]string{testutil.RESTHeader(v), testutil.RESTHeader(v)}, RESTAPI)
	if !errors.Is(err, gmnerr.ErrEmptyInput) {
		t.Errorf("REST headers only: got %v, want ErrEmptyInput", err)
	}
}

func TestNormalize_DuplicateAcrossChunks(t *testing.T) {
	lines := testutil.ModelLines(t, schema.V2ID)
	_, err := Normalize([]string{
		strings.Join(lines[:20], "\n"),
		strings.Join(lines[19:40], "\n"), // line 19 repeated
	}, DataDirectory)

	var target *gmnerr.DuplicateRecordIdentifierError
	if !errors.As(err, &target) {
		t.Fatalf("got %v, want DuplicateRecordIdentifierError", err)
	}
	if target.FirstLine != 20 || target.Line != 21 {
		t.Errorf("lines = %d/%d, want 20/21", target.FirstLine, target.Line)
	}
}

func TestNormalize_UnknownVersion(t *testing.T) {
	_, err := Normalize(modelText(t), DataDirectory, WithVersion("1.0"))
	var target *gmnerr.UnknownSchemaVersionError
	if !errors.As(err, &target) {
		t.Fatalf("got %v, want UnknownSchemaVersionError", err)
	}
	if target.Version != "1.0" {
		t.Errorf("Version = %q, want 1.0", target.Version)
	}
}

func TestNormalize_UninferableVersion(t *testing.T) {
	_, err := Normalize("  a; 1.0; 2.0\n", DataDirectory)
	var target *gmnerr.UnknownSchemaVersionError
	if !errors.As(err, &target) {
		t.Errorf("got %v, want UnknownSchemaVersionError", err)
	}
}

func TestNormalize_MalformedRow(t *testing.T) {
	v := schema.V2()
	lines := append(testutil.DataDirectoryHeader(v),
		testutil.DataDirectoryLine(v, "a", nil),
		"  b; 1.0; 2.0",
	)
	_, err := Normalize(strings.Join(lines, "\n"), DataDirectory)
	var target *gmnerr.MalformedRowError
	if !errors.As(err, &target) {
		t.Fatalf("got %v, want MalformedRowError", err)
	}
	if target.Line != 7 || target.Want != 86 || target.Got != 3 {
		t.Errorf("got %+v", target)
	}
}

func TestNormalize_TrailingDelimiter(t *testing.T) {
	v := schema.V2()
	text := testutil.DataDirectoryLine(v, "a", nil) + ";"
	rec, err := Normalize(text, DataDirectory)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.Len() != 1 {
		t.Errorf("Len = %d, want 1", rec.Len())
	}
}

func TestNormalize_CRLF(t *testing.T) {
	v := schema.V2()
	ids := testutil.IDs(2)
	text := strings.Join([]string{
		testutil.RESTHeader(v),
		testutil.RESTLine(v, ids[0], nil),
		testutil.RESTLine(v, ids[1], nil),
	}, "\r\n") + "\r\n"
	rec, err := Normalize(text, RESTAPI)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.Len() != 2 || rec.Rows[1][85] != "2.0" {
		t.Errorf("got %d rows, last token %q", rec.Len(), rec.Rows[1][85])
	}
}

func TestNormalize_UnknownDialect(t *testing.T) {
	if _, err := Normalize("x", Dialect("tsv")); err == nil {
		t.Error("expected error for unknown dialect")
	}
}

func TestRecords_Array(t *testing.T) {
	rec, err := Normalize(Path(filepath.Join("testdata", "traj_summary_monthly_201812.txt")), DataDirectory)
	if err != nil {
		t.Fatal(err)
	}
	arr := rec.Array()
	if len(arr) != 25 || len(arr[0]) != 86 {
		t.Fatalf("shape = (%d, %d), want (25, 86)", len(arr), len(arr[0]))
	}
	arr[0][0] = "mutated"
	if rec.Rows[0][0] == "mutated" {
		t.Error("Array should return a copy")
	}
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"", DataDirectory, false},
		{"data_directory", DataDirectory, false},
		{"rest_api", RESTAPI, false},
		{"rest", RESTAPI, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDialect(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseDialect(%q) = %q, %v", tt.in, got, err)
		}
	}
}

// swapHeader returns v's REST header with columns i and j exchanged.
func swapHeader(v *schema.Version, i, j int) string {
	names := append([]string{v.Index.CamelCaseName}, v.Names(true)...)
	names[i+1], names[j+1] = names[j+1], names[i+1]
	return strings.Join(names, ",")
}

func TestNormalize_RESTHeaderMismatch(t *testing.T) {
	v := schema.V2()
	ids := testutil.IDs(2)
	permuted := swapHeader(v, 0, 1)

	tests := []struct {
		name   string
		input  any
		opts   []Option
		line   int
		column int
	}{
		{
			name:   "declared version",
			input:  permuted + "\n" + testutil.RESTLine(v, ids[0], nil),
			opts:   []Option{WithVersion("2.0")},
			line:   1,
			column: 1,
		},
		{
			name:   "inferred version",
			input:  permuted + "\n" + testutil.RESTLine(v, ids[0], nil),
			line:   1,
			column: 1,
		},
		{
			name: "repeated header in later chunk",
			input: []string{
				testutil.RESTHeader(v) + "\n" + testutil.RESTLine(v, ids[0], nil),
				swapHeader(v, 3, 4) + "\n" + testutil.RESTLine(v, ids[1], nil),
			},
			opts:   []Option{WithVersion("2.0")},
			line:   3,
			column: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.input, RESTAPI, tt.opts...)
			var target *gmnerr.HeaderMismatchError
			if !errors.As(err, &target) {
				t.Fatalf("got %v, want HeaderMismatchError", err)
			}
			if target.Line != tt.line || target.Position != tt.column || target.Version != "2.0" {
				t.Errorf("got %+v", target)
			}
			if target.Want != v.Columns[tt.column-1].CamelCaseName {
				t.Errorf("Want = %q, want %q", target.Want, v.Columns[tt.column-1].CamelCaseName)
			}
		})
	}
}

func TestNormalize_RESTInferenceOrder(t *testing.T) {
	index := schema.ColumnSpec{Name: "Id", CamelCaseName: "id", Type: schema.String}
	reg := schema.NewRegistry()
	for _, id := range []string{"1.0", "1.1"} {
		v, err := schema.NewVersion(id, index, []schema.ColumnSpec{
			{Name: "A", CamelCaseName: "a", Type: schema.Float},
			{Name: "V", CamelCaseName: "v", Type: schema.Category, Derived: true},
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := reg.Register(v); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		// The header fits both versions; the row names one.
		{"row before header", "id,a,v\nx,1.5,1.1\n", "1.1"},
		{"row without header", "x,1.5,1.0\n", "1.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Normalize(tt.input, RESTAPI, WithRegistry(reg))
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if rec.Version.ID != tt.want {
				t.Errorf("version = %s, want %s", rec.Version.ID, tt.want)
			}
		})
	}

	one := schema.NewRegistry()
	v, _ := schema.NewVersion("1.0", index, []schema.ColumnSpec{
		{Name: "A", CamelCaseName: "a", Type: schema.Float},
		{Name: "V", CamelCaseName: "v", Type: schema.Category, Derived: true},
	})
	if err := one.Register(v); err != nil {
		t.Fatal(err)
	}
	rec, err := Normalize("id,a,v\nx,1.5,\n", RESTAPI, WithRegistry(one))
	if err != nil {
		t.Fatalf("Normalize (header fallback): %v", err)
	}
	if rec.Version.ID != "1.0" {
		t.Errorf("version = %s, want 1.0", rec.Version.ID)
	}
}

func TestNormalize_RESTQuotedNewline(t *testing.T) {
	v := schema.V2()
	ids := testutil.IDs(2)
	stations := "US0001,\nUS0002"
	text := strings.Join([]string{
		testutil.RESTHeader(v),
		testutil.RESTLine(v, ids[0], map[string]string{"participating_stations": stations}),
		testutil.RESTLine(v, ids[1], nil),
	}, "\n")

	rec, err := Normalize(text, RESTAPI)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.Len() != 2 {
		t.Fatalf("Len = %d, want 2", rec.Len())
	}
	col, ok := v.Column("participating_stations")
	if !ok {
		t.Fatal("participating_stations not in version")
	}
	if got := rec.Rows[0][col.Position]; got != stations {
		t.Errorf("stations = %q, want %q", got, stations)
	}
	if rec.TotalLines != 3 || rec.HeaderLines != 1 {
		t.Errorf("TotalLines = %d, HeaderLines = %d; want 3, 1", rec.TotalLines, rec.HeaderLines)
	}
}

func TestNormalize_RESTMalformedQuote(t *testing.T) {
	v := schema.V2()
	ids := testutil.IDs(2)
	tests := []struct {
		name  string
		row   string
		cause error
	}{
		{"unterminated", ids[0] + `,"US0001`, csv.ErrQuote},
		{"bare quote", ids[0] + `,US"0001,x`, csv.ErrBareQuote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := testutil.RESTHeader(v) + "\n" + tt.row + "\n" + testutil.RESTLine(v, ids[1], nil)
			_, err := Normalize(text, RESTAPI)
			var target *gmnerr.MalformedRowError
			if !errors.As(err, &target) {
				t.Fatalf("got %v, want MalformedRowError", err)
			}
			if target.Line != 2 {
				t.Errorf("Line = %d, want 2", target.Line)
			}
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				t.Errorf("got %v, want wrapped csv.ParseError", err)
			}
			if !errors.Is(err, tt.cause) {
				t.Errorf("got %v, want %v", err, tt.cause)
			}
		})
	}
}
