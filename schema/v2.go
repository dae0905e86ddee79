package schema

import (
	"fmt"
	"strings"
)

// V2ID identifies the trajectory summary format published since March 2022.
const V2ID = "2.0"

// V2 returns the definition of schema version 2.0.
func V2() *Version {
	cols := []ColumnSpec{
		{Name: "Beginning (Julian date)", CamelCaseName: "beginning_julian_date", Type: Float},
		{Name: "Beginning (UTC Time)", CamelCaseName: "beginning_utc_time", Type: Datetime},
		{Name: "IAU (No)", CamelCaseName: "iau_no", Type: Integer},
		{Name: "IAU (code)", CamelCaseName: "iau_code", Type: Category, Nullable: true},
		{Name: "Sol lon (deg)", CamelCaseName: "sol_lon_deg", Type: Float},
		{Name: "App LST (deg)", CamelCaseName: "app_lst_deg", Type: Float},
	}
	cols = append(cols, measured("RAgeo", "deg", "rageo")...)
	cols = append(cols, measured("DECgeo", "deg", "decgeo")...)
	cols = append(cols, measured("LAMgeo", "deg", "lamgeo")...)
	cols = append(cols, measured("BETgeo", "deg", "betgeo")...)
	cols = append(cols, measured("Vgeo", "km/s", "vgeo")...)
	cols = append(cols, measured("LAMhel", "deg", "lamhel")...)
	cols = append(cols, measured("BEThel", "deg", "bethel")...)
	cols = append(cols, measured("Vhel", "km/s", "vhel")...)
	cols = append(cols, measured("a", "AU", "a")...)
	cols = append(cols, measured("e", "", "e")...)
	cols = append(cols, measured("i", "deg", "i")...)
	cols = append(cols, measured("peri", "deg", "peri")...)
	cols = append(cols, measured("node", "deg", "node")...)
	cols = append(cols, measured("Pi", "deg", "pi")...)
	cols = append(cols, measured("b", "deg", "b")...)
	cols = append(cols, measured("q", "AU", "q")...)
	cols = append(cols, measured("f", "deg", "f")...)
	cols = append(cols, measured("M", "deg", "m")...)
	cols = append(cols, measured("Q", "AU", "aphelion_q")...)
	cols = append(cols, measured("n", "deg/day", "n")...)
	cols = append(cols, measured("T", "years", "t")...)
	cols = append(cols, measured("TisserandJ", "", "tisserandj")...)
	cols = append(cols, measured("RAapp", "deg", "raapp")...)
	cols = append(cols, measured("DECapp", "deg", "decapp")...)
	cols = append(cols, measured("Azim +E of N", "deg", "azim")...)
	cols = append(cols, measured("Elev", "deg", "elev")...)
	cols = append(cols, measured("Vinit", "km/s", "vinit")...)
	cols = append(cols, measured("Vavg", "km/s", "vavg")...)
	cols = append(cols, measured("LatBeg +N", "deg", "latbeg")...)
	cols = append(cols, measured("LonBeg +E", "deg", "lonbeg")...)
	cols = append(cols, measured("HtBeg", "km", "htbeg")...)
	cols = append(cols, measured("LatEnd +N", "deg", "latend")...)
	cols = append(cols, measured("LonEnd +E", "deg", "lonend")...)
	cols = append(cols, measured("HtEnd", "km", "htend")...)
	cols = append(cols,
		ColumnSpec{Name: "Duration (sec)", CamelCaseName: "duration_sec", Type: Float},
		ColumnSpec{Name: "Peak (AbsMag)", CamelCaseName: "peak_absmag", Type: Float, Nullable: true},
		ColumnSpec{Name: "Peak Ht (km)", CamelCaseName: "peak_ht_km", Type: Float, Nullable: true},
		ColumnSpec{Name: "F (param)", CamelCaseName: "f_param", Type: Float, Nullable: true},
		ColumnSpec{Name: "Mass kg (tau=0.7%)", CamelCaseName: "mass_kg_tau_0_7", Type: Float, Nullable: true},
		ColumnSpec{Name: "Qc (deg)", CamelCaseName: "qc_deg", Type: Float},
		ColumnSpec{Name: "MedianFitErr (arcsec)", CamelCaseName: "medianfiterr_arcsec", Type: Float},
		ColumnSpec{Name: "Beg in (FOV)", CamelCaseName: "beg_in_fov", Type: Boolean},
		ColumnSpec{Name: "End in (FOV)", CamelCaseName: "end_in_fov", Type: Boolean},
		ColumnSpec{Name: "Num (stat)", CamelCaseName: "num_stat", Type: Integer},
		ColumnSpec{Name: "Participating (stations)", CamelCaseName: "participating_stations", Type: String},
		ColumnSpec{Name: "Schema (version)", CamelCaseName: "schema_version", Type: Category, Derived: true},
	)

	index := ColumnSpec{Name: "Unique trajectory (identifier)", CamelCaseName: "unique_trajectory_identifier", Type: String}
	v, err := NewVersion(V2ID, index, cols)
	if err != nil {
		panic(fmt.Sprintf("schema version %s: %v", V2ID, err))
	}
	return v
}

// measured returns a nullable float column followed by its sigma column.
func measured(title, unit, key string) []ColumnSpec {
	var unitKey string
	switch unit {
	case "":
	case "km/s":
		unitKey = "_km_s"
	case "deg/day":
		unitKey = "_deg_day"
	default:
		unitKey = "_" + strings.ToLower(unit)
	}
	name, sigma := title, title+" sigma"
	if unit != "" {
		name = fmt.Sprintf("%s (%s)", title, unit)
		sigma = fmt.Sprintf("%s sigma (%s)", title, unit)
	}
	return []ColumnSpec{
		{Name: name, CamelCaseName: key + unitKey, Type: Float, Nullable: true},
		{Name: sigma, CamelCaseName: key + "_sigma", Type: Float, Nullable: true},
	}
}
