package reader

import "fmt"

// Dialect is the header and delimiter convention of an input.
type Dialect string

const (
	// DataDirectory is the format of files published in the GMN data
	// directory: "#"-prefixed descriptive header lines and ";"-delimited rows.
	DataDirectory Dialect = "data_directory"
	// RESTAPI is the CSV format served by the GMN data store: one compact
	// header line of camel-case column names, repeated per page.
	RESTAPI Dialect = "rest_api"
)

// ParseDialect parses a dialect name. Returns an error for unknown names.
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "data_directory", "data-directory", "":
		return DataDirectory, nil
	case "rest_api", "rest-api", "rest":
		return RESTAPI, nil
	default:
		return "", fmt.Errorf("unknown dialect: %q (expected data_directory or rest_api)", s)
	}
}

const (
	dataDirectoryDelimiter = ";"
	dataDirectoryComment   = "#"
	// dataDirectoryTitle is the first token of the column title line.
	dataDirectoryTitle = "Unique trajectory"
)
