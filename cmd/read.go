package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gmn-data-platform/gmntraj"
	"github.com/gmn-data-platform/gmntraj/reader"
)

var readCmd = &cobra.Command{
	Use:   "read [file...]",
	Short: "Read trajectory summary files into a typed table",
	Long: `Reads one or more trajectory summary files, or stdin when no file is given,
and writes the normalized table. Several files are stitched together in the
order given; header lines repeated in each file are dropped.

Examples:
  gmntraj read traj_summary_20220304.txt
  gmntraj read --dialect rest_api --camel-case -f parquet -o out.parquet page1.csv page2.csv
  gmntraj read --filter 'iau_code == "PER"' --keep iau_code,vgeo_km_s daily.txt`,
	PreRunE: bindTableFlags,
	RunE:    runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
	f := readCmd.Flags()
	addTableFlags(f)
	f.Bool("array", false, "write the raw token matrix as CSV instead of a typed table")
}

func runRead(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, tp, done, err := commandContext(cmd, cfg)
	if err != nil {
		return err
	}
	defer done()

	input, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	if array, _ := cmd.Flags().GetBool("array"); array {
		dialect, err := reader.ParseDialect(cfg.Read.Dialect)
		if err != nil {
			return err
		}
		rows, err := gmntraj.ReadArray(input, dialect, readOptions(cfg, tp)...)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		w, closeFn, err := openOutput(cmd, output)
		if err != nil {
			return err
		}
		cw := csv.NewWriter(w)
		if err := cw.WriteAll(rows); err != nil {
			_ = closeFn()
			return fmt.Errorf("write array: %w", err)
		}
		return closeFn()
	}

	t, err := readTable(ctx, cfg, tp, input)
	if err != nil {
		return err
	}
	return emitTable(cmd, cfg, t)
}

// readInput maps the positional arguments to a normalizer input: stdin,
// a single path, or the contents of several files as a chunk sequence.
func readInput(cmd *cobra.Command, args []string) (any, error) {
	switch {
	case len(args) == 0 || (len(args) == 1 && args[0] == "-"):
		return cmd.InOrStdin(), nil
	case len(args) == 1:
		return reader.Path(args[0]), nil
	}
	chunks := make([]string, len(args))
	for i, name := range args {
		data, err := readFile(cmd, name)
		if err != nil {
			return nil, err
		}
		chunks[i] = data
	}
	return chunks, nil
}

func readFile(cmd *cobra.Command, name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}
