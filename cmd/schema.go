package cmd

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/gmn-data-platform/gmntraj"
	"github.com/gmn-data-platform/gmntraj/encoding"
	"github.com/gmn-data-platform/gmntraj/encoding/registry"
	"github.com/gmn-data-platform/gmntraj/internal/config"
	"github.com/gmn-data-platform/gmntraj/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [version]",
	Short: "Print the Avro schema of a summary format version",
	Long: `Synthesizes the Avro schema of a trajectory summary format version from the
bundled reference data, or reads it from the schema cache, and prints it.
Without a version the latest known version is used. With --publish the schema
is also registered with a Confluent-compatible schema registry.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: bindSchemaFlags,
	RunE:    runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	def := config.Default()
	f := schemaCmd.Flags()
	f.String("cache-dir", "", "directory of cached Avro schema files")
	f.Bool("fingerprint", false, "print only the schema fingerprint")
	f.Bool("list", false, "list the known summary format versions")
	f.Bool("publish", false, "register the schema with the schema registry")
	f.String("registry-url", "", "schema registry base URL")
	f.String("registry-subject", def.Registry.Subject, "registry subject name, without the -value suffix")
	f.StringP("output", "o", "-", "output file (- for stdout)")
}

func bindSchemaFlags(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	mustBindPFlag("schema.cache_dir", f.Lookup("cache-dir"))
	mustBindPFlag("registry.url", f.Lookup("registry-url"))
	mustBindPFlag("registry.subject", f.Lookup("registry-subject"))
	return nil
}

func runSchema(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reg := schema.Default()
	if list, _ := cmd.Flags().GetBool("list"); list {
		for _, v := range reg.List() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d columns\t%s\n", v.ID, len(v.Columns), v.Hash[:12])
		}
		return nil
	}

	version := ""
	if len(args) == 1 {
		version = args[0]
	} else {
		latest, err := reg.Latest()
		if err != nil {
			return err
		}
		version = latest.ID
	}

	p := gmntraj.NewSchemaProvider(
		gmntraj.WithCacheDir(cfg.Schema.CacheDir),
		gmntraj.WithSynthesizer(encoding.NewSynthesizer(slog.Default(),
			encoding.WithNamespace(cfg.Schema.Namespace),
			encoding.WithRecordName(cfg.Schema.RecordName),
		)),
		gmntraj.WithProviderRegistry(reg),
		gmntraj.WithProviderLogger(slog.Default()),
	)
	a, err := p.Schema(version)
	if err != nil {
		return err
	}

	if publish, _ := cmd.Flags().GetBool("publish"); publish {
		if cfg.Registry.URL == "" {
			return fmt.Errorf("--publish requires --registry-url or registry.url")
		}
		ctx, _, done, err := commandContext(cmd, cfg)
		if err != nil {
			return err
		}
		defer done()
		c := registry.New(cfg.Registry.URL,
			registry.WithBasicAuth(cfg.Registry.Username, cfg.Registry.Password),
			registry.WithHTTPClient(&http.Client{Timeout: cfg.Source.RequestTimeout}),
			registry.WithLogger(slog.Default()),
		)
		id, err := p.Publish(ctx, c, registry.Subject(cfg.Registry.Subject), a.Version)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "registered %s as schema id %d\n", a.Version, id)
	}

	output, _ := cmd.Flags().GetString("output")
	w, closeFn, err := openOutput(cmd, output)
	if err != nil {
		return err
	}
	if fp, _ := cmd.Flags().GetBool("fingerprint"); fp {
		_, err = fmt.Fprintln(w, a.Fingerprint)
	} else {
		_, err = fmt.Fprintln(w, string(a.JSON))
	}
	if cerr := closeFn(); err == nil {
		err = cerr
	}
	return err
}
