package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gmn-data-platform/gmntraj/schema"
)

// Version is set at build time via ldflags:
//
//	go build -ldflags "-X github.com/gmn-data-platform/gmntraj/cmd.Version=v1.0.0"
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gmntraj version and the supported summary format versions",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "gmntraj "+Version)
		fmt.Fprintln(cmd.OutOrStdout(), "summary formats: "+strings.Join(schema.Default().IDs(), ", "))
	},
}
