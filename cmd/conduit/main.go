package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of conduit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "conduit version %s\n", version)
		},
	}

	rootCmd = &cobra.Command{
		Use:   "conduit",
		Short: "WebSocket message server",
		Long:  `conduit accepts WebSocket connections and routes their JSON messages through a middleware pipeline.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", "", "path to a YAML configuration file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
