package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the igniteclient version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("igniteclient " + version)
	},
}
