package httpxd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version and gitHash are set via -ldflags at build time.
var (
	version = "dev"
	gitHash = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the httpxd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("httpxd %s (%s)\n", version, gitHash)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
