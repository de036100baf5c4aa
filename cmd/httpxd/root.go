package httpxd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "httpxd",
	Short: "httpxd runs an HTTP/1.1 server from a YAML configuration file",
}

// Execute runs the root command; called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
