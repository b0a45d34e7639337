package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "lockd",
	Short: "advisory lock service",
	Long: fmt.Sprintf(`lockd (v%s)

An HTTP service granting named, time-bounded advisory locks so that
independent clients can coordinate access to shared resources. Locks are
backed by an in-memory store or a shared Redis instance.`, version),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of lockd",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lockd v%s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
