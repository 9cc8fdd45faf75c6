// Command boulderctl is a small operator CLI for a boulder database
// directory: put/get/delete a single key, scan a range, or print per-level
// file counts. It opens the directory for the duration of one subcommand
// and closes it on exit, so it cannot run alongside a live process holding
// the same directory's lock.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var dbDir string

var rootCmd = &cobra.Command{
	Use:   "boulderctl",
	Short: "inspect and edit a boulder database directory",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dbDir, "dir", "", "database directory (required)")
	if err := rootCmd.MarkPersistentFlagRequired("dir"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
