package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"boulder"
)

var scanLower, scanUpper string

func init() {
	scanCmd.Flags().StringVar(&scanLower, "from", "", "inclusive lower bound (empty means unbounded)")
	scanCmd.Flags().StringVar(&scanUpper, "to", "", "exclusive upper bound (empty means unbounded)")
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "print every key-value pair in [--from, --to)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		db, err := boulder.Open(dbDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer db.Close()

		var lower, upper []byte
		if scanLower != "" {
			lower = []byte(scanLower)
		}
		if scanUpper != "" {
			upper = []byte(scanUpper)
		}

		it, err := db.Scan(lower, upper)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer it.Close()

		for it.Valid() {
			fmt.Printf("%s\t%s\n", it.Key(), it.Value())
			it.Next()
		}
	},
}
