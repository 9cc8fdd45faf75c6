package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"boulder"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "print per-level file counts and sizes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		db, err := boulder.Open(dbDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer db.Close()

		for _, s := range db.Stats() {
			fmt.Printf("L%d\tfiles=%d\tbytes=%d\n", s.Level, s.NumFiles, s.SizeBytes)
		}
	},
}
