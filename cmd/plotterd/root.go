package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "plotterd",
	Short: "Pen plotter job lifecycle daemon",
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateCmd)
}
