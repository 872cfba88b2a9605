package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tracker-api",
	Short: "Tracker API - project roles and permissions",
	Long:  `Authorization service for the tracker: permission catalog, ranked project roles, member management and role simulation.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
