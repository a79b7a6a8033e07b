package cli

import "github.com/spf13/cobra"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the observer on its scan interval with health endpoints",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
