package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "stepup",
	Short: "Step-up confirmation service for voice banking tool calls",
	Long: `stepup suspends sensitive tool calls (payments, transfers) until the user
confirms them out of band with a one-time code, a yes/no confirmation or a
biometric check, then resumes the suspended operation exactly once.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(elicitationCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
