package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "solver",
	Short: "Captcha Agent - Automated click-coordinate captcha solving",
	Long: `Captcha Agent is a browser automation tool for solving click-the-digit
image captchas. It uses Chrome DevTools Protocol to capture the challenge,
delegates coordinate solving to a remote service, verifies the answer with
vision OCR, and clicks the returned positions in the live page.`,
	Version: version,
}

func init() {
	// Add subcommands here
	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(historyCmd)
}
