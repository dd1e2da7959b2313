package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pagevoice/pagevoice/internal/api"
	"github.com/pagevoice/pagevoice/internal/config"
	"github.com/pagevoice/pagevoice/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "pagevoice",
	Short: "PDF narration service: turn documents into spoken audio",
	Long: `PageVoice converts uploaded PDF documents into narrated audio.

Each page is extracted, synthesized through a TTS engine, and stored as a
WAV segment; finished jobs can be streamed or downloaded as one merged
recording. Processing is paid for with per-account credits.

Run "pagevoice serve" for the API server, "pagevoice worker" for a page
worker, and "pagevoice api" for commands that call a running server.`,
	Version: version.GitRelease,
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write a default config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.pagevoice/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "pagevoice home directory (default: ~/.pagevoice)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initConfigCmd)
}
