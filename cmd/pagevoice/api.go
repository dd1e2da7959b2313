package main

import (
	"github.com/spf13/cobra"

	"github.com/pagevoice/pagevoice/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running PageVoice server via HTTP.

These commands require a running server (pagevoice serve).
Use --server to specify a custom server URL.

Examples:
  pagevoice api health                      # Check server health
  pagevoice api jobs upload book.pdf        # Upload a PDF
  pagevoice api jobs start <id> 1 20        # Narrate pages 1-20
  pagevoice api jobs download <id>          # Download the merged audio`,
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Job management commands",
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Review administration commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Account-level commands at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ActivityEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.TaskStatusEndpoint{}).Command(getServerURL))

	// Jobs as subcommand group
	jobsCmd.AddCommand((&endpoints.UploadEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.JobGetEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.StartEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.ReviewRequestEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.SyncEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.AudioDownloadEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.AudioStreamEndpoint{}).Command(getServerURL))

	// Admin review surface as subcommand group
	adminCmd.AddCommand((&endpoints.ReviewListEndpoint{}).Command(getServerURL))
	adminCmd.AddCommand((&endpoints.ReviewApproveEndpoint{}).Command(getServerURL))
	adminCmd.AddCommand((&endpoints.ReviewDeclineEndpoint{}).Command(getServerURL))
	adminCmd.AddCommand((&endpoints.ReviewDoneEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(jobsCmd)
	apiCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(apiCmd)
}
