// Command rolloutctl drives a fleet rollout from an operator's workstation:
// load a fleet manifest, preflight every host against a local archive, parse
// the rollout strategy, then run the staged deployment and print a summary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/log"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rolloutctl",
	Short: "rolloutctl drives staged archive rollouts across an application server fleet",
	Long: `rolloutctl deploys a Java application archive to a fleet of Payara
instances with minimal downtime and minimal bytes transferred: it diffs the
archive against what each host already has installed and pushes only the
changed and deleted entries, draining each host's load balancer backend
around the deploy.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"rolloutctl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(drainCmd)
	rootCmd.AddCommand(readyCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
