// Command deploy-agent runs the per-host HTTP surface that rolloutctl talks
// to: archive hash reporting, the three upload modes, status polling, and a
// handful of operational endpoints for one Payara instance.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/agent"
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
	Use:   "deploy-agent",
	Short: "deploy-agent serves archive rollouts to one application server",
	Long: `deploy-agent runs on each Payara host and answers rolloutctl's
preflight and deploy requests: reporting the installed archive's content
hashes, accepting incremental or full archive pushes, and tracking the
status of the most recent deployment.`,
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"deploy-agent version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.Flags().String("listen-addr", ":9090", "Address to listen on")
	rootCmd.Flags().String("archive-path", "", "Path to the installed archive file Payara serves (required)")
	rootCmd.Flags().String("application-id", "", "Identifier reported by GET /applications")
	rootCmd.Flags().String("app-server-addr", "", "host:port checked to determine app-server health")
	rootCmd.Flags().String("app-health-url", "", "HTTP URL polled to determine app-server health, takes precedence over app-server-addr")
	rootCmd.Flags().String("app-health-cmd", "", "Shell command (e.g. asadmin list-applications) treated as healthy on exit 0, takes precedence over app-server-addr")
	rootCmd.Flags().String("restart-cmd", "", "Shell command run on POST /restart, empty disables it")
	rootCmd.Flags().String("redeploy-cmd", "", "Shell command run after a new archive is swapped in, empty disables it")
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "Output logs in JSON format")
	_ = rootCmd.MarkFlagRequired("archive-path")
}

func runServe(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	listenAddr, _ := cmd.Flags().GetString("listen-addr")
	archivePath, _ := cmd.Flags().GetString("archive-path")
	applicationID, _ := cmd.Flags().GetString("application-id")
	appServerAddr, _ := cmd.Flags().GetString("app-server-addr")
	appHealthURL, _ := cmd.Flags().GetString("app-health-url")
	appHealthCmd, _ := cmd.Flags().GetString("app-health-cmd")
	restartCmd, _ := cmd.Flags().GetString("restart-cmd")
	redeployCmd, _ := cmd.Flags().GetString("redeploy-cmd")

	var restartArgs, redeployArgs, healthCmdArgs []string
	if restartCmd != "" {
		restartArgs = strings.Fields(restartCmd)
	}
	if redeployCmd != "" {
		redeployArgs = strings.Fields(redeployCmd)
	}
	if appHealthCmd != "" {
		healthCmdArgs = strings.Fields(appHealthCmd)
	}

	a := agent.New(agent.Config{
		ArchivePath:   archivePath,
		ApplicationID: applicationID,
		AgentVersion:  Version,
		PluginVersion: Version,
		AppServerAddr: appServerAddr,
		AppHealthURL:  appHealthURL,
		AppHealthCmd:  healthCmdArgs,
		RestartCmd:    restartArgs,
		RedeployCmd:   redeployArgs,
	})

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Logger.Info().Str("addr", listenAddr).Str("archivePath", archivePath).Msg("deploy-agent listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Logger.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
