package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/archiveindex"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/balancer"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/config"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/preflight"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/rollout"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/strategy"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy an archive to a fleet",
	Long: `Deploy reads a fleet manifest and an archive, preflights every host in
the fleet to find out what each one actually needs, then rolls the archive
out in the stages the manifest's strategy describes.

Examples:
  # Roll out using the strategy in the manifest's spec.strategy
  rolloutctl deploy -f fleet.yaml --archive app.war

  # Force a full upload to every host, skipping the hash diff
  rolloutctl deploy -f fleet.yaml --archive app.war --force`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringP("fleet", "f", "", "Fleet manifest YAML file (required)")
	deployCmd.Flags().String("archive", "", "Path to the archive to deploy (required)")
	deployCmd.Flags().Bool("force", false, "Force a full upload to every host, bypassing the hash diff")
	deployCmd.Flags().Bool("skip-version-check", false, "Skip the advisory plugin version check during preflight")
	deployCmd.Flags().Bool("dry-run", false, "Run preflight and print the plan without deploying")
	_ = deployCmd.MarkFlagRequired("fleet")
	_ = deployCmd.MarkFlagRequired("archive")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	fleetPath, _ := cmd.Flags().GetString("fleet")
	archivePath, _ := cmd.Flags().GetString("archive")
	force, _ := cmd.Flags().GetBool("force")
	skipVersionCheck, _ := cmd.Flags().GetBool("skip-version-check")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	fleet, err := config.Load(fleetPath)
	if err != nil {
		return fmt.Errorf("load fleet manifest: %w", err)
	}

	localIndex, err := archiveindex.Build(archivePath)
	if err != nil {
		return fmt.Errorf("index archive: %w", err)
	}

	rolloutStrategy, err := strategy.Parse(fleet.Spec.Strategy)
	if err != nil {
		return fmt.Errorf("parse strategy: %w", err)
	}

	hosts := fleet.HostDescriptors()
	transportCfg := fleet.TransportConfig()
	opts := types.RolloutOptions{Force: force, SkipVersionCheck: skipVersionCheck, DryRun: dryRun}

	fmt.Printf("Fleet: %s\n", fleet.Metadata.Name)
	fmt.Printf("Strategy: %s\n", rolloutStrategy.DisplayName())
	fmt.Printf("Hosts: %d\n\n", len(hosts))

	ctx := context.Background()

	fmt.Println("Running preflight...")
	pipeline := preflight.NewPipeline(archivePath, localIndex, transportCfg)
	preflightResult := pipeline.Run(ctx, hosts, baseURLFn, opts)

	for _, h := range hosts {
		a := preflightResult.Analyses[h.Addr()]
		if !a.Reachable {
			fmt.Printf("  %s: unreachable (%v)\n", h.Addr(), a.Err)
			continue
		}
		mode := "incremental"
		if a.IsFullUpload {
			mode = "full upload"
		}
		fmt.Printf("  %s: %s, %d changed, %d deleted, ~%d bytes\n",
			h.Addr(), mode, a.ChangedCount, a.DeletedCount, a.BytesToUpload)
	}

	if dryRun {
		fmt.Println("\nDry run: no changes applied.")
		return nil
	}

	fmt.Println("\nDeploying...")
	deployer := rollout.NewHostDeployer(archivePath, transportCfg)
	if err := wireBalancer(deployer, fleet); err != nil {
		return err
	}
	deployer.Backend = fleet.Spec.Backend

	coordinator := rollout.Coordinator{Deployer: deployer, BaseURLFn: baseURLFn}
	summary := coordinator.Run(ctx, hosts, rolloutStrategy, preflightResult.Analyses, opts)

	for _, h := range hosts {
		r, ok := summary.Results[h.Addr()]
		if !ok {
			continue
		}
		switch r.Outcome {
		case types.HostSucceeded:
			fmt.Printf("  ✓ %s succeeded (%s)\n", h.Addr(), r.Elapsed)
		case types.HostSkipped:
			fmt.Printf("  - %s skipped\n", h.Addr())
		case types.HostUnreachable:
			fmt.Printf("  ✗ %s unreachable: %v\n", h.Addr(), r.Err)
		default:
			fmt.Printf("  ✗ %s failed: %v\n", h.Addr(), r.Err)
		}
	}

	fmt.Printf("\n%d succeeded, %d failed, %d skipped\n", summary.Successful, summary.Failed, summary.Skipped)
	if summary.Aborted {
		fmt.Printf("Rollout aborted after batch %d\n", summary.FailedBatch)
		return fmt.Errorf("rollout aborted: batch %d failed", summary.FailedBatch)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("rollout completed with %d host failures", summary.Failed)
	}
	return nil
}

func baseURLFn(h types.HostDescriptor) string {
	return fmt.Sprintf("http://%s/plugins/payara", h.Addr())
}

// wireBalancer attaches a balancer client and host list to deployer when the
// fleet manifest declares any load balancers.
func wireBalancer(deployer *rollout.HostDeployer, fleet *config.Fleet) error {
	if len(fleet.Spec.Balancers) == 0 {
		return nil
	}

	hosts := make([]balancer.Host, 0, len(fleet.Spec.Balancers))
	for _, b := range fleet.Spec.Balancers {
		signer, err := loadSigner(b.PrivateKeyPath)
		if err != nil {
			return fmt.Errorf("load balancer key for %s: %w", b.Address, err)
		}
		hosts = append(hosts, balancer.Host{
			Address:    b.Address,
			User:       b.User,
			SocketPath: b.SocketPath,
			Signer:     signer,
		})
	}

	// Balancer hosts are on an operator-controlled private network with no
	// existing known_hosts entry to verify against.
	deployer.Balancer = balancer.New(ssh.InsecureIgnoreHostKey())
	deployer.BalancerHosts = hosts
	return nil
}

func loadSigner(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(data)
}
