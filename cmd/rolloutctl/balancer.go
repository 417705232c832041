package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/balancer"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/config"
)

var drainCmd = &cobra.Command{
	Use:   "drain <server-name>",
	Short: "Drain a backend server on every load balancer in a fleet manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetState(balancer.StateDrain),
}

var readyCmd = &cobra.Command{
	Use:   "ready <server-name>",
	Short: "Re-enable a backend server on every load balancer in a fleet manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetState(balancer.StateReady),
}

func init() {
	for _, c := range []*cobra.Command{drainCmd, readyCmd} {
		c.Flags().StringP("fleet", "f", "", "Fleet manifest YAML file (required)")
		_ = c.MarkFlagRequired("fleet")
	}
}

func runSetState(state balancer.State) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		fleetPath, _ := cmd.Flags().GetString("fleet")
		serverName := args[0]

		fleet, err := config.Load(fleetPath)
		if err != nil {
			return fmt.Errorf("load fleet manifest: %w", err)
		}
		if len(fleet.Spec.Balancers) == 0 {
			return fmt.Errorf("fleet manifest declares no load balancers")
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

		client := balancer.New(ssh.InsecureIgnoreHostKey())
		if results := client.SetStateAll(context.Background(), hosts, fleet.Spec.Backend, serverName, state); len(results) > 0 {
			return fmt.Errorf("set state %s: %w", state, balancer.AggregateError(results))
		}

		fmt.Printf("✓ %s set to %s on all %d balancer(s)\n", serverName, state, len(hosts))
		return nil
	}
}
