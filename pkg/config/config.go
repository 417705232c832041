// Package config loads the YAML fleet manifest that describes which hosts to
// deploy to, how to reach any load balancers in front of them, and the
// rollout/transport tunables, using an apiVersion/kind/metadata/spec
// envelope like a Kubernetes resource file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/transport"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"
)

// HostSpec is one application-server target in the fleet manifest.
type HostSpec struct {
	Address    string `yaml:"address"`
	AgentPort  int    `yaml:"agentPort"`
	ServerName string `yaml:"serverName,omitempty"`
}

// BalancerSpec is one load balancer reachable over SSH to drain/ready a
// backend server during rollout.
type BalancerSpec struct {
	Address        string `yaml:"address"`
	User           string `yaml:"user"`
	SocketPath     string `yaml:"socketPath"`
	PrivateKeyPath string `yaml:"privateKeyPath"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

// TransportSpec overrides transport.DefaultConfig; zero fields fall back to
// the default.
type TransportSpec struct {
	MaxRetries                int `yaml:"maxRetries,omitempty"`
	RetryBaseDelaySeconds     int `yaml:"retryBaseDelaySeconds,omitempty"`
	AgentTimeoutSeconds       int `yaml:"agentTimeoutSeconds,omitempty"`
	DeploymentTimeoutSeconds  int `yaml:"deploymentTimeoutSeconds,omitempty"`
	StatusPollIntervalSeconds int `yaml:"statusPollIntervalSeconds,omitempty"`
	StatusPollMaxWaitSeconds  int `yaml:"statusPollMaxWaitSeconds,omitempty"`
}

// FleetSpec is the body of a Fleet manifest.
type FleetSpec struct {
	Strategy  string         `yaml:"strategy"`
	Backend   string         `yaml:"backend,omitempty"`
	Hosts     []HostSpec     `yaml:"hosts"`
	Balancers []BalancerSpec `yaml:"balancers,omitempty"`
	Transport TransportSpec  `yaml:"transport,omitempty"`
}

// Metadata names the fleet.
type Metadata struct {
	Name string `yaml:"name"`
}

// Fleet is the top-level YAML document passed to `rolloutctl deploy -f`
// (and to `rolloutctl drain -f` / `rolloutctl ready -f`).
type Fleet struct {
	APIVersion string    `yaml:"apiVersion"`
	Kind       string    `yaml:"kind"`
	Metadata   Metadata  `yaml:"metadata"`
	Spec       FleetSpec `yaml:"spec"`
}

// Load reads and validates a fleet manifest from path.
func Load(path string) (*Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fleet manifest: %w", err)
	}

	var f Fleet
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fleet manifest: %w", err)
	}

	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fleet) validate() error {
	if f.Kind != "" && f.Kind != "Fleet" {
		return fmt.Errorf("unsupported manifest kind: %s", f.Kind)
	}
	if len(f.Spec.Hosts) == 0 {
		return fmt.Errorf("fleet manifest must declare at least one host")
	}
	if f.Spec.Strategy == "" {
		return fmt.Errorf("fleet manifest must declare a rollout strategy")
	}
	for i, h := range f.Spec.Hosts {
		if h.Address == "" {
			return fmt.Errorf("hosts[%d]: address is required", i)
		}
	}
	return nil
}

// HostDescriptors converts the manifest's host list to the shared type used
// throughout preflight and rollout.
func (f *Fleet) HostDescriptors() []types.HostDescriptor {
	hosts := make([]types.HostDescriptor, 0, len(f.Spec.Hosts))
	for _, h := range f.Spec.Hosts {
		hosts = append(hosts, types.HostDescriptor{
			Address:    h.Address,
			AgentPort:  h.AgentPort,
			ServerName: h.ServerName,
		})
	}
	return hosts
}

// TransportConfig merges the manifest's transport overrides onto
// transport.DefaultConfig.
func (f *Fleet) TransportConfig() transport.Config {
	cfg := transport.DefaultConfig()
	t := f.Spec.Transport

	if t.MaxRetries > 0 {
		cfg.MaxRetries = t.MaxRetries
	}
	if t.RetryBaseDelaySeconds > 0 {
		cfg.RetryBaseDelay = time.Duration(t.RetryBaseDelaySeconds) * time.Second
	}
	if t.AgentTimeoutSeconds > 0 {
		cfg.AgentTimeout = time.Duration(t.AgentTimeoutSeconds) * time.Second
	}
	if t.DeploymentTimeoutSeconds > 0 {
		cfg.DeploymentTimeout = time.Duration(t.DeploymentTimeoutSeconds) * time.Second
	}
	if t.StatusPollIntervalSeconds > 0 {
		cfg.StatusPollInterval = time.Duration(t.StatusPollIntervalSeconds) * time.Second
	}
	if t.StatusPollMaxWaitSeconds > 0 {
		cfg.StatusPollMaxWait = time.Duration(t.StatusPollMaxWaitSeconds) * time.Second
	}
	return cfg
}
