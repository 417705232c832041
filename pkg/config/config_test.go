package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
apiVersion: rollout/v1
kind: Fleet
metadata:
  name: payara-prod
spec:
  strategy: "1+R"
  backend: app-backend
  hosts:
    - address: app1.internal
      agentPort: 9090
      serverName: app1
    - address: app2.internal
      agentPort: 9090
      serverName: app2
  balancers:
    - address: lb1.internal
      user: deploy
      socketPath: /var/run/haproxy.sock
      privateKeyPath: /etc/rollout/id_ed25519
  transport:
    maxRetries: 5
    deploymentTimeoutSeconds: 120
`

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesFleetManifest(t *testing.T) {
	path := writeManifest(t, sampleManifest)

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "payara-prod", f.Metadata.Name)
	assert.Equal(t, "1+R", f.Spec.Strategy)
	assert.Len(t, f.Spec.Hosts, 2)
	assert.Len(t, f.Spec.Balancers, 1)

	hosts := f.HostDescriptors()
	assert.Equal(t, "app1.internal", hosts[0].Address)
	assert.Equal(t, "app1", hosts[0].ServerName)

	cfg := f.TransportConfig()
	assert.Equal(t, 5, cfg.MaxRetries)
}

func TestLoadRejectsMissingHosts(t *testing.T) {
	path := writeManifest(t, "apiVersion: rollout/v1\nkind: Fleet\nspec:\n  strategy: sequential\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsWrongKind(t *testing.T) {
	path := writeManifest(t, "kind: Service\nspec:\n  strategy: sequential\n  hosts:\n    - address: a\n")
	_, err := Load(path)
	require.Error(t, err)
}
