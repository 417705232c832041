package reconciler

import (
	"context"
	"fmt"
	"os/exec"
)

// Redeployer asks the application-server collaborator to pick up a
// newly repackaged or replaced archive. The JVM's own lifecycle (start,
// stop, restart) is out of scope for this package; Redeployer is the single
// seam through which that external process is notified.
type Redeployer interface {
	Redeploy(ctx context.Context, archivePath string) error
}

// NoopRedeployer is used when no redeploy command is configured. It leaves
// picking up the new archive to whatever external mechanism (autodeploy
// directory watch, operator action) the Payara instance is configured with.
type NoopRedeployer struct{}

// Redeploy does nothing and always succeeds.
func (NoopRedeployer) Redeploy(context.Context, string) error { return nil }

// ExecRedeployer runs a configured command with archivePath appended as its
// final argument, e.g. an asadmin deploy invocation.
type ExecRedeployer struct {
	Cmd []string
}

// Redeploy runs Cmd with archivePath appended, returning the combined
// output wrapped into the error on failure. A nil/empty Cmd is a no-op.
func (e ExecRedeployer) Redeploy(ctx context.Context, archivePath string) error {
	if len(e.Cmd) == 0 {
		return nil
	}
	args := append(append([]string{}, e.Cmd[1:]...), archivePath)
	cmd := exec.CommandContext(ctx, e.Cmd[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s", err, out)
	}
	return nil
}
