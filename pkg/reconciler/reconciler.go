package reconciler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/archiveindex"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/log"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/metrics"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/rollouterr"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/status"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"
)

// Reconciler owns the installed archive file on one agent host: applying
// incremental changes and replacing the whole archive wholesale, both
// single-flighted against a Tracker so two overlapping deploy requests can
// never interleave their writes. mu.TryLock gives the agent's
// HTTP handlers an immediate, non-blocking way to detect "deploy already
// running" and answer with 409 instead of queuing behind it.
type Reconciler struct {
	mu            sync.Mutex
	ArchivePath   string // the single installed archive file Payara serves out of
	ApplicationID string
	Redeployer    Redeployer
	Tracker       *status.Tracker
	logger        zerolog.Logger
}

// New builds a Reconciler whose installed archive lives at archivePath.
// applicationID, if set, is reported in DeployResult.Applications; if empty
// it is derived from archivePath's base name. redeployer defaults to
// NoopRedeployer when nil.
func New(archivePath, applicationID string, redeployer Redeployer, tracker *status.Tracker) *Reconciler {
	if redeployer == nil {
		redeployer = NoopRedeployer{}
	}
	return &Reconciler{
		ArchivePath:   archivePath,
		ApplicationID: applicationID,
		Redeployer:    redeployer,
		Tracker:       tracker,
		logger:        log.WithComponent("reconciler"),
	}
}

// Apply materializes the currently installed archive to a scratch
// directory, applies changed/deleted entries there, repackages the scratch
// directory into a new archive at ArchivePath, and asks the redeployer
// collaborator to pick it up.
func (r *Reconciler) Apply(ctx context.Context, deploymentID string, changed []types.Entry, deleted []string) (types.DeployResult, error) {
	if !r.begin(deploymentID) {
		return types.DeployResult{}, inProgressErr()
	}
	defer r.mu.Unlock()

	timer := metrics.NewTimer()
	result, err := r.apply(ctx, changed, deleted)
	r.finish(timer, result, err)
	return result, err
}

// FullReplace writes an entire archive body to ArchivePath and asks the
// redeployer collaborator to pick it up.
func (r *Reconciler) FullReplace(ctx context.Context, deploymentID string, archive []byte) (types.DeployResult, error) {
	if !r.begin(deploymentID) {
		return types.DeployResult{}, inProgressErr()
	}
	defer r.mu.Unlock()

	timer := metrics.NewTimer()
	result, err := r.fullReplace(ctx, archive)
	r.finish(timer, result, err)
	return result, err
}

// begin acquires the single-flight lock and starts the status tracker for
// deploymentID. Once begin returns true, callers must call finish to complete
// the tracker record and then r.mu.Unlock() to release the lock.
func (r *Reconciler) begin(deploymentID string) bool {
	if !r.mu.TryLock() {
		return false
	}
	if !r.Tracker.Start(deploymentID) {
		r.mu.Unlock()
		return false
	}
	return true
}

func (r *Reconciler) finish(timer *metrics.Timer, result types.DeployResult, err error) {
	r.Tracker.Complete(result)
	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
	}
	timer.ObserveDurationVec(metrics.HostDeploymentDuration, outcome)
	metrics.HostOutcomesTotal.WithLabelValues(outcome).Inc()
	if err == nil {
		metrics.FilesChangedTotal.Add(float64(result.FilesChanged))
		metrics.FilesDeletedTotal.Add(float64(result.FilesDeleted))
	}
}

func inProgressErr() error {
	return rollouterr.New(rollouterr.KindDeployInProgress, "", "a deployment is already in progress on this host", nil)
}

// apply stages the installed archive plus the incoming diff into a
// disposable scratch directory, repackages it, and swaps it into place.
// Cleanup of the scratch directory is guaranteed on every exit path.
func (r *Reconciler) apply(ctx context.Context, changed []types.Entry, deleted []string) (types.DeployResult, error) {
	r.Tracker.SetStep("starting")
	scratchDir, err := os.MkdirTemp(filepath.Dir(r.ArchivePath), ".scratch-")
	if err != nil {
		return types.DeployResult{Success: false, Message: err.Error()}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	r.Tracker.SetStep("extracting")
	if _, statErr := os.Stat(r.ArchivePath); statErr == nil {
		existing, err := archiveindex.Entries(r.ArchivePath)
		if err != nil {
			return types.DeployResult{Success: false, Message: err.Error()}, fmt.Errorf("materialize installed archive: %w", err)
		}
		for _, e := range existing {
			if err := writeEntryTo(scratchDir, e); err != nil {
				return types.DeployResult{Success: false, Message: err.Error()}, fmt.Errorf("stage existing entry %s: %w", e.Path, err)
			}
		}
	} else if !os.IsNotExist(statErr) {
		return types.DeployResult{Success: false, Message: statErr.Error()}, fmt.Errorf("stat installed archive: %w", statErr)
	}

	r.Tracker.SetStep("writing")
	for _, p := range deleted {
		if err := removeEntryFrom(scratchDir, p); err != nil {
			r.logger.Error().Err(err).Str("path", p).Msg("failed to remove entry")
			return types.DeployResult{Success: false, Message: err.Error()}, fmt.Errorf("remove %s: %w", p, err)
		}
	}
	for _, e := range changed {
		if err := writeEntryTo(scratchDir, e); err != nil {
			r.logger.Error().Err(err).Str("path", e.Path).Msg("failed to write entry")
			return types.DeployResult{Success: false, Message: err.Error()}, fmt.Errorf("write %s: %w", e.Path, err)
		}
	}

	r.Tracker.SetStep("repackaging")
	if err := archiveindex.PackDir(scratchDir, r.ArchivePath); err != nil {
		return types.DeployResult{Success: false, Message: err.Error()}, fmt.Errorf("repackage archive: %w", err)
	}

	r.Tracker.SetStep("redeploying")
	if err := r.Redeployer.Redeploy(ctx, r.ArchivePath); err != nil {
		return types.DeployResult{Success: false, Message: err.Error()}, fmt.Errorf("redeploy: %w", err)
	}

	r.logger.Info().Int("changed", len(changed)).Int("deleted", len(deleted)).Msg("applied incremental deployment")
	return types.DeployResult{
		Success:      true,
		FilesChanged: len(changed),
		FilesDeleted: len(deleted),
		Applications: r.applications(),
	}, nil
}

func (r *Reconciler) fullReplace(ctx context.Context, archive []byte) (types.DeployResult, error) {
	r.Tracker.SetStep("extracting")
	entries, err := archiveindex.EntriesFromReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return types.DeployResult{Success: false, Message: err.Error()}, fmt.Errorf("read uploaded archive: %w", err)
	}

	r.Tracker.SetStep("writing")
	if err := archiveindex.WriteArchiveAtomic(archive, r.ArchivePath); err != nil {
		return types.DeployResult{Success: false, Message: err.Error()}, fmt.Errorf("write archive: %w", err)
	}

	r.Tracker.SetStep("redeploying")
	if err := r.Redeployer.Redeploy(ctx, r.ArchivePath); err != nil {
		return types.DeployResult{Success: false, Message: err.Error()}, fmt.Errorf("redeploy: %w", err)
	}

	r.logger.Info().Int("files", len(entries)).Msg("installed full archive")
	return types.DeployResult{
		Success:      true,
		FilesChanged: len(entries),
		Applications: r.applications(),
	}, nil
}

func (r *Reconciler) applications() []string {
	if r.ApplicationID != "" {
		return []string{r.ApplicationID}
	}
	base := filepath.Base(r.ArchivePath)
	return []string{strings.TrimSuffix(base, filepath.Ext(base))}
}

func writeEntryTo(dir string, e types.Entry) error {
	dest, err := resolveUnder(dir, e.Path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, e.Data, 0o644)
}

func removeEntryFrom(dir, path string) error {
	dest, err := resolveUnder(dir, path)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// resolveUnder maps an archive-relative path onto dir, refusing any path
// that would escape it (archives are untrusted input).
func resolveUnder(dir, entryPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(entryPath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entry path escapes scratch dir: %s", entryPath)
	}
	return filepath.Join(dir, clean), nil
}
