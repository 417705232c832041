// Package preflight runs the per-host probe-and-analyze phase that precedes
// a rollout: reachability, plugin version check, and remote-hash diff
// analysis, fanned out concurrently across the whole host list.
package preflight

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/archiveindex"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/log"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/transport"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"
)

// Pipeline runs the preflight probe for a fleet of hosts against one local
// archive.
type Pipeline struct {
	ArchivePath    string
	LocalIndex     types.Index
	TransportCfg   transport.Config
	NewClient      func(baseURL string, cfg transport.Config) *transport.Client
}

// NewPipeline builds a Pipeline with the real transport.Client constructor.
func NewPipeline(archivePath string, localIndex types.Index, cfg transport.Config) *Pipeline {
	return &Pipeline{
		ArchivePath:  archivePath,
		LocalIndex:   localIndex,
		TransportCfg: cfg,
		NewClient:    transport.New,
	}
}

// Result is the pipeline's aggregate output.
type Result struct {
	Reachable      []types.HostDescriptor
	HostsWithDiff  []types.HostDescriptor
	Analyses       map[string]types.HostAnalysis // keyed by HostDescriptor.Addr()
}

// Run fans out one goroutine per host and blocks until every host has
// completed its probe (or failed). A single host's failure never fails the
// pipeline as a whole; it is recorded in the per-host analysis.
func (p *Pipeline) Run(ctx context.Context, hosts []types.HostDescriptor, baseURLFn func(types.HostDescriptor) string, opts types.RolloutOptions) Result {
	result := Result{Analyses: make(map[string]types.HostAnalysis, len(hosts))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range hosts {
		h := h
		g.Go(func() error {
			analysis := p.probeHost(gctx, h, baseURLFn(h), opts)

			mu.Lock()
			result.Analyses[h.Addr()] = analysis
			if analysis.Reachable {
				result.Reachable = append(result.Reachable, h)
			}
			if analysis.Reachable && (analysis.ChangedCount > 0 || analysis.DeletedCount > 0) {
				result.HostsWithDiff = append(result.HostsWithDiff, h)
			}
			mu.Unlock()
			return nil // per-host failures never fail the group
		})
	}
	_ = g.Wait()

	return result
}

// probeHost runs the three in-order steps for one host: reachability, an
// advisory version check, then the hash-diff analysis.
func (p *Pipeline) probeHost(ctx context.Context, host types.HostDescriptor, baseURL string, opts types.RolloutOptions) types.HostAnalysis {
	logger := log.WithHost(host.Addr())
	client := p.NewClient(baseURL, p.TransportCfg)

	analysis := types.HostAnalysis{Host: host}

	health, err := client.Health(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("host unreachable, skipping remaining preflight steps")
		analysis.Err = err
		return analysis
	}
	analysis.Reachable = true
	analysis.AgentVersion = health.AgentVersion
	analysis.PluginVersion = health.PluginVersion
	analysis.AppServerRunning = health.Running

	if !opts.SkipVersionCheck {
		_, soft, err := client.FetchVersions(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("version check failed, proceeding to analysis (advisory only)")
		}
		analysis.VersionCheckSoft = soft
	}

	if err := p.analyze(ctx, client, &analysis, opts); err != nil {
		logger.Warn().Err(err).Msg("analysis failed")
		analysis.Err = err
	}
	return analysis
}

// analyze fetches the remote hash index, diffs it against local, and
// decides full-upload vs incremental.
func (p *Pipeline) analyze(ctx context.Context, client *transport.Client, analysis *types.HostAnalysis, opts types.RolloutOptions) error {
	remoteHashes, status, err := client.FetchHashes(ctx)
	fullUpload := opts.Force
	if err != nil {
		// A failed hash fetch is never fatal, it forces a full upload for
		// this host instead.
		fullUpload = true
		remoteHashes = map[string]string{}
	}
	if status == "no_war" || len(remoteHashes) == 0 {
		fullUpload = true
	}

	remoteIndex := types.Index(remoteHashes)

	if fullUpload {
		var changed []string
		for path := range p.LocalIndex {
			changed = append(changed, path)
		}
		analysis.Diff = types.Diff{Changed: changed}
		analysis.IsFullUpload = true
	} else {
		analysis.Diff = archiveindex.Diff(p.LocalIndex, remoteIndex)
	}

	analysis.ChangedCount = len(analysis.Diff.Changed)
	analysis.DeletedCount = len(analysis.Diff.Deleted)
	analysis.BytesToUpload, err = p.estimateBytes(analysis.Diff.Changed)
	if err != nil {
		return fmt.Errorf("estimate upload size: %w", err)
	}
	return nil
}

func (p *Pipeline) estimateBytes(changed []string) (int64, error) {
	var total int64
	for _, path := range changed {
		data, err := archiveindex.ReadEntry(p.ArchivePath, path)
		if err != nil {
			return 0, err
		}
		total += int64(len(data))
	}
	return total, nil
}
