package rollout

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/archiveindex"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/balancer"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/log"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/rollouterr"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/transport"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"
)

// ChunkThreshold is the changed-file count above which HostDeployer switches
// from a single inline /deploy request to the chunked upload protocol.
const ChunkThreshold = 20

// ChunkSize is the number of files sent per /deploy/chunk request.
const ChunkSize = 10

// HostDeployer performs the single-host deployment sequence:
// drain (if the host is balancer-managed), upload (inline, chunked, or full
// archive depending on the preflight analysis), resolve via status poll if
// the write itself times out or reports a deploy already running, then
// restore the balancer state.
type HostDeployer struct {
	TransportCfg   transport.Config
	NewClient      func(baseURL string, cfg transport.Config) *transport.Client
	Balancer       *balancer.Client
	BalancerHosts  []balancer.Host
	Backend        string
	ArchivePath    string
	ChunkThreshold int
	ChunkSize      int
}

// NewHostDeployer builds a HostDeployer with default chunking thresholds and
// the real transport.Client constructor. Balancer/BalancerHosts/Backend are
// left zero; set them when the fleet is behind a load balancer.
func NewHostDeployer(archivePath string, cfg transport.Config) *HostDeployer {
	return &HostDeployer{
		TransportCfg:   cfg,
		NewClient:      transport.New,
		ArchivePath:    archivePath,
		ChunkThreshold: ChunkThreshold,
		ChunkSize:      ChunkSize,
	}
}

// DeployHost runs the full single-host sequence and never panics on a
// per-host failure; every outcome, including an aborted drain or a failed
// upload, is reported through the returned HostResult.
func (d *HostDeployer) DeployHost(ctx context.Context, host types.HostDescriptor, baseURL string, analysis types.HostAnalysis, opts types.RolloutOptions) types.HostResult {
	start := time.Now()
	logger := log.WithHost(host.Addr())
	result := types.HostResult{Host: host}

	if !analysis.Reachable {
		result.Outcome = types.HostUnreachable
		result.Err = analysis.Err
		result.ErrorKind = string(rollouterr.KindUnreachable)
		result.Elapsed = time.Since(start)
		return result
	}

	if opts.DryRun {
		logger.Info().Msg("dry run, skipping actual deployment")
		result.Outcome = types.HostSucceeded
		result.Elapsed = time.Since(start)
		return result
	}

	drained := false
	if host.ServerName != "" && d.Balancer != nil && len(d.BalancerHosts) > 0 {
		if pingResults := d.Balancer.PingAll(ctx, d.BalancerHosts); len(pingResults) > 0 {
			err := balancer.AggregateError(pingResults)
			logger.Error().Err(err).Msg("balancer connectivity check failed, aborting this host without deploying")
			result.Outcome = types.HostFailed
			result.ErrorKind = string(rollouterr.KindDrainFailed)
			result.Err = err
			result.Elapsed = time.Since(start)
			return result
		}

		if drainResults := d.Balancer.Drain(ctx, d.BalancerHosts, d.Backend, host.ServerName); len(drainResults) > 0 {
			err := balancer.AggregateError(drainResults)
			logger.Error().Err(err).Msg("drain failed, aborting this host without deploying")
			result.Outcome = types.HostFailed
			result.ErrorKind = string(rollouterr.KindDrainFailed)
			result.Err = err
			result.Elapsed = time.Since(start)
			return result
		}
		drained = true
		result.Drained = true
		logger.Info().Msg("drained from balancer")
	}

	client := d.NewClient(baseURL, d.TransportCfg)
	outcome, err := d.upload(ctx, client, analysis)
	if err == nil && (outcome.InProgress || outcome.TimedOut) {
		logger.Info().Bool("inProgress", outcome.InProgress).Bool("timedOut", outcome.TimedOut).
			Msg("deploy write did not resolve directly, polling status")
		status, pollErr := client.PollDeployStatus(ctx, start)
		if pollErr != nil {
			err = pollErr
		} else {
			outcome.Result = status.LastResult
		}
	}

	switch {
	case err != nil:
		result.Outcome = types.HostFailed
		result.ErrorKind = string(rollouterr.KindDeployFailed)
		result.Err = err
	case outcome.Result == nil || !outcome.Result.Success:
		result.Outcome = types.HostFailed
		result.ErrorKind = string(rollouterr.KindDeployFailed)
		msg := "deploy reported failure"
		if outcome.Result != nil && outcome.Result.Message != "" {
			msg = outcome.Result.Message
		}
		result.Err = fmt.Errorf("%s", msg)
	default:
		result.Outcome = types.HostSucceeded
	}

	if drained {
		if readyResults := d.Balancer.Ready(ctx, d.BalancerHosts, d.Backend, host.ServerName); len(readyResults) > 0 {
			err := balancer.AggregateError(readyResults)
			logger.Error().Err(err).Msg("failed to restore balancer state, host remains drained")
			result.Outcome = types.HostFailed
			result.ErrorKind = string(rollouterr.KindDrainFailed)
			result.Err = err
		}
	}

	result.Elapsed = time.Since(start)
	return result
}

func (d *HostDeployer) upload(ctx context.Context, client *transport.Client, analysis types.HostAnalysis) (transport.DeployOutcome, error) {
	if analysis.IsFullUpload {
		archiveBytes, err := os.ReadFile(d.ArchivePath)
		if err != nil {
			return transport.DeployOutcome{}, fmt.Errorf("read archive for full upload: %w", err)
		}
		return client.DeployUpload(ctx, archiveBytes, nil)
	}

	if len(analysis.Diff.Changed) <= d.ChunkThreshold {
		files, err := d.inlineFiles(analysis.Diff.Changed)
		if err != nil {
			return transport.DeployOutcome{}, err
		}
		return client.DeployInline(ctx, files, analysis.Diff.Deleted)
	}

	return d.chunkedUpload(ctx, client, analysis)
}

func (d *HostDeployer) inlineFiles(paths []string) ([]transport.InlineFile, error) {
	files := make([]transport.InlineFile, 0, len(paths))
	for _, p := range paths {
		data, err := archiveindex.ReadEntry(d.ArchivePath, p)
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", p, err)
		}
		files = append(files, transport.EncodeInline(p, data))
	}
	return files, nil
}

// chunkedUpload sends the changed set in fixed-size chunks through the
// /deploy/chunk session protocol, committing on the final chunk.
func (d *HostDeployer) chunkedUpload(ctx context.Context, client *transport.Client, analysis types.HostAnalysis) (transport.DeployOutcome, error) {
	paths := analysis.Diff.Changed
	chunkSize := d.ChunkSize
	if chunkSize <= 0 {
		chunkSize = ChunkSize
	}

	var sessionID string
	var last *transport.ChunkResponse
	for i := 0; i < len(paths); i += chunkSize {
		end := i + chunkSize
		if end > len(paths) {
			end = len(paths)
		}

		files, err := d.inlineFiles(paths[i:end])
		if err != nil {
			return transport.DeployOutcome{}, err
		}

		req := transport.ChunkRequest{
			SessionID:     sessionID,
			Files:         files,
			ExpectedFiles: len(paths),
			Commit:        end == len(paths),
		}
		if i == 0 {
			req.Deletions = analysis.Diff.Deleted
		}

		resp, err := client.DeployChunk(ctx, req)
		if err != nil {
			return transport.DeployOutcome{}, fmt.Errorf("chunk upload [%d:%d]: %w", i, end, err)
		}
		sessionID = resp.SessionID
		last = resp
	}

	if last == nil || last.Result == nil {
		return transport.DeployOutcome{}, fmt.Errorf("chunked upload committed with no result")
	}
	return transport.DeployOutcome{Result: last.Result}, nil
}
