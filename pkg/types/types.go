// Package types holds the data model shared across the archive rollout
// coordinator: archive entries, diffs, host descriptors, deployment
// strategies, and the results that flow between preflight and rollout.
package types

import "time"

// Entry is a single non-directory member of an archive, addressed by its
// slash-separated path within the archive.
type Entry struct {
	Path   string
	Digest string // lower-hex SHA-256 over the raw payload
	Data   []byte
}

// Index maps an archive entry path to its content digest. It represents
// "no archive installed" when empty.
type Index map[string]string

// Diff is the pair of disjoint path sets produced by comparing two indexes.
type Diff struct {
	Changed []string // paths present locally with a different (or absent) remote digest
	Deleted []string // paths present remotely but absent locally
}

// HostDescriptor identifies one application-server target.
type HostDescriptor struct {
	Address    string
	AgentPort  int
	ServerName string // balancer-visible backend server name, empty if unmanaged by a balancer
}

// Addr returns "address:port" for this host.
func (h HostDescriptor) Addr() string {
	if h.AgentPort == 0 {
		return h.Address
	}
	return h.Address + ":" + itoa(h.AgentPort)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// BatchCount is a batch size: either a fixed positive count or the "rest"
// sentinel meaning "all remaining hosts".
type BatchCount struct {
	Rest  bool
	Count int
}

// Batch is one stage of a deployment strategy.
type Batch struct {
	Size BatchCount
}

// Strategy is a parsed deployment strategy: an ordered list of batches plus
// whether failures gate subsequent batches.
type Strategy struct {
	Expression string
	Batches    []Batch
	IsCanary   bool
}

// DisplayName returns the original expression, prefixed with "canary (...)"
// for canary strategies.
func (s Strategy) DisplayName() string {
	if s.IsCanary {
		return "canary (" + s.Expression + ")"
	}
	return s.Expression
}

// HostAnalysis is the per-host preflight result: reachability, versions, and
// the diff against the host's currently installed archive.
type HostAnalysis struct {
	Host             HostDescriptor
	Reachable        bool
	AgentVersion     string
	PluginVersion    string
	AppServerRunning bool
	Diff             Diff
	ChangedCount     int
	DeletedCount     int
	BytesToUpload    int64
	IsFullUpload     bool
	VersionCheckSoft bool // true if the version endpoint was missing (old agent)
	Err              error
}

// RolloutOptions bundles the flags that steer a run of the preflight
// pipeline and the rollout coordinator.
type RolloutOptions struct {
	Force            bool
	SkipVersionCheck bool
	ConcurrencyHint  int
	DryRun           bool
}

// HostOutcome is the terminal state of a single host's deployment.
type HostOutcome string

const (
	HostSucceeded   HostOutcome = "succeeded"
	HostFailed      HostOutcome = "failed"
	HostSkipped     HostOutcome = "skipped"
	HostUnreachable HostOutcome = "unreachable"
)

// HostResult is recorded by the rollout coordinator for every host it
// attempted (or skipped as part of a canary abort).
type HostResult struct {
	Host      HostDescriptor
	Outcome   HostOutcome
	ErrorKind string
	Err       error
	Elapsed   time.Duration
	Drained   bool
}

// RolloutSummary is the coordinator's final report across all batches.
type RolloutSummary struct {
	Results     map[string]HostResult // keyed by HostDescriptor.Addr()
	Successful  int
	Failed      int
	Skipped     int
	Aborted     bool
	FailedBatch int // 1-based index of the batch that triggered the abort, 0 if none
}

// DeployResult is what a single-host deploy call (inline, chunked, or full
// upload) resolves to, whether observed directly or recovered via status
// polling.
type DeployResult struct {
	Success        bool
	FilesChanged   int
	FilesDeleted   int
	DeploymentTime time.Duration
	Message        string
	Applications   []string // currently deployed applications after the operation
}
