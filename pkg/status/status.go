// Package status tracks the in-flight and last-completed deployment on one
// agent. Every update and every read goes through the Tracker's mutex, so a
// Snapshot never observes a half-applied update; within an update, startedAt
// is set before deploying flips true, and deploying flips false before
// lastCompletedAt is set.
package status

import (
	"sync"
	"time"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"
)

// Record is a point-in-time snapshot returned to callers.
type Record struct {
	Deploying       bool
	DeploymentID    string
	StartedAt       time.Time
	CurrentStep     string
	LastResult      *types.DeployResult
	LastCompletedAt time.Time
}

// ElapsedMs reports how long the current (or most recent) deployment has
// been running, as of now.
func (r Record) ElapsedMs(now time.Time) int64 {
	if r.StartedAt.IsZero() {
		return 0
	}
	end := now
	if !r.Deploying && !r.LastCompletedAt.IsZero() {
		end = r.LastCompletedAt
	}
	return end.Sub(r.StartedAt).Milliseconds()
}

// Tracker is the single-writer deployment status record for one agent.
// Exactly one deployment may be in flight at a time; Start returns false if
// one is already running.
type Tracker struct {
	mu     sync.RWMutex
	record Record
}

// New returns an idle tracker.
func New() *Tracker {
	return &Tracker{}
}

// Start begins a new deployment. It returns false without changing state if
// a deployment is already in progress (spec: 409 semantics live further up:
// pkg/reconciler calls this and returns an in-progress error, which pkg/agent
// turns into a 409).
func (t *Tracker) Start(deploymentID string) (started bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.record.Deploying {
		return false
	}
	t.record.DeploymentID = deploymentID
	t.record.StartedAt = time.Now()
	t.record.CurrentStep = "starting"
	t.record.Deploying = true
	return true
}

// SetStep updates the human-readable current step of an in-flight deploy.
func (t *Tracker) SetStep(step string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record.CurrentStep = step
}

// Complete records the outcome of the in-flight deployment. deploying flips
// false, then lastCompletedAt/lastResult are published, in that order, so a
// racing long-poll reader that observes deploying==false is guaranteed to
// also observe the result once it re-checks lastCompletedAt.
func (t *Tracker) Complete(result types.DeployResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record.Deploying = false
	t.record.CurrentStep = ""
	r := result
	t.record.LastResult = &r
	t.record.LastCompletedAt = time.Now()
}

// Snapshot returns a copy of the current record.
func (t *Tracker) Snapshot() Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.record
}

// IsDeploying reports whether a deployment is currently in flight.
func (t *Tracker) IsDeploying() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.record.Deploying
}
