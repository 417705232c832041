package agent

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/gorilla/mux"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/archiveindex"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/metrics"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/rollouterr"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/session"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/transport"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"
)

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// handleHealth answers GET /health, the reachability probe preflight uses
// before anything else.
func (a *Agent) handleHealth(w http.ResponseWriter, r *http.Request) {
	result := transport.HealthResult{
		AgentVersion:  a.cfg.AgentVersion,
		PluginVersion: a.cfg.PluginVersion,
		Healthy:       true,
	}
	if a.appChecker != nil {
		check := a.appChecker.Check(r.Context())
		result.Running = check.Healthy
		result.Healthy = check.Healthy
	} else {
		result.Running = true
	}
	writeJSON(w, http.StatusOK, result)
}

// handleStatus answers GET /status with a general agent summary, distinct
// from the deployment-specific GET /deploy/status.
func (a *Agent) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"applicationId": a.cfg.ApplicationID,
		"archivePath":   a.cfg.ArchivePath,
		"uptimeSeconds": int64(time.Since(a.startedAt).Seconds()),
		"deploying":     a.tracker.IsDeploying(),
	})
}

// handleHashes answers GET /hashes by indexing the currently installed
// archive file. Opening the archive fresh on every call, rather than
// caching an index, is what keeps this read consistent with an in-flight
// repackage: the archive file is swapped into place with a rename, so this
// either sees the complete old archive or the complete new one, never a
// torn mix of the two.
func (a *Agent) handleHashes(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(a.cfg.ArchivePath); os.IsNotExist(err) {
		writeJSON(w, http.StatusOK, map[string]any{
			"hashes":    map[string]string{},
			"status":    "empty",
			"fileCount": 0,
		})
		return
	}

	idx, err := archiveindex.Build(a.cfg.ArchivePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hashes":    idx,
		"status":    "installed",
		"fileCount": len(idx),
	})
}

// handleApplications answers GET /applications with the single application
// this agent hosts (one agent per Payara instance, one app per agent).
func (a *Agent) handleApplications(w http.ResponseWriter, r *http.Request) {
	apps := []string{}
	if a.cfg.ApplicationID != "" {
		apps = append(apps, a.cfg.ApplicationID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

// handleFile serves one installed archive entry's raw bytes for operator
// debugging.
func (a *Agent) handleFile(w http.ResponseWriter, r *http.Request) {
	rel := mux.Vars(r)["path"]
	data, err := archiveindex.ReadEntry(a.cfg.ArchivePath, rel)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

type deployRequest struct {
	Files     []transport.InlineFile `json:"files"`
	Deletions []string               `json:"deletions"`
}

func decodeInlineFiles(files []transport.InlineFile) ([]types.Entry, error) {
	entries := make([]types.Entry, 0, len(files))
	for _, f := range files {
		data, err := base64.StdEncoding.DecodeString(f.ContentB64)
		if err != nil {
			return nil, rollouterr.New(rollouterr.KindDeployFailed, "", "invalid base64 content for "+f.Path, err)
		}
		entries = append(entries, types.Entry{Path: f.Path, Data: data})
	}
	return entries, nil
}

func toResultBody(result types.DeployResult) transport.DeployResultBody {
	return transport.DeployResultBody{
		Success:        result.Success,
		FilesChanged:   result.FilesChanged,
		FilesDeleted:   result.FilesDeleted,
		DeploymentTime: result.DeploymentTime.Milliseconds(),
		Message:        result.Message,
		Applications:   result.Applications,
	}
}

// handleDeployInline answers POST /deploy: base64-inlined changed files plus
// a deletion list, applied incrementally.
func (a *Agent) handleDeployInline(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entries, err := decodeInlineFiles(req.Files)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	deploymentID := r.Header.Get("X-Deployment-Id")
	result, err := a.reconciler.Apply(r.Context(), deploymentID, entries, req.Deletions)
	a.respondDeploy(w, result, err)
}

// handleDeployFull and handleDeployUpload both answer a raw octet-stream
// body with a full wipe-and-reinstall; warren's CLI historically split these
// into two routes for the local-path vs. streamed-upload cases, kept here so
// older fleet manifests that target either path keep working.
func (a *Agent) handleDeployFull(w http.ResponseWriter, r *http.Request) {
	a.handleFullReplace(w, r)
}

func (a *Agent) handleDeployUpload(w http.ResponseWriter, r *http.Request) {
	a.handleFullReplace(w, r)
}

func (a *Agent) handleFullReplace(w http.ResponseWriter, r *http.Request) {
	archive, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	deploymentID := r.Header.Get("X-Deployment-Id")
	result, err := a.reconciler.FullReplace(r.Context(), deploymentID, archive)
	a.respondDeploy(w, result, err)
	if err == nil {
		metrics.BytesTransferred.WithLabelValues("full").Add(float64(len(archive)))
	}
}

func (a *Agent) respondDeploy(w http.ResponseWriter, result types.DeployResult, err error) {
	if err != nil {
		if rollouterr.IsKind(err, rollouterr.KindDeployInProgress) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultBody(result))
}

// handleDeployChunk answers POST /deploy/chunk, one window of the chunked
// upload protocol. A request with no sessionId opens a new
// session; deletions are only honored on that first chunk; commit=true
// drains the accumulated session into the reconciler.
func (a *Agent) handleDeployChunk(w http.ResponseWriter, r *http.Request) {
	var req transport.ChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entries, err := decodeInlineFiles(req.Files)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess := (*session.Session)(nil)
	if req.SessionID == "" {
		sess = a.sessions.Begin(req.ExpectedFiles)
		metrics.ActiveChunkSessions.Set(float64(a.sessions.Count()))
		var appendErr error
		sess, appendErr = a.sessions.Append(sess.ID, entries, req.Deletions)
		if appendErr != nil {
			writeError(w, http.StatusInternalServerError, appendErr)
			return
		}
	} else {
		sess, err = a.sessions.Append(req.SessionID, entries, req.Deletions)
		if err != nil {
			writeError(w, http.StatusGone, err)
			return
		}
	}

	resp := transport.ChunkResponse{SessionID: sess.ID, FilesReceived: len(sess.Files)}

	if req.Commit {
		committed, err := a.sessions.Commit(sess.ID)
		if err != nil {
			writeError(w, http.StatusGone, err)
			return
		}
		metrics.ActiveChunkSessions.Set(float64(a.sessions.Count()))

		deploymentID := r.Header.Get("X-Deployment-Id")
		result, err := a.reconciler.Apply(r.Context(), deploymentID, committed.Files, committed.Deletions)
		if err != nil {
			if rollouterr.IsKind(err, rollouterr.KindDeployInProgress) {
				writeError(w, http.StatusConflict, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		body := toResultBody(result)
		resp.Committed = true
		resp.Result = &body
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCancelChunk answers DELETE /deploy/chunk/{id}.
func (a *Agent) handleCancelChunk(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a.sessions.Cancel(id)
	metrics.ActiveChunkSessions.Set(float64(a.sessions.Count()))
	w.WriteHeader(http.StatusOK)
}

// handleDeployStatus answers GET /deploy/status, the long-poll target
// transport.PollDeployStatus reads from.
func (a *Agent) handleDeployStatus(w http.ResponseWriter, r *http.Request) {
	rec := a.tracker.Snapshot()
	out := transport.StatusResult{
		Deploying:    rec.Deploying,
		DeploymentID: rec.DeploymentID,
		CurrentStep:  rec.CurrentStep,
		ElapsedMs:    rec.ElapsedMs(time.Now()),
		AppDeployed:  true,
	}
	if !rec.StartedAt.IsZero() {
		out.StartedAt = &rec.StartedAt
	}
	if !rec.LastCompletedAt.IsZero() {
		out.LastCompletedAt = &rec.LastCompletedAt
	}
	if rec.LastResult != nil {
		body := toResultBody(*rec.LastResult)
		out.LastResult = &body
	}
	if a.appChecker != nil {
		check := a.appChecker.Check(r.Context())
		out.Healthy = check.Healthy
		out.Running = check.Healthy
	} else {
		out.Healthy = true
		out.Running = true
	}
	writeJSON(w, http.StatusOK, out)
}

// handleRestart answers POST /restart by running the configured app-server
// restart command. Disabled (404) when no RestartCmd was configured.
func (a *Agent) handleRestart(w http.ResponseWriter, r *http.Request) {
	if len(a.cfg.RestartCmd) == 0 {
		writeError(w, http.StatusNotFound, rollouterr.New(rollouterr.KindDeployFailed, "", "restart is not configured on this agent", nil))
		return
	}

	cmd := exec.CommandContext(r.Context(), a.cfg.RestartCmd[0], a.cfg.RestartCmd[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		a.logger().Error().Err(err).Str("output", string(output)).Msg("restart command failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": string(output)})
}

// handlePluginVersions answers GET /plugins/versions. Agents that predate
// this endpoint simply 404, which preflight treats as a soft failure; this
// agent always implements it.
func (a *Agent) handlePluginVersions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, transport.VersionsResult{
		HasUpdates: false,
		Versions: []struct {
			Package         string `json:"package"`
			Current         string `json:"current"`
			Latest          string `json:"latest"`
			UpdateAvailable bool   `json:"updateAvailable"`
		}{
			{Package: "agent", Current: a.cfg.AgentVersion, Latest: a.cfg.AgentVersion},
			{Package: "plugin", Current: a.cfg.PluginVersion, Latest: a.cfg.PluginVersion},
		},
	})
}

// handlePluginUpdate answers POST /plugins/update. This agent has no
// self-update mechanism, so it always reports nothing to update rather than
// rejecting the call outright; callers can tell the two apart from
// Versions.UpdateAvailable being false on every package.
func (a *Agent) handlePluginUpdate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, transport.PluginUpdateResult{
		Updated: false,
		Results: []transport.PluginUpdateItem{
			{Package: "agent", Updated: false, Message: "already at latest version"},
			{Package: "plugin", Updated: false, Message: "already at latest version"},
		},
		WillRestart: false,
		Message:     "no plugin update available",
		Timestamp:   time.Now(),
	})
}
