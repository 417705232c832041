// Package agent is the HTTP surface the rollout coordinator and the
// transport client talk to on each application-server host: archive hash
// reporting, the three upload modes, status polling, and a handful of
// operational endpoints (restart, plugin version/update, metrics).
package agent

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/health"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/log"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/metrics"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/reconciler"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/session"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/status"
)

// Config bundles the fixed, non-deployment-state parts of an Agent.
type Config struct {
	ArchivePath   string // the single installed archive file Payara serves out of
	ApplicationID string
	AgentVersion  string
	PluginVersion string
	RestartCmd    []string // command + args run for POST /restart; empty disables it
	RedeployCmd   []string // command + args run after Apply/FullReplace swaps a new archive in; empty is a no-op
	AppServerAddr string   // host:port checked by the running/healthy probe
	AppHealthURL  string   // preferred over AppServerAddr: an HTTP endpoint Payara answers when up
	AppHealthCmd  []string // preferred over AppServerAddr, after AppHealthURL: a local command (e.g. asadmin list-applications) treated as healthy on exit 0
}

// Agent wires the reconciler, chunk session store, and status tracker
// behind the HTTP route table.
type Agent struct {
	cfg         Config
	reconciler  *reconciler.Reconciler
	sessions    *session.Store
	tracker     *status.Tracker
	appChecker  health.Checker
	startedAt   time.Time
}

// New builds an Agent ready to be mounted with Router.
func New(cfg Config) *Agent {
	tracker := status.New()
	var checker health.Checker
	switch {
	case cfg.AppHealthURL != "":
		checker = health.NewHTTPChecker(cfg.AppHealthURL)
	case len(cfg.AppHealthCmd) > 0:
		checker = health.NewExecChecker(cfg.AppHealthCmd)
	case cfg.AppServerAddr != "":
		checker = health.NewTCPChecker(cfg.AppServerAddr)
	}
	var redeployer reconciler.Redeployer = reconciler.NoopRedeployer{}
	if len(cfg.RedeployCmd) > 0 {
		redeployer = reconciler.ExecRedeployer{Cmd: cfg.RedeployCmd}
	}
	return &Agent{
		cfg:        cfg,
		reconciler: reconciler.New(cfg.ArchivePath, cfg.ApplicationID, redeployer, tracker),
		sessions:   session.NewStore(),
		tracker:    tracker,
		appChecker: checker,
		startedAt:  time.Now(),
	}
}

// Router builds the gorilla/mux route table for this agent.
func (a *Agent) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(a.instrument)

	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", a.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/hashes", a.handleHashes).Methods(http.MethodGet)
	r.HandleFunc("/applications", a.handleApplications).Methods(http.MethodGet)
	r.HandleFunc("/file/{path:.*}", a.handleFile).Methods(http.MethodGet)

	r.HandleFunc("/deploy", a.handleDeployInline).Methods(http.MethodPost)
	r.HandleFunc("/deploy/full", a.handleDeployFull).Methods(http.MethodPost)
	r.HandleFunc("/deploy/upload", a.handleDeployUpload).Methods(http.MethodPost)
	r.HandleFunc("/deploy/chunk", a.handleDeployChunk).Methods(http.MethodPost)
	r.HandleFunc("/deploy/chunk/{id}", a.handleCancelChunk).Methods(http.MethodDelete)
	r.HandleFunc("/deploy/status", a.handleDeployStatus).Methods(http.MethodGet)

	r.HandleFunc("/restart", a.handleRestart).Methods(http.MethodPost)
	r.HandleFunc("/plugins/versions", a.handlePluginVersions).Methods(http.MethodGet)
	r.HandleFunc("/plugins/update", a.handlePluginUpdate).Methods(http.MethodPost)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return r
}

// instrument records request count/duration per route for /metrics.
func (a *Agent) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if m, err := mux.CurrentRoute(r).GetPathTemplate(); err == nil {
			route = m
		}
		timer.ObserveDurationVec(metrics.AgentRequestDuration, route)
		metrics.AgentRequestsTotal.WithLabelValues(route, http.StatusText(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *Agent) logger() zerolog.Logger {
	return log.WithComponent("agent")
}
