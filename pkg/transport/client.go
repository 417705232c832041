// Package transport implements the HTTP request/response policies shared by
// every call the rollout coordinator and preflight pipeline make to a
// remote deploy agent: bounded retry with exponential backoff, 409-as-
// not-error semantics for in-progress deploys, and long-poll status
// resolution that survives a client-side timeout on the original request.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/log"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/rollouterr"
)

// Config bundles the retry, timeout, and polling tunables used by every
// call a coordinator or preflight pipeline makes to a remote deploy agent.
type Config struct {
	MaxRetries           int
	RetryBaseDelay       time.Duration
	AgentTimeout         time.Duration
	DeploymentTimeout    time.Duration
	StatusPollInterval   time.Duration
	StatusPollMaxWait    time.Duration
}

// DefaultConfig returns the tunables used when a fleet config omits them.
func DefaultConfig() Config {
	return Config{
		MaxRetries:         3,
		RetryBaseDelay:     500 * time.Millisecond,
		AgentTimeout:       10 * time.Second,
		DeploymentTimeout:  60 * time.Second,
		StatusPollInterval: 2 * time.Second,
		StatusPollMaxWait:  5 * time.Minute,
	}
}

// ProgressFunc is invoked on each chunk/byte boundary of an upload.
type ProgressFunc func(sent, total int64)

// Client performs HTTP calls against one agent's plugin base URL
// (e.g. "http://host:port/plugins/payara").
type Client struct {
	BaseURL string
	cfg     Config
	http    *http.Client
}

// New builds a Client bound to baseURL with the given tunables.
func New(baseURL string, cfg Config) *Client {
	return &Client{
		BaseURL: baseURL,
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.AgentTimeout},
	}
}

// StatusResult is the JSON shape of GET /deploy/status.
type StatusResult struct {
	Deploying       bool       `json:"deploying"`
	DeploymentID    string     `json:"deploymentId,omitempty"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CurrentStep     string     `json:"currentStep,omitempty"`
	ElapsedMs       int64      `json:"elapsedMs,omitempty"`
	LastResult      *DeployResultBody `json:"lastResult,omitempty"`
	LastCompletedAt *time.Time `json:"lastCompletedAt,omitempty"`
	AppDeployed     bool       `json:"appDeployed"`
	Healthy         bool       `json:"healthy"`
	Running         bool       `json:"running"`
}

// DeployResultBody is the JSON shape returned by /deploy, /deploy/upload,
// /deploy/chunk, and embedded in StatusResult.LastResult.
type DeployResultBody struct {
	Success        bool     `json:"success"`
	FilesChanged   int      `json:"filesChanged"`
	FilesDeleted   int      `json:"filesDeleted"`
	DeploymentTime int64    `json:"deploymentTime"`
	Message        string   `json:"message,omitempty"`
	Applications   []string `json:"applications,omitempty"`
}

// retryableGet issues a GET with retry+backoff. Only transport errors are
// retried, up to MaxRetries attempts; any HTTP response, whatever its
// status code, is returned to the caller on the attempt that received it.
func (c *Client) retryableGet(ctx context.Context, path string) (*http.Response, error) {
	url := c.BaseURL + path
	var lastErr error

	for attempt := 0; attempt < maxAttempts(c.cfg.MaxRetries); attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, c.cfg.RetryBaseDelay, attempt); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			log.Logger.Debug().Str("url", url).Int("attempt", attempt+1).Err(err).Msg("GET failed, retrying")
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("GET %s failed after %d attempts: %w", url, maxAttempts(c.cfg.MaxRetries), lastErr)
}

func maxAttempts(maxRetries int) int {
	if maxRetries <= 0 {
		return 1
	}
	return maxRetries
}

func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchHashes performs GET /hashes and decodes the remote entry index.
func (c *Client) FetchHashes(ctx context.Context) (map[string]string, string, error) {
	resp, err := c.retryableGet(ctx, "/hashes")
	if err != nil {
		return nil, "", rollouterr.New(rollouterr.KindHashFetchFailed, c.BaseURL, "hashes request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", rollouterr.New(rollouterr.KindHashFetchFailed, c.BaseURL,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var body struct {
		Hashes    map[string]string `json:"hashes"`
		Status    string            `json:"status"`
		FileCount int               `json:"fileCount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, "", rollouterr.New(rollouterr.KindHashFetchFailed, c.BaseURL, "decode /hashes response", err)
	}
	return body.Hashes, body.Status, nil
}

// HealthResult is the JSON shape of GET /health.
type HealthResult struct {
	Healthy       bool   `json:"healthy"`
	AgentVersion  string `json:"agentVersion"`
	PluginVersion string `json:"pluginVersion"`
	Running       bool   `json:"running"`
}

// Health performs the reachability probe preflight runs first against a
// host.
func (c *Client) Health(ctx context.Context) (*HealthResult, error) {
	resp, err := c.retryableGet(ctx, "/health")
	if err != nil {
		return nil, rollouterr.New(rollouterr.KindUnreachable, c.BaseURL, "health check failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, rollouterr.New(rollouterr.KindUnreachable, c.BaseURL,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var out HealthResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, rollouterr.New(rollouterr.KindUnreachable, c.BaseURL, "decode /health response", err)
	}
	return &out, nil
}

// VersionsResult is the JSON shape of GET /plugins/versions.
type VersionsResult struct {
	HasUpdates bool `json:"hasUpdates"`
	Versions   []struct {
		Package         string `json:"package"`
		Current         string `json:"current"`
		Latest          string `json:"latest"`
		UpdateAvailable bool   `json:"updateAvailable"`
	} `json:"versions"`
}

// FetchVersions performs GET /plugins/versions. A 404 is reported via the
// boolean return, not an error: it means the agent predates the versions
// endpoint (a soft failure, not a hard preflight error).
func (c *Client) FetchVersions(ctx context.Context) (*VersionsResult, bool, error) {
	resp, err := c.retryableGet(ctx, "/plugins/versions")
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status %d from /plugins/versions", resp.StatusCode)
	}

	var out VersionsResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("decode /plugins/versions: %w", err)
	}
	return &out, false, nil
}

// PluginUpdateResult is the JSON shape of POST /plugins/update.
type PluginUpdateResult struct {
	Updated     bool               `json:"updated"`
	Results     []PluginUpdateItem `json:"results"`
	WillRestart bool               `json:"willRestart"`
	Message     string             `json:"message"`
	Timestamp   time.Time          `json:"timestamp"`
}

// PluginUpdateItem reports one package's self-update outcome.
type PluginUpdateItem struct {
	Package string `json:"package"`
	Updated bool   `json:"updated"`
	Message string `json:"message"`
}

// DeployOutcome captures the three ways a write to a /deploy* endpoint can
// resolve: a direct result, a 409 meaning "poll for status", or a timeout
// that also means "poll for status" (the deploy may still be running on the
// agent even though this request gave up waiting).
type DeployOutcome struct {
	Result     *DeployResultBody
	InProgress bool
	TimedOut   bool
}

func (c *Client) postJSON(ctx context.Context, path string, body any, timeout time.Duration) (DeployOutcome, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return DeployOutcome{}, fmt.Errorf("marshal request: %w", err)
	}
	return c.post(ctx, path, "application/json", bytes.NewReader(payload), timeout)
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, timeout time.Duration) (DeployOutcome, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.BaseURL+path, body)
	if err != nil {
		return DeployOutcome{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return DeployOutcome{TimedOut: true}, nil
		}
		return DeployOutcome{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return DeployOutcome{InProgress: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return DeployOutcome{}, fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, string(data))
	}

	var result DeployResultBody
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return DeployOutcome{}, fmt.Errorf("decode deploy response: %w", err)
	}
	return DeployOutcome{Result: &result}, nil
}

// InlineFile is one entry in a /deploy or /deploy/chunk request body.
type InlineFile struct {
	Path       string `json:"path"`
	ContentB64 string `json:"content-b64"`
}

// DeployInline POSTs /deploy with entries base64-encoded inline.
func (c *Client) DeployInline(ctx context.Context, files []InlineFile, deletions []string) (DeployOutcome, error) {
	body := struct {
		Files     []InlineFile `json:"files"`
		Deletions []string     `json:"deletions"`
	}{Files: files, Deletions: deletions}
	return c.postJSON(ctx, "/deploy", body, c.cfg.DeploymentTimeout)
}

// DeployUpload POSTs the entire archive body to /deploy/upload.
func (c *Client) DeployUpload(ctx context.Context, archive []byte, progress ProgressFunc) (DeployOutcome, error) {
	r := &progressReader{r: bytes.NewReader(archive), total: int64(len(archive)), onProgress: progress}
	return c.post(ctx, "/deploy/upload", "application/octet-stream", r, c.cfg.DeploymentTimeout)
}

type progressReader struct {
	r          io.Reader
	sent       int64
	total      int64
	onProgress ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.sent += int64(n)
		if p.onProgress != nil {
			p.onProgress(p.sent, p.total)
		}
	}
	return n, err
}

// PollDeployStatus long-polls GET /deploy/status until the server reports
// deploying=false with a lastCompletedAt newer than localStartTime, or until
// StatusPollMaxWait elapses.
func (c *Client) PollDeployStatus(ctx context.Context, localStartTime time.Time) (*StatusResult, error) {
	deadline := time.Now().Add(c.cfg.StatusPollMaxWait)
	for {
		resp, err := c.retryableGet(ctx, "/deploy/status")
		if err != nil {
			return nil, fmt.Errorf("poll /deploy/status: %w", err)
		}
		var status StatusResult
		decodeErr := json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("decode /deploy/status: %w", decodeErr)
		}

		if !status.Deploying && status.LastCompletedAt != nil && status.LastCompletedAt.After(localStartTime) {
			return &status, nil
		}

		if time.Now().After(deadline) {
			return nil, rollouterr.New(rollouterr.KindDeployTimeout, c.BaseURL, "status poll exceeded max wait", nil)
		}

		select {
		case <-time.After(c.cfg.StatusPollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
