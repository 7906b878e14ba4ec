package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/indranil/pokerledger/internal/metrics"
)

// Syncer pushes a serialized store snapshot to a remote audit copy.
type Syncer interface {
	// Enabled reports whether the syncer is configured. A disabled
	// syncer is the fully supported local-only mode, not an error.
	Enabled() bool

	// Sync pushes content with the given commit message. It returns
	// once the push succeeds, fails fatally, or exhausts retries.
	Sync(ctx context.Context, message string, content []byte) error

	// CheckAuth verifies the configured credential without writing.
	CheckAuth(ctx context.Context) error
}

// fatalError marks failures that retrying cannot fix: bad credentials,
// missing permissions, or a missing repository.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// IsFatal reports whether err is a non-retryable sync failure.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// GitHubConfig holds the environment-level settings for the GitHub target.
// An empty Token disables the syncer entirely.
type GitHubConfig struct {
	Token  string
	Owner  string
	Repo   string
	Branch string
	// FilePath is the path of the snapshot file inside the repository.
	FilePath string
}

// GitHubSyncer commits the snapshot file to a GitHub repository through the
// contents API. The file's blob SHA is the version token: an update must
// carry the SHA of the revision it replaces, and a 409 from concurrent
// external writers triggers a refresh-and-retry.
type GitHubSyncer struct {
	cfg     GitHubConfig
	apiBase string
	client  *http.Client
	retry   Retryer

	mu      sync.Mutex
	lastSHA string
}

// NewGitHub builds a GitHub syncer. Missing token, owner, or repo leaves it
// disabled; every Sync then returns nil immediately.
func NewGitHub(cfg GitHubConfig) *GitHubSyncer {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.FilePath == "" {
		cfg.FilePath = "snapshot.json"
	}
	return &GitHubSyncer{
		cfg:     cfg,
		apiBase: "https://api.github.com",
		client:  &http.Client{Timeout: 30 * time.Second},
		retry:   Retryer{Attempts: 3, BaseDelay: time.Second},
	}
}

// Enabled reports whether a credential and target repository are configured.
func (g *GitHubSyncer) Enabled() bool {
	return g.cfg.Token != "" && g.cfg.Owner != "" && g.cfg.Repo != ""
}

func (g *GitHubSyncer) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.apiBase+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "pokerledger")
	req.Header.Set("Authorization", "token "+g.cfg.Token)
	return req, nil
}

// CheckAuth verifies the token against the authenticated-user endpoint.
func (g *GitHubSyncer) CheckAuth(ctx context.Context) error {
	if !g.Enabled() {
		return errors.New("remote sync not configured")
	}
	req, err := g.newRequest(ctx, http.MethodGet, "/user", nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("github auth check: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return &fatalError{errors.New("invalid github token")}
	case http.StatusForbidden:
		return &fatalError{errors.New("github token lacks required permissions")}
	default:
		return fmt.Errorf("github auth check: unexpected status %d", resp.StatusCode)
	}
}

func (g *GitHubSyncer) contentsPath() string {
	return fmt.Sprintf("/repos/%s/%s/contents/%s",
		url.PathEscape(g.cfg.Owner), url.PathEscape(g.cfg.Repo), g.cfg.FilePath)
}

// fetchSHA returns the current blob SHA of the snapshot file, or "" if the
// file does not exist yet.
func (g *GitHubSyncer) fetchSHA(ctx context.Context) (string, error) {
	req, err := g.newRequest(ctx, http.MethodGet, g.contentsPath()+"?ref="+url.QueryEscape(g.cfg.Branch), nil)
	if err != nil {
		return "", err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch version token: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var body struct {
			SHA string `json:"sha"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("decode version token: %w", err)
		}
		return body.SHA, nil
	case resp.StatusCode == http.StatusNotFound:
		return "", nil
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("fetch version token: server error %d", resp.StatusCode)
	default:
		return "", fmt.Errorf("fetch version token: unexpected status %d", resp.StatusCode)
	}
}

type putPayload struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

// errConflict signals a version-token mismatch from a concurrent writer.
var errConflict = errors.New("version token conflict")

// Sync commits content to the configured repository, retrying transient
// failures with exponential backoff and refreshing the version token on
// conflict. Terminal states are logged and counted; callers treat any
// returned error as best-effort only.
func (g *GitHubSyncer) Sync(ctx context.Context, message string, content []byte) error {
	if !g.Enabled() {
		slog.Debug("remote sync disabled, skipping")
		return nil
	}

	syncID := uuid.New().String()[:8]
	slog.Info("sync attempting", "sync_id", syncID, "repo", g.cfg.Owner+"/"+g.cfg.Repo, "file", g.cfg.FilePath)

	err := g.retry.Do(ctx, func(err error) bool {
		return !IsFatal(err)
	}, func(ctx context.Context) error {
		return g.push(ctx, message, content)
	})

	switch {
	case err == nil:
		metrics.SyncAttempts.WithLabelValues("success").Inc()
		slog.Info("sync succeeded", "sync_id", syncID)
	case errors.Is(err, ErrRetriesExhausted):
		metrics.SyncAttempts.WithLabelValues("retries_exhausted").Inc()
		slog.Error("sync gave up", "sync_id", syncID, "error", err)
	default:
		metrics.SyncAttempts.WithLabelValues("fatal").Inc()
		slog.Error("sync failed", "sync_id", syncID, "error", err)
	}
	return err
}

// push performs one commit attempt against the contents API.
func (g *GitHubSyncer) push(ctx context.Context, message string, content []byte) error {
	g.mu.Lock()
	sha := g.lastSHA
	g.mu.Unlock()

	if sha == "" {
		fetched, err := g.fetchSHA(ctx)
		if err != nil {
			return err
		}
		sha = fetched
	}

	payload := putPayload{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  g.cfg.Branch,
		SHA:     sha,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := g.newRequest(ctx, http.MethodPut, g.contentsPath(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("push snapshot: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var result struct {
			Content struct {
				SHA string `json:"sha"`
			} `json:"content"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
			g.mu.Lock()
			g.lastSHA = result.Content.SHA
			g.mu.Unlock()
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return &fatalError{errors.New("invalid github token")}
	case resp.StatusCode == http.StatusForbidden:
		return &fatalError{fmt.Errorf("github permission error: %s", apiMessage(resp.Body))}
	case resp.StatusCode == http.StatusNotFound:
		return &fatalError{errors.New("repository not found")}
	case resp.StatusCode == http.StatusConflict:
		// Someone else moved the file; drop the cached token so the
		// next attempt fetches a fresh one.
		g.mu.Lock()
		g.lastSHA = ""
		g.mu.Unlock()
		return errConflict
	case resp.StatusCode >= 500:
		return fmt.Errorf("github server error %d", resp.StatusCode)
	default:
		return &fatalError{fmt.Errorf("github api error %d: %s", resp.StatusCode, apiMessage(resp.Body))}
	}
}

func apiMessage(r io.Reader) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil || body.Message == "" {
		return "unknown error"
	}
	return body.Message
}
