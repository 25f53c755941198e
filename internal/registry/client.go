// Package registry implements the npm registry HTTP client: manifest and
// tarball fetching with retry/backoff, scoped-registry routing and bearer
// auth, built on top of github.com/hashicorp/go-retryablehttp exactly the
// way the teacher's internal/client.APIClient wires the same library.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

// Config configures a Client.
type Config struct {
	// DefaultRegistry is used when a package name is unscoped, or its scope
	// has no entry in ScopedRegistries.
	DefaultRegistry string
	// ScopedRegistries maps an `@scope` (without the leading `@`) to the
	// registry base URL to use for packages under that scope.
	ScopedRegistries map[string]string
	// AuthTokens maps a registry host to a bearer token.
	AuthTokens map[string]string
	// MaxRetries bounds retry attempts; the client issues at most
	// MaxRetries+1 HTTP attempts per logical request.
	MaxRetries int
	// Timeout is the per-HTTP-request timeout.
	Timeout time.Duration
	UserAgent string
	Logger    hclog.Logger
}

// Client fetches package manifests, version lists and tarballs from npm
// registries.
type Client struct {
	cfg  Config
	http *retryablehttp.Client
}

// New constructs a Client from cfg, filling reasonable defaults for any
// zero-valued field.
func New(cfg Config) *Client {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = fmt.Sprintf("hoard %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	hc := &retryablehttp.Client{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		RetryWaitMin: 250 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		RetryMax:     cfg.MaxRetries,
		Backoff:      jitterBackoff,
		Logger:       cfg.Logger,
		// Once retries are exhausted, hand back the last response so callers
		// report its status rather than a generic "giving up" error.
		ErrorHandler: func(resp *http.Response, err error, _ int) (*http.Response, error) {
			if err != nil && resp != nil {
				resp.Body.Close() //nolint:errcheck
				return nil, err
			}
			return resp, err
		},
	}

	c := &Client{cfg: cfg, http: hc}
	hc.CheckRetry = c.checkRetry
	return c
}

// jitterBackoff computes min(base*2^attempt + rand(0..1000ms), max).
// retryablehttp.DefaultBackoff only honors a Retry-After header or a
// plain exponential curve with no jitter term, so this replaces it
// rather than wrapping it.
func jitterBackoff(base, max time.Duration, attempt int, _ *http.Response) time.Duration {
	wait := base << uint(attempt) //nolint:gosec
	wait += time.Duration(rand.Int63n(int64(time.Second)))
	if wait > max {
		wait = max
	}
	return wait
}

// checkRetry implements the spec's retry classification: retry on network
// errors and on 408/429/5xx; everything else is terminal.
func (c *Client) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp == nil {
		return true, nil
	}
	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return true, nil
	default:
		return false, nil
	}
}

// registryFor picks the scoped or default registry base URL for a package
// name.
func (c *Client) registryFor(name string) string {
	if strings.HasPrefix(name, "@") {
		if i := strings.IndexByte(name, '/'); i > 0 {
			scope := strings.TrimPrefix(name[:i], "@")
			if reg, ok := c.cfg.ScopedRegistries[scope]; ok {
				return reg
			}
		}
	}
	return c.cfg.DefaultRegistry
}

func (c *Client) newRequest(ctx context.Context, method, url string) (*retryablehttp.Request, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if host := hostOf(url); host != "" {
		if token, ok := c.cfg.AuthTokens[host]; ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func hostOf(rawURL string) string {
	if i := strings.Index(rawURL, "://"); i != -1 {
		rest := rawURL[i+3:]
		if j := strings.IndexByte(rest, '/'); j != -1 {
			return rest[:j]
		}
		return rest
	}
	return ""
}

// RegistryHTTPError is returned for a terminal (non-retryable) HTTP
// status, or for the last status observed after retries are exhausted.
type RegistryHTTPError struct {
	Status int
	Name   string
}

func (e *RegistryHTTPError) Error() string {
	return fmt.Sprintf("registry request for %s failed: HTTP %d", e.Name, e.Status)
}

// NotFoundError marks a registry 404, distinguished so callers can treat
// optionalDependencies misses as recoverable.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("package not found in registry: %s", e.Name)
}

// versionsDoc is the shape of `GET /{name}`.
type versionsDoc struct {
	Versions map[string]json.RawMessage `json:"versions"`
	DistTags map[string]string          `json:"dist-tags"`
}

// Versions returns every published version string for name.
func (c *Client) Versions(ctx context.Context, name string) ([]string, error) {
	base := c.registryFor(name)
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(base, "/"), name)

	req, err := c.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching versions for %s", name)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{Name: name}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RegistryHTTPError{Status: resp.StatusCode, Name: name}
	}

	var doc versionsDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, errors.Wrapf(err, "decoding version list for %s", name)
	}

	out := make([]string, 0, len(doc.Versions))
	for v := range doc.Versions {
		out = append(out, v)
	}
	return out, nil
}

// Dist is the `dist` sub-object of a manifest.
type Dist struct {
	Tarball   string `json:"tarball"`
	Integrity string `json:"integrity"`
	Shasum    string `json:"shasum"`
}

// RawManifest is the registry's wire shape for a single version's
// manifest; fields not listed here are discarded on decode.
type RawManifest struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	Dist                 Dist              `json:"dist"`
}

// Manifest fetches the manifest for an exact name@version.
func (c *Client) Manifest(ctx context.Context, name, version string) (*RawManifest, error) {
	base := c.registryFor(name)
	url := fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(base, "/"), name, version)

	req, err := c.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching manifest for %s@%s", name, version)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{Name: fmt.Sprintf("%s@%s", name, version)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RegistryHTTPError{Status: resp.StatusCode, Name: fmt.Sprintf("%s@%s", name, version)}
	}

	var m RawManifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, errors.Wrapf(err, "decoding manifest for %s@%s", name, version)
	}
	return &m, nil
}

// Integrity returns dist.integrity for name@version.
func (c *Client) Integrity(ctx context.Context, name, version string) (string, error) {
	m, err := c.Manifest(ctx, name, version)
	if err != nil {
		return "", err
	}
	return m.Dist.Integrity, nil
}

// Tarball fetches the manifest, then streams the tarball body named by
// dist.tarball. The caller must close the returned ReadCloser.
func (c *Client) Tarball(ctx context.Context, name, version string) (io.ReadCloser, error) {
	m, err := c.Manifest(ctx, name, version)
	if err != nil {
		return nil, err
	}
	if m.Dist.Tarball == "" {
		return nil, errors.Errorf("manifest for %s@%s has no dist.tarball", name, version)
	}

	req, err := c.newRequest(ctx, http.MethodGet, m.Dist.Tarball)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching tarball for %s@%s", name, version)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close() //nolint:errcheck
		return nil, &RegistryHTTPError{Status: resp.StatusCode, Name: fmt.Sprintf("%s@%s", name, version)}
	}
	return resp.Body, nil
}
