// Package config loads hoard's configuration inputs: registry URLs,
// auth tokens, proxy and TLS settings, and the cache/store/install
// knobs, from .npmrc-style files and environment variable overrides.
// Grounded on the teacher's internal/config package, which layers
// envconfig processing with the prefix "TURBO_" over a partially
// user-supplied struct; this package follows the same
// defaults-then-file-then-env precedence with the prefix "HOARD_".
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	homedir "github.com/mitchellh/go-homedir"
)

// Config holds every recognised configuration input from spec §6.
type Config struct {
	Registry         string            `envconfig:"REGISTRY"`
	ScopedRegistries map[string]string `ignored:"true"` // "@scope:registry" entries
	AuthTokens       map[string]string `ignored:"true"` // "//host/:_authToken" entries

	Proxy      string `envconfig:"PROXY"`
	HTTPSProxy string `envconfig:"HTTPS_PROXY"`
	NoProxy    string `envconfig:"NO_PROXY"`
	StrictSSL  bool   `envconfig:"STRICT_SSL"`
	CA         string `envconfig:"CA"`

	UserAgent  string `envconfig:"USER_AGENT"`
	MaxSockets int    `envconfig:"MAXSOCKETS"`

	CacheDir string `envconfig:"CACHE_DIR"`
	StoreDir string `envconfig:"STORE_DIR"`

	UseSymlinks  bool `envconfig:"USE_SYMLINKS"`
	UseHardlinks bool `envconfig:"USE_HARDLINKS"`

	MaxRetries  int           `envconfig:"MAX_RETRIES"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT"`

	VerifySignatures bool `envconfig:"VERIFY_SIGNATURES"`
	DeltaUpdates     bool `envconfig:"DELTA_UPDATES"`
	ZeroInstalls     bool `envconfig:"ZERO_INSTALLS"`
}

// EnvPrefix is the prefix envconfig.Process uses for overrides, e.g.
// HOARD_REGISTRY, HOARD_STRICT_SSL.
const EnvPrefix = "HOARD"

// Default returns a Config with npm's conventional defaults, before any
// .npmrc file or environment override is applied.
func Default() *Config {
	home, err := homedir.Dir()
	if err != nil {
		home = "."
	}
	return &Config{
		Registry:         "https://registry.npmjs.org/",
		ScopedRegistries: map[string]string{},
		AuthTokens:       map[string]string{},
		StrictSSL:        true,
		UserAgent:        "hoard",
		MaxSockets:       15,
		CacheDir:         filepath.Join(home, ".hoard", "cache"),
		StoreDir:         filepath.Join(home, ".hoard", "store"),
		UseHardlinks:     true,
		MaxRetries:       3,
		HTTPTimeout:      30 * time.Second,
		VerifySignatures: false,
		DeltaUpdates:     false,
		ZeroInstalls:     false,
	}
}

// Load layers defaults, then any .npmrc found at the conventional
// locations (global, then project, project wins), then environment
// overrides, matching npm's own precedence and the teacher's own
// defaults-then-file-then-env layering in ParseAndValidate.
func Load(projectDir string) (*Config, error) {
	cfg := Default()

	home, err := homedir.Dir()
	if err == nil {
		applyFile(cfg, filepath.Join(home, ".npmrc"))
	}
	applyFile(cfg, filepath.Join(projectDir, ".npmrc"))

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: invalid environment variable: %w", err)
	}
	return cfg, nil
}

// applyFile merges an .npmrc file into cfg if it exists; a missing file
// is not an error, matching npm's own tolerant lookup.
func applyFile(cfg *Config, path string) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return
	}
	defer f.Close() //nolint:errcheck
	parseNpmrc(cfg, f)
}

// parseNpmrc reads npm's simple `key = value` config format: one entry
// per line, `;` and `#` introduce comments, blank lines are skipped.
// Scoped registries ("@scope:registry") and per-host tokens
// ("//host/:_authToken") are routed into their dedicated maps; every
// other recognised key sets the matching Config field directly.
func parseNpmrc(cfg *Config, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.Trim(strings.TrimSpace(line[eq+1:]), `"'`)

		switch {
		case strings.HasPrefix(key, "//") && strings.HasSuffix(key, ":_authToken"):
			host := strings.TrimSuffix(strings.TrimPrefix(key, "//"), ":_authToken")
			cfg.AuthTokens[host] = value
		case strings.HasPrefix(key, "@") && strings.HasSuffix(key, ":registry"):
			scope := strings.TrimSuffix(strings.TrimPrefix(key, "@"), ":registry")
			cfg.ScopedRegistries[scope] = value
		default:
			applyKnownKey(cfg, key, value)
		}
	}
}

func applyKnownKey(cfg *Config, key, value string) {
	switch key {
	case "registry":
		cfg.Registry = value
	case "proxy":
		cfg.Proxy = value
	case "https-proxy":
		cfg.HTTPSProxy = value
	case "no-proxy":
		cfg.NoProxy = value
	case "strict-ssl":
		cfg.StrictSSL = parseBool(value, cfg.StrictSSL)
	case "ca":
		cfg.CA = value
	case "user-agent":
		cfg.UserAgent = value
	case "maxsockets":
		cfg.MaxSockets = parseInt(value, cfg.MaxSockets)
	case "cache-dir", "cache":
		cfg.CacheDir = value
	case "store-dir":
		cfg.StoreDir = value
	case "use-symlinks":
		cfg.UseSymlinks = parseBool(value, cfg.UseSymlinks)
	case "use-hardlinks":
		cfg.UseHardlinks = parseBool(value, cfg.UseHardlinks)
	case "max-retries":
		cfg.MaxRetries = parseInt(value, cfg.MaxRetries)
	case "http-timeout":
		if ms, err := strconv.Atoi(value); err == nil {
			cfg.HTTPTimeout = time.Duration(ms) * time.Millisecond
		}
	case "verify-signatures":
		cfg.VerifySignatures = parseBool(value, cfg.VerifySignatures)
	case "delta-updates":
		cfg.DeltaUpdates = parseBool(value, cfg.DeltaUpdates)
	case "zero-installs":
		cfg.ZeroInstalls = parseBool(value, cfg.ZeroInstalls)
	}
}

func parseBool(s string, fallback bool) bool {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return v
}

func parseInt(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

// RegistryFor returns the registry base URL to use for a (possibly
// scoped) package name, matching spec's "@scope:registry" override.
func (c *Config) RegistryFor(packageName string) string {
	if strings.HasPrefix(packageName, "@") {
		if scope, _, ok := strings.Cut(packageName[1:], "/"); ok {
			if url, ok := c.ScopedRegistries[scope]; ok {
				return url
			}
		}
	}
	return c.Registry
}
