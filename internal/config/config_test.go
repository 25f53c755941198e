package config

import (
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestParseNpmrcAppliesKnownKeys(t *testing.T) {
	cfg := Default()
	parseNpmrc(cfg, strings.NewReader(`
; comment
registry = https://registry.example.com/
strict-ssl=false
max-retries = 5
http-timeout = 2000
@myorg:registry=https://npm.myorg.internal/
//npm.myorg.internal/:_authToken=abc123
`))

	assert.Equal(t, cfg.Registry, "https://registry.example.com/")
	assert.Assert(t, !cfg.StrictSSL)
	assert.Equal(t, cfg.MaxRetries, 5)
	assert.Equal(t, cfg.HTTPTimeout, 2*time.Second)
	assert.Equal(t, cfg.ScopedRegistries["myorg"], "https://npm.myorg.internal/")
	assert.Equal(t, cfg.AuthTokens["npm.myorg.internal"], "abc123")
}

func TestRegistryForUsesScopedOverride(t *testing.T) {
	cfg := Default()
	cfg.ScopedRegistries["myorg"] = "https://npm.myorg.internal/"

	assert.Equal(t, cfg.RegistryFor("@myorg/widget"), "https://npm.myorg.internal/")
	assert.Equal(t, cfg.RegistryFor("leftpad"), cfg.Registry)
	assert.Equal(t, cfg.RegistryFor("@other/widget"), cfg.Registry)
}

func TestApplyFileIgnoresMissingFile(t *testing.T) {
	cfg := Default()
	applyFile(cfg, "/nonexistent/path/.npmrc")
	assert.Equal(t, cfg.Registry, "https://registry.npmjs.org/")
}
