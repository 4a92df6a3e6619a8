package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var miningEnv = []string{
	"MINING_WG_ID", "MINING_WG_KEY", "MINING_API_URL", "MINING_AUTH_URL",
	"MINING_LOG_LEVEL", "MINING_TIMEOUT", "MINING_INSTANCE_CACHE", "MINING_CONCURRENCY",
	"MINING_TLS_INSECURE",
}

// isolate points HOME and the working directory at temp dirs, blanks the
// MINING_* variables and resets the global flags.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	for _, k := range miningEnv {
		t.Setenv(k, "")
	}

	orig := []string{flagAPIURL, flagAuthURL, flagWorkgroup, flagKey, flagProfile, flagFmt, flagLogLevel, flagMetricsAddr}
	flagAPIURL, flagAuthURL, flagWorkgroup, flagKey, flagProfile, flagLogLevel, flagMetricsAddr = "", "", "", "", "", "", ""
	flagFmt = "json"
	t.Cleanup(func() {
		flagAPIURL, flagAuthURL, flagWorkgroup, flagKey = orig[0], orig[1], orig[2], orig[3]
		flagProfile, flagFmt, flagLogLevel, flagMetricsAddr = orig[4], orig[5], orig[6], orig[7]
	})
	return home
}

func writeConfigFile(t *testing.T, home, content string) {
	t.Helper()
	dir := filepath.Join(home, ".mining")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

const profilesYAML = `
active_profile: staging
profiles:
  default:
    api_url: https://default.example.com
    auth_url: https://auth.default.example.com/realms/acme
    workgroup_id: wg-default
    workgroup_key: default-key
  staging:
    api_url: https://staging.example.com
    auth_url: https://auth.staging.example.com/realms/acme
    workgroup_id: wg-staging
    workgroup_key: staging-key
`

func TestResolveConfigActiveProfile(t *testing.T) {
	home := isolate(t)
	writeConfigFile(t, home, profilesYAML)

	cfg, err := resolveConfig()
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if cfg.APIURL != "https://staging.example.com" {
		t.Errorf("APIURL: got %q", cfg.APIURL)
	}
	if cfg.WorkgroupID != "wg-staging" || cfg.WorkgroupKey.Value() != "staging-key" {
		t.Errorf("credentials: got %q / %q", cfg.WorkgroupID, cfg.WorkgroupKey.Value())
	}
}

func TestResolveConfigNamedProfile(t *testing.T) {
	home := isolate(t)
	writeConfigFile(t, home, profilesYAML)
	flagProfile = "default"

	cfg, err := resolveConfig()
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if cfg.WorkgroupID != "wg-default" {
		t.Errorf("WorkgroupID: got %q, want wg-default", cfg.WorkgroupID)
	}
}

func TestResolveConfigEnvOverridesFile(t *testing.T) {
	home := isolate(t)
	writeConfigFile(t, home, profilesYAML)
	t.Setenv("MINING_WG_ID", "wg-env")

	cfg, err := resolveConfig()
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if cfg.WorkgroupID != "wg-env" {
		t.Errorf("env should win over the file; got %q", cfg.WorkgroupID)
	}
	if cfg.WorkgroupKey.Value() != "staging-key" {
		t.Errorf("unset env should fall back to the file; got %q", cfg.WorkgroupKey.Value())
	}
}

func TestResolveConfigFlagOverridesEnv(t *testing.T) {
	home := isolate(t)
	writeConfigFile(t, home, profilesYAML)
	t.Setenv("MINING_API_URL", "https://env.example.com")
	flagAPIURL = "http://127.0.0.1:8080"
	flagKey = "flag-key"
	flagLogLevel = "debug"

	cfg, err := resolveConfig()
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if cfg.APIURL != "http://127.0.0.1:8080" {
		t.Errorf("flag should win; got %q", cfg.APIURL)
	}
	if cfg.WorkgroupKey.Value() != "flag-key" {
		t.Errorf("flag key should win; got %q", cfg.WorkgroupKey.Value())
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q", cfg.LogLevel)
	}
}

func TestResolveConfigMissingEverything(t *testing.T) {
	isolate(t)

	_, err := resolveConfig()
	if err == nil || !strings.Contains(err.Error(), "MINING_WG_ID is required") {
		t.Errorf("expected missing workgroup error, got %v", err)
	}
}

func TestResolveConfigInvalidYAML(t *testing.T) {
	home := isolate(t)
	writeConfigFile(t, home, ":::not-yaml:::")
	flagAPIURL, flagAuthURL = "https://api.example.com", "https://auth.example.com/realms/acme"
	flagWorkgroup, flagKey = "wg", "key"

	if _, err := resolveConfig(); err != nil {
		t.Errorf("a malformed config file should be ignored, got %v", err)
	}
}

func TestResolveConfigRejectsPlainHTTP(t *testing.T) {
	isolate(t)
	flagAPIURL, flagAuthURL = "http://api.example.com", "https://auth.example.com/realms/acme"
	flagWorkgroup, flagKey = "wg", "key"

	_, err := resolveConfig()
	if err == nil || !strings.Contains(err.Error(), "must use HTTPS") {
		t.Errorf("expected HTTPS error, got %v", err)
	}
}

func TestWriteConfigKeepsOtherProfiles(t *testing.T) {
	home := isolate(t)
	writeConfigFile(t, home, profilesYAML)

	path, err := writeConfig("prod", configProfile{
		APIURL:       "https://prod.example.com",
		AuthURL:      "https://auth.prod.example.com/realms/acme",
		WorkgroupID:  "wg-prod",
		WorkgroupKey: "prod-key",
	})
	if err != nil {
		t.Fatalf("writeConfig: %v", err)
	}
	if path != filepath.Join(home, ".mining", "config.yaml") {
		t.Errorf("path: got %q", path)
	}

	_, cfg, err := readConfigFile()
	if err != nil {
		t.Fatalf("readConfigFile: %v", err)
	}
	if cfg.ActiveProfile != "prod" {
		t.Errorf("active profile: got %q", cfg.ActiveProfile)
	}
	if len(cfg.Profiles) != 3 {
		t.Errorf("expected 3 profiles, got %d", len(cfg.Profiles))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config mode: got %v, want 0600", info.Mode().Perm())
	}
}
