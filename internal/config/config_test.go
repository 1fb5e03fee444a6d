package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/wardrobe-weather/internal/store"
)

const minimalEnvYAML = `
server:
  port: "8080"
weather_api:
  url: "https://api.example.com/timeline"
  timeout: "2s"
request:
  timeout: "5s"
store:
  backend: in_memory
reliability:
  rate_limit_rps: 5
  rate_limit_burst: 10
shutdown:
  timeout: "10s"
`

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ENV_NAME", "PORT", "WEATHER_API_KEY", "WEATHER_API_URL", "STORE_BACKEND", "SQLITE_PATH", "DATABASE_URL", "MEMCACHED_ADDRS"} {
		t.Setenv(k, "")
	}
}

// inProject writes config/dev.yaml into a temp dir and chdirs there for the test.
func inProject(t *testing.T, content string) string {
	t.Helper()
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, content)
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	return dir
}

func TestLoad_MissingAPIKeyIsNotAnError(t *testing.T) {
	inProject(t, minimalEnvYAML)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil when no API key is configured", err)
	}
	if cfg.WeatherAPIKey != "" {
		t.Errorf("WeatherAPIKey = %q, want empty", cfg.WeatherAPIKey)
	}
}

func TestLoad_SucceedsWithSecretsFile(t *testing.T) {
	dir := inProject(t, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: key-from-secrets-file\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-secrets-file" {
		t.Errorf("WeatherAPIKey = %q, want key from secrets file", cfg.WeatherAPIKey)
	}
}

func TestLoad_EnvVarOverridesSecretsFile(t *testing.T) {
	dir := inProject(t, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: from-file\n")
	t.Setenv("WEATHER_API_KEY", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "from-env" {
		t.Errorf("WeatherAPIKey = %q, want from-env", cfg.WeatherAPIKey)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := inProject(t, minimalEnvYAML)
	os.Unsetenv("WEATHER_API_KEY")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WEATHER_API_KEY=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("WEATHER_API_KEY") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "from-dotenv" {
		t.Errorf("WeatherAPIKey = %q, want from-dotenv", cfg.WeatherAPIKey)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	inProject(t, minimalEnvYAML)
	t.Setenv("ENV_NAME", "nonexistent")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	inProject(t, "server: [unclosed\n")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Fatalf("Load() error = %v, want parse config file error", err)
	}
}

func TestLoad_InvalidSecretsYAML(t *testing.T) {
	dir := inProject(t, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: [broken\n")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse secrets file") {
		t.Fatalf("Load() error = %v, want parse secrets file error", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	inProject(t, "server:\n  port: \"9090\"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.StoreBackend != store.BackendMemory {
		t.Errorf("StoreBackend = %q, want in_memory", cfg.StoreBackend)
	}
	if cfg.DefaultUnitGroup != "us" {
		t.Errorf("DefaultUnitGroup = %q, want us", cfg.DefaultUnitGroup)
	}
	if cfg.WeatherAPITimeout != 10*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want 10s", cfg.WeatherAPITimeout)
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		t.Errorf("RequestTimeout = %v, want > WeatherAPITimeout", cfg.RequestTimeout)
	}
	if !cfg.BreakerEnabled || cfg.BreakerFailureThreshold != 5 || cfg.BreakerOpenTimeout != 30*time.Second {
		t.Errorf("breaker = %v/%d/%v, want enabled/5/30s", cfg.BreakerEnabled, cfg.BreakerFailureThreshold, cfg.BreakerOpenTimeout)
	}
	if !cfg.MCPEnabled {
		t.Error("MCPEnabled = false, want true by default")
	}
	if cfg.WarmingInterval != 15*time.Minute {
		t.Errorf("WarmingInterval = %v, want 15m", cfg.WarmingInterval)
	}
	if cfg.WarmingDaysBack != 1 {
		t.Errorf("WarmingDaysBack = %d, want 1", cfg.WarmingDaysBack)
	}
	if cfg.WarmingLocation() != time.UTC {
		t.Errorf("WarmingLocation() = %v, want UTC", cfg.WarmingLocation())
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	inProject(t, minimalEnvYAML+"health:\n  overload_window: \"invalid\"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OverloadWindow != 60*time.Second {
		t.Errorf("OverloadWindow = %v, want default 60s", cfg.OverloadWindow)
	}
}

func TestLoad_ValidationFailsWhenWeatherAPITimeoutZero(t *testing.T) {
	inProject(t, "weather_api:\n  timeout: \"0s\"\n")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "weather_api.timeout") {
		t.Fatalf("Load() error = %v, want weather_api.timeout validation error", err)
	}
}

func TestLoad_RequestTimeoutRaisedAboveAPITimeout(t *testing.T) {
	inProject(t, "weather_api:\n  timeout: \"5s\"\nrequest:\n  timeout: \"2s\"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 6*time.Second {
		t.Errorf("RequestTimeout = %v, want 6s", cfg.RequestTimeout)
	}
}

func TestLoad_StoreBackend(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		want    string
		wantErr string
	}{
		{name: "sqlite from file", yaml: "store:\n  backend: SQLite\n", want: store.BackendSQLite},
		{name: "env override", yaml: minimalEnvYAML, env: map[string]string{"STORE_BACKEND": "memcached"}, want: store.BackendMemcached},
		{name: "postgres with dsn", yaml: "store:\n  backend: postgres\n", env: map[string]string{"DATABASE_URL": "postgres://localhost/weather"}, want: store.BackendPostgres},
		{name: "postgres without dsn", yaml: "store:\n  backend: postgres\n", wantErr: "DATABASE_URL"},
		{name: "unknown", yaml: "store:\n  backend: redis\n", wantErr: "store.backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inProject(t, tt.yaml)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.StoreBackend != tt.want {
				t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, tt.want)
			}
			if opts := cfg.StoreOptions(); opts.Backend != tt.want {
				t.Errorf("StoreOptions().Backend = %q, want %q", opts.Backend, tt.want)
			}
		})
	}
}

func TestLoad_DatabaseURLFromSecrets(t *testing.T) {
	dir := inProject(t, "store:\n  backend: postgres\n  postgres:\n    dsn: postgres://file/db\n")
	writeSecretsFile(t, dir, "database_url: postgres://secret/db\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PostgresDSN != "postgres://secret/db" {
		t.Errorf("PostgresDSN = %q, want secrets value", cfg.PostgresDSN)
	}
}

func TestLoad_DefaultUnitGroup(t *testing.T) {
	inProject(t, "weather_api:\n  default_unit_group: Metric\n")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultUnitGroup != "metric" {
		t.Errorf("DefaultUnitGroup = %q, want metric", cfg.DefaultUnitGroup)
	}

	inProject(t, "weather_api:\n  default_unit_group: kelvin\n")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "default_unit_group") {
		t.Fatalf("Load() error = %v, want default_unit_group error", err)
	}
}

func TestLoad_Warming(t *testing.T) {
	inProject(t, minimalEnvYAML+`
warming:
  interval: "30m"
  time_zone: "America/Los_Angeles"
  locations:
    - name: home
      latitude: 38.2919
      longitude: -122.458
`)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WarmingInterval != 30*time.Minute {
		t.Errorf("WarmingInterval = %v, want 30m", cfg.WarmingInterval)
	}
	if len(cfg.WarmingLocations) != 1 || cfg.WarmingLocations[0].Name != "home" || cfg.WarmingLocations[0].Latitude != 38.2919 {
		t.Errorf("WarmingLocations = %+v", cfg.WarmingLocations)
	}
	if cfg.WarmingLocation().String() != "America/Los_Angeles" {
		t.Errorf("WarmingLocation() = %v", cfg.WarmingLocation())
	}
}

func TestLoad_WarmingDaysBack(t *testing.T) {
	inProject(t, "warming:\n  days_back: 0\n")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WarmingDaysBack != 0 {
		t.Errorf("WarmingDaysBack = %d, want explicit 0 kept", cfg.WarmingDaysBack)
	}

	inProject(t, "warming:\n  days_back: -1\n")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "warming.days_back") {
		t.Fatalf("Load() error = %v, want days_back error", err)
	}
}

func TestLoad_WarmingInvalidLocation(t *testing.T) {
	inProject(t, `
warming:
  locations:
    - name: nowhere
      latitude: 123
      longitude: 0
`)
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "warming.locations[0] (nowhere)") {
		t.Fatalf("Load() error = %v, want invalid warming location", err)
	}
}

func TestLoad_WarmingInvalidTimeZone(t *testing.T) {
	inProject(t, "warming:\n  time_zone: \"Mars/Olympus\"\n")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "warming.time_zone") {
		t.Fatalf("Load() error = %v, want time zone error", err)
	}
}

func TestLoad_FeatureToggles(t *testing.T) {
	inProject(t, `
reliability:
  circuit_breaker:
    enabled: false
mcp:
  enabled: false
`)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BreakerEnabled {
		t.Error("BreakerEnabled = true, want false")
	}
	if cfg.MCPEnabled {
		t.Error("MCPEnabled = true, want false")
	}
}

// TestLoad_ProjectDevConfig verifies the checked-in config/dev.yaml loads.
func TestLoad_ProjectDevConfig(t *testing.T) {
	root := findProjectRoot(t)
	clearEnv(t)
	origWd, _ := os.Getwd()
	if err := os.Chdir(root); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
