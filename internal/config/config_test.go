package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "harvester.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, filepath.Join(".", "harvester.log"), cfg.Log.File)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "downloads", cfg.Paths.Downloads)
	assert.Equal(t, 100, cfg.Harvest.MaxFileSizeMB)
	assert.Equal(t, int64(100*1024*1024), cfg.Harvest.SizeCapBytes())
	assert.Equal(t, 1, cfg.Harvest.Retries)
	assert.Equal(t, 30, cfg.Harvest.TimeoutSecs)
	assert.Contains(t, cfg.Harvest.QDAFormats, ".qdpx")
	assert.Contains(t, cfg.Harvest.RelevanceKeywords, "qualitative")
	assert.Contains(t, cfg.Harvest.ExcludedResourceTypes, "documentation")
	assert.Equal(t, "library-of-congress", cfg.Harvest.FolderNames["loc"])
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/qda
log:
  level: debug
  format: json
harvest:
  max_file_size_mb: 0
  qda_formats: [".qdpx", ".nvp"]
  folder_names:
    qdr: syracuse
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/qda", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{".qdpx", ".nvp"}, cfg.Harvest.QDAFormats)
	assert.Equal(t, "syracuse", cfg.Harvest.FolderNames["qdr"])
	assert.Equal(t, int64(0), cfg.Harvest.SizeCapBytes())
	// Defaults still apply for unset values
	assert.Equal(t, 120, cfg.Harvest.DownloadTimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("QDAH_STORE_DRIVER", "postgres")
	t.Setenv("QDAH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("QDAH_SERVER_PORT", "3000")
	t.Setenv("QDAH_HARVEST_MAX_FILE_SIZE_MB", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, int64(5*1024*1024), cfg.Harvest.SizeCapBytes())
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestPathsResolve(t *testing.T) {
	p := PathsConfig{Root: "/srv/qda"}
	assert.Equal(t, "/srv/qda/downloads", p.Resolve("downloads"))
	assert.Equal(t, "/tmp/x", p.Resolve("/tmp/x"))
	assert.Equal(t, "", p.Resolve(""))

	assert.Equal(t, "out", PathsConfig{}.Resolve("out"))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSONWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	err := InitLogger(LogConfig{Level: "info", Format: "json", File: path})
	require.NoError(t, err)

	zap.L().Info("hello")
	_ = zap.L().Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "harvester.db"
	cfg.Paths.Downloads = "downloads"
	cfg.Harvest.QDAFormats = DefaultQDAFormats
	cfg.Harvest.MaxFileSizeMB = 100
	cfg.Harvest.Retries = 1
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateHarvest(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("harvest"))

	cfg.Harvest.MaxFileSizeMB = -1
	cfg.Harvest.Retries = -2
	err := cfg.Validate("harvest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_file_size_mb must be >= 0")
	assert.Contains(t, err.Error(), "retries must be >= 0")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("browse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
