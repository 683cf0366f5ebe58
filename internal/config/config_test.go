package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6380", cfg.Server.BindAddress)
	assert.Equal(t, 30, cfg.Cache.TTLSeconds)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prismcache.toml")
	contents := `
[server]
bind_address = "0.0.0.0:7000"

[cache]
max_entries = 50000
ttl_seconds = 60

[[database.providers]]
name = "users"
provider = "Mock"

[database.providers.settings]
sample_size = "500"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", cfg.Server.BindAddress)
	assert.Equal(t, 50000, cfg.Cache.MaxEntries)
	assert.Equal(t, 60, cfg.Cache.TTLSeconds)
	require.Len(t, cfg.Database.Providers, 1)
	assert.Equal(t, "users", cfg.Database.Providers[0].Name)
	assert.Equal(t, "Mock", cfg.Database.Providers[0].Provider)
	assert.Equal(t, "500", cfg.Database.Providers[0].Settings["sample_size"])
}

func TestLoad_PostgresProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prismcache.toml")
	contents := `
[cache]
max_entries = 1000
ttl_seconds = 30

[[database.providers]]
name = "orders"
provider = "Postgres"

[database.providers.settings]
user = "prismcache"
password = "secret"
host = "localhost"
port = "5432"
dbname = "orders"
fields = "id,status"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Database.Providers, 1)
	p := cfg.Database.Providers[0]
	assert.Equal(t, "Postgres", p.Provider)
	assert.Equal(t, "localhost", p.Settings["host"])
	assert.Equal(t, "id,status", p.Settings["fields"])
}

func TestLoad_AzDeltaProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prismcache.toml")
	contents := `
[cache]
max_entries = 1000
ttl_seconds = 30

[[database.providers]]
name = "events"
provider = "AzDelta"

[database.providers.settings]
delta_table_name = "events"
delta_table_path = "/tmp/events.parquet"
delta_record_query = "id = '{}'"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Database.Providers, 1)
	p := cfg.Database.Providers[0]
	assert.Equal(t, "AzDelta", p.Provider)
	assert.Equal(t, "id = '{}'", p.Settings["delta_record_query"])
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PRISM_CACHE__SERVER__BIND_ADDRESS", "0.0.0.0:9999")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.BindAddress)
}

func TestLoad_EnvOverrideFetchTimeout(t *testing.T) {
	t.Setenv("PRISM_CACHE__CACHE__FETCH_TIMEOUT_SECONDS", "2")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.FetchTimeout())
}

func TestValidate_ZeroMaxEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prismcache.toml")
	contents := `
[cache]
max_entries = 0
ttl_seconds = 30
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_DuplicateProviderName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prismcache.toml")
	contents := `
[[database.providers]]
name = "users"
provider = "Mock"

[[database.providers]]
name = "users"
provider = "Mock"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_PostgresMissingSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prismcache.toml")
	contents := `
[[database.providers]]
name = "orders"
provider = "Postgres"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_UnknownProviderKind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prismcache.toml")
	contents := `
[[database.providers]]
name = "mystery"
provider = "carrier-pigeon"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
