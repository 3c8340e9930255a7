package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("CONFIG_PATH", path)
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	writeConfig(t, `
server:
  port: 9090
database:
  driver: sqlite
  dsn: ":memory:"
chat:
  burst: 3
`)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, ":memory:", cfg.Database.DSN)
	assert.Equal(t, 3, cfg.Chat.Burst)
	assert.Equal(t, 500, cfg.Chat.MaxMessageLength)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, 30*time.Second, cfg.Leaderboard.CacheTTL)
	assert.EqualValues(t, 10, cfg.Points.DefaultActivityReward)
}

func TestLoad_EnvOverrides(t *testing.T) {
	writeConfig(t, "database:\n  driver: sqlite\n")
	t.Setenv("NEXUS_SERVER_PORT", "7000")
	t.Setenv("NEXUS_JWT_SECRET", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{Mode: "debug"},
			Database: DatabaseConfig{Driver: "postgres", DSN: "host=db"},
			JWT:      JWTConfig{Secret: "s3cret"},
			Chat:     ChatConfig{MaxMessageLength: 500},
		}
	}
	cfg := valid()
	require.NoError(t, cfg.Validate())

	cases := map[string]func(c *Config){
		"driver":         func(c *Config) { c.Database.Driver = "mysql" },
		"dsn":            func(c *Config) { c.Database.DSN = "" },
		"secret":         func(c *Config) { c.JWT.Secret = "" },
		"release secret": func(c *Config) { c.Server.Mode = "release"; c.JWT.Secret = "change-me" },
		"message length": func(c *Config) { c.Chat.MaxMessageLength = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
