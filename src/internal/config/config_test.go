package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
app:
  name: shop
database:
  connections:
    default:
      url: mongodb://localhost:27017
      dbname: shop
      collection: sessions
session:
  timeout: 60
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	for _, key := range []string{"MONGODB_URL", "DB_NAME", "REDIS_URL", "REDIS_DB", "RABBITMQ_URL", "JWT_KEY", "SESSION_TIMEOUT"} {
		t.Setenv(key, "")
	}
}

func TestLoadFrom_AppliesSessionDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFrom(writeConfig(t, testConfig))
	require.NoError(t, err)

	s := cfg.Session
	assert.Equal(t, DriverMongoDB, s.Driver)
	assert.Equal(t, DefaultConnection, s.Connection)
	assert.Equal(t, 60, s.Timeout)
	assert.Equal(t, DefaultGCInterval, s.GCIntervalSeconds)
	assert.Equal(t, SaveHandlerUser, s.SaveHandler)
	assert.Equal(t, "shop", s.Name, "session name falls back to the application name")
	require.NotNil(t, s.UseCookies)
	assert.True(t, *s.UseCookies)
	assert.False(t, s.UseTransSid)
}

func TestLoadFrom_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONGODB_URL", "mongodb://db:27017")
	t.Setenv("DB_NAME", "override")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SESSION_TIMEOUT", "90")

	cfg, err := LoadFrom(writeConfig(t, testConfig))
	require.NoError(t, err)

	conn := cfg.Database.Connections["default"]
	assert.Equal(t, "mongodb://db:27017", conn.Url)
	assert.Equal(t, "override", conn.DbName)
	assert.Equal(t, "sessions", conn.Collection)
	assert.Equal(t, 3, cfg.Redis.Db)
	assert.Equal(t, 90, cfg.Session.Timeout)
}

func TestLoadFrom_MissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yml"))

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "config-file", cfgErr.Setting)
}

func TestSessionSettings_Apply_Rejects(t *testing.T) {
	no := false

	tests := []struct {
		name     string
		settings SessionSettings
		setting  string
	}{
		{"unknown connection", SessionSettings{Connection: "replica"}, "connection"},
		{"unknown driver", SessionSettings{Driver: "mysql"}, "driver"},
		{"negative timeout", SessionSettings{Timeout: -1}, "timeout"},
		{"foreign save handler", SessionSettings{SaveHandler: "files"}, "save-handler"},
		{"trans sid without cookies", SessionSettings{UseTransSid: true, UseCookies: &no}, "use-trans-sid"},
		{"invalid name", SessionSettings{Name: "my session"}, "name"},
		{"numeric name", SessionSettings{Name: "12345"}, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Configuration{
				App: Application{Name: "shop"},
				Database: Database{Connections: map[string]Connection{
					"default": {Url: "mongodb://localhost", DbName: "shop", Collection: "sessions"},
				}},
			}

			err := tt.settings.Apply(cfg)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
			assert.Equal(t, tt.setting, cfgErr.Setting)
			assert.Contains(t, err.Error(), "could not initialize the session")
		})
	}
}

func TestSessionSettings_Apply_MemoryDriverNeedsNoConnection(t *testing.T) {
	s := SessionSettings{Driver: DriverMemory}

	require.NoError(t, s.Apply(&Configuration{App: Application{Name: "shop"}}))
	assert.Equal(t, DefaultSessionTimeout, s.Timeout)
}
