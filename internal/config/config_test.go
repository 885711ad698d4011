package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/api/1.0", cfg.Server.APIPrefix)
	assert.Equal(t, 10, cfg.Pagination.DefaultSize)
	assert.Equal(t, 10, cfg.Pagination.MaxSize)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, 10*time.Second, cfg.Mail.SendTimeout)
	assert.Equal(t, "en", cfg.I18n.DefaultLanguage)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 8081
database:
  driver: sqlite
  path: ` + filepath.Join(dir, "test.db") + `
mail:
  host: smtp.example.com
  port: 2525
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("HOAXIFY_MAIL_PORT", "2626")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "smtp.example.com", cfg.Mail.Host)
	assert.Equal(t, 2626, cfg.Mail.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:     ServerConfig{Port: 3000, APIPrefix: "/api/1.0"},
			Database:   DatabaseConfig{Driver: "sqlite", Path: "db.sqlite"},
			Mail:       MailConfig{Host: "localhost", Port: 25, TLSPolicy: "none", SendTimeout: time.Second},
			Auth:       AuthConfig{BcryptCost: 10},
			Logging:    LoggingConfig{Level: "info"},
			Pagination: PaginationConfig{DefaultSize: 10, MaxSize: 10},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "bad prefix", mutate: func(c *Config) { c.Server.APIPrefix = "api" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: true},
		{name: "postgres without host", mutate: func(c *Config) {
			c.Database = DatabaseConfig{Driver: "postgres", User: "u", Database: "d"}
		}, wantErr: true},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "bad tls policy", mutate: func(c *Config) { c.Mail.TLSPolicy = "always" }, wantErr: true},
		{name: "zero send timeout", mutate: func(c *Config) { c.Mail.SendTimeout = 0 }, wantErr: true},
		{name: "bcrypt cost too low", mutate: func(c *Config) { c.Auth.BcryptCost = 2 }, wantErr: true},
		{name: "page size above max", mutate: func(c *Config) { c.Pagination.DefaultSize = 20 }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// chdir changes the working directory for the duration of the test
// (stand-in for testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
