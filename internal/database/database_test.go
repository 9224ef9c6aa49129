package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airstat/airstat/internal/database"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_CONN_MAX_LIFETIME"} {
		t.Setenv(key, "")
	}

	cfg, err := database.ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, database.Config{
		Host:            "localhost",
		Port:            5432,
		User:            "airstat",
		Password:        "localdev",
		Name:            "airstat",
		SSLMode:         "disable",
		MaxConns:        10,
		MaxConnLifetime: 30 * time.Minute,
	}, cfg)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6432")
	t.Setenv("DB_MAX_CONNS", "4")
	t.Setenv("DB_MIN_CONNS", "2")
	t.Setenv("DB_CONN_MAX_LIFETIME", "1h")

	cfg, err := database.ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 6432, cfg.Port)
	assert.Equal(t, 4, cfg.MaxConns)
	assert.Equal(t, 2, cfg.MinConns)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
}

func TestConfigFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"port not a number", map[string]string{"DB_PORT": "fivefour"}, "DB_PORT"},
		{"negative max conns", map[string]string{"DB_MAX_CONNS": "-1"}, "DB_MAX_CONNS"},
		{"bad lifetime", map[string]string{"DB_CONN_MAX_LIFETIME": "soon"}, "DB_CONN_MAX_LIFETIME"},
		{"min above max", map[string]string{"DB_MAX_CONNS": "2", "DB_MIN_CONNS": "3"}, "DB_MIN_CONNS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := database.ConfigFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_URLEscapesCredentials(t *testing.T) {
	cfg := database.Config{
		Host:     "db.internal",
		Port:     5432,
		User:     "air stat",
		Password: "p@ss:w/rd?",
		Name:     "airstat",
		SSLMode:  "require",
	}

	u := cfg.URL()
	assert.Equal(t, "db.internal:5432", u.Host)
	assert.Equal(t, "air stat", u.User.Username())
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss:w/rd?", pw)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
	assert.Equal(t, database.ApplicationName, u.Query().Get("application_name"))

	assert.NotContains(t, cfg.Redacted(), "p@ss")
}

func TestConfig_PoolConfig(t *testing.T) {
	cfg := database.Config{
		Host:            "::1",
		Port:            5433,
		User:            "airstat",
		Password:        "p@ss:w/rd?",
		Name:            "airstat",
		SSLMode:         "disable",
		MaxConns:        7,
		MinConns:        2,
		MaxConnLifetime: 15 * time.Minute,
	}

	poolConfig, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(7), poolConfig.MaxConns)
	assert.Equal(t, int32(2), poolConfig.MinConns)
	assert.Equal(t, 15*time.Minute, poolConfig.MaxConnLifetime)
	assert.Equal(t, "::1", poolConfig.ConnConfig.Host)
	assert.Equal(t, uint16(5433), poolConfig.ConnConfig.Port)
	assert.Equal(t, "p@ss:w/rd?", poolConfig.ConnConfig.Password)
	assert.Equal(t, database.ApplicationName, poolConfig.ConnConfig.RuntimeParams["application_name"])
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := database.Config{Host: "127.0.0.1", Port: 1, User: "airstat", Password: "secret", Name: "airstat", SSLMode: "disable"}
	_, err := database.Connect(ctx, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect postgres")
	assert.NotContains(t, err.Error(), "secret")
}
