package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	cfg, status, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, status)
	assert.Equal(t, Default(), cfg)

	again, status, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StatusLoaded, status)
	assert.Equal(t, cfg, again)
}

func TestLoadRecoversCorruptDocument(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{configuration"},
		{"missing list", `{"other": []}`},
		{"bad int", `{"configuration":[{"constant_name":"borrow_date","value_type":"int","value":"seven"}]}`},
		{"out of range", `{"configuration":[{"constant_name":"max_static_id","value_type":"int","value":500}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			cfg, status, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, StatusRecovered, status)
			assert.Equal(t, Default(), cfg)

			_, status, err = Load(path)
			require.NoError(t, err)
			assert.Equal(t, StatusLoaded, status)
		})
	}
}

func TestLoadCoercesTypesAndFillsCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	doc := `{"configuration":[
		{"constant_name":"borrow_date","value_type":"int","value":"14"},
		{"constant_name":"max_borrow_count","value_type":"int","value":5},
		{"constant_name":"overdue_penalty_scale","value_type":"float","value":"1.5"},
		{"constant_name":"unused","value_type":"str","value":"ignored"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, status, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StatusLoaded, status)
	assert.Equal(t, 14, cfg.LoanDays)
	assert.Equal(t, 5, cfg.MaxBorrowCount)
	assert.InDelta(t, 1.5, cfg.PenaltyScale, 1e-9)
	assert.Equal(t, "X", cfg.Cancel)
	assert.Equal(t, 99, cfg.MaxStaticID)
}

func TestSaveRoundTripYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "libsys.yaml")
	want := Default()
	want.LoanDays = 10
	want.Cancel = "Q"
	want.PenaltyScale = 0.5

	require.NoError(t, Save(path, want))
	got, status, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StatusLoaded, status)
	assert.Equal(t, want, got)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"negative loan", func(c *Config) { c.LoanDays = -1 }, "borrow_date"},
		{"empty cancel", func(c *Config) { c.Cancel = " " }, "cancel"},
		{"ceiling", func(c *Config) { c.MaxStaticID = 100 }, "max_static_id"},
		{"isbn ceiling", func(c *Config) { c.MaxISBN = -1 }, "max_isbn"},
		{"borrow count", func(c *Config) { c.MaxBorrowCount = 0 }, "max_borrow_count"},
		{"scale", func(c *Config) { c.PenaltyScale = -0.1 }, "overdue_penalty_scale"},
		{"longest loan", func(c *Config) { c.LoanDays = MaxLoanDays }, ""},
		{"loan past ceiling", func(c *Config) { c.LoanDays = 3000000 }, "borrow_date"},
		{"scale past ceiling", func(c *Config) { c.PenaltyScale = 1e18 }, "overdue_penalty_scale"},
		{"scale not a number", func(c *Config) { c.PenaltyScale = math.NaN() }, "overdue_penalty_scale"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// chdir moves the test into dir for its duration.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LIBSYS_HOME", "/srv/library")
	t.Setenv("LIBSYS_LOG_LEVEL", "")
	t.Setenv("LIBSYS_LOG_FORMAT", "")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "/srv/library", env.Home)
	assert.Equal(t, "info", env.LogLevel)
	assert.Equal(t, "text", env.LogFormat)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("LIBSYS_LOG_FORMAT", "")
	require.NoError(t, os.Unsetenv("LIBSYS_LOG_FORMAT"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LIBSYS_LOG_FORMAT=json\n"), 0o644))

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "json", env.LogFormat)
}
