package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, RoleMember, cfg.Role)

	// The default file must exist afterwards, and only the owner may read it
	// (it will carry the API token once filled in).
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	in := DefaultConfig()
	in.Listen = "0.0.0.0:9000"
	in.Role = RoleTrainer
	in.AccountID = "trainer-7"
	in.API = APIConfig{BaseURL: "https://sched.example.com", Token: "secret"}
	in.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}
	require.NoError(t, Save(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, in.Listen, out.Listen)
	assert.Equal(t, RoleTrainer, out.Role)
	assert.Equal(t, "trainer-7", out.AccountID)
	assert.Equal(t, "secret", out.API.Token)
	require.NotNil(t, out.BasicAuth)
	assert.Equal(t, "u", out.BasicAuth.Username)
}

func TestLoad_PartialFileNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("role: dispatcher\napi:\n  base_url: https://sched.example.com\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "Asia/Seoul", cfg.Timezone)
	assert.Equal(t, "*/15 * * * *", cfg.RefreshCron)
	// Unknown role falls back to the least privileged one.
	assert.Equal(t, RoleMember, cfg.Role)
	assert.Equal(t, 1280, cfg.Capture.Width)
	assert.Equal(t, 800, cfg.Capture.Height)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate())

	cfg.API.BaseURL = "https://sched.example.com"
	require.Error(t, cfg.Validate())

	cfg.AccountID = "member-1"
	require.NoError(t, cfg.Validate())
}
