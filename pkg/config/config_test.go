package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "gh-token")
	t.Setenv("HCLOUD_TOKEN", "hcloud-token")
	t.Setenv("MINIO_S3_ACCESS_KEY_ID", "minio-key")
	t.Setenv("VERSION", "v1.2.3")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Listen)
	assert.Equal(t, 10*time.Minute, cfg.Server.RequestTimeout)
	assert.True(t, cfg.StackTracesExposed())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "gh-token", cfg.GitHub.Token)
	assert.Equal(t, "https://api.github.com/", cfg.GitHub.BaseURL)
	assert.Equal(t, 30, cfg.GitHub.RetentionDays)
	assert.Equal(t, time.Hour, cfg.GitHub.CleanupInterval)
	assert.Equal(t, "hcloud-token", cfg.Hetzner.Token)
	assert.Equal(t, "minio-key", cfg.ObjectStorage.AccessKeyID)
	assert.Equal(t, "v1.2.3", cfg.Build.Version)

	assert.Equal(t, ProviderHetzner, cfg.ExitNodes.Provider)
	assert.Equal(t, 2, cfg.ExitNodes.DefaultCount)
	assert.Equal(t, "jpillora/chisel:v1.10.1", cfg.ExitNodes.ChiselImage)
	assert.Equal(t, "hel1", cfg.Hetzner.DefaultLocation)
	assert.Equal(t, "cx22", cfg.Hetzner.DefaultServerType)
	assert.Len(t, cfg.Lightsail.Regions, len(LightsailRegions))

	nuke := cfg.GitHub.Workflows[WorkflowAWSAccountNuke]
	assert.Equal(t, "internal-GlueOps", nuke.Owner)
	assert.Equal(t, "gha-aws-cleanup", nuke.Repo)
	assert.Equal(t, "aws-nuke-account.yml", nuke.WorkflowID)
	assert.Equal(t, "refs/heads/main", nuke.Ref)

	assert.Equal(t, "fsn1.your-objectstorage.com", cfg.ObjectStorageEndpoint("fsn1"))
	assert.True(t, cfg.ObjectStorageSSL())
}

func TestLoadFileWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_GH_TOKEN", "expanded-token")
	t.Setenv("TEST_PG_PASSWORD", "secret")

	path := writeConfig(t, `
server:
  listen: ":9999"
  expose_stack_traces: false
database:
  driver: postgres
  postgres:
    host: db.internal
    database: tools
    user: tools
    password: ${TEST_PG_PASSWORD}
github:
  token: $TEST_GH_TOKEN
  base_url: https://ghe.example.com/api/v3
  workflows:
    aws-account-nuke:
      repo: custom-cleanup
      ref: refs/heads/release
exit_nodes:
  default_count: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Listen)
	assert.False(t, cfg.StackTracesExposed())
	assert.Equal(t, "expanded-token", cfg.GitHub.Token)
	assert.Equal(t, "https://ghe.example.com/api/v3/", cfg.GitHub.BaseURL)
	assert.Equal(t, 3, cfg.ExitNodes.DefaultCount)
	assert.Equal(t,
		"host=db.internal port=5432 user=tools password=secret dbname=tools sslmode=disable",
		cfg.GetDSN())

	nuke := cfg.GitHub.Workflows[WorkflowAWSAccountNuke]
	assert.Equal(t, "internal-GlueOps", nuke.Owner)
	assert.Equal(t, "custom-cleanup", nuke.Repo)
	assert.Equal(t, "aws-nuke-account.yml", nuke.WorkflowID)
	assert.Equal(t, "refs/heads/release", nuke.Ref)

	assert.NotContains(t, cfg.String(), "secret")
	assert.NotContains(t, cfg.String(), "expanded-token")
}

func TestExpandEnvVarsLeavesUnknownVariables(t *testing.T) {
	t.Setenv("KNOWN_VAR", "value")

	assert.Equal(t, "value ${UNKNOWN_VAR_XYZ} $UNKNOWN_VAR_XYZ",
		expandEnvVars("${KNOWN_VAR} ${UNKNOWN_VAR_XYZ} $UNKNOWN_VAR_XYZ"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "unsupported driver",
			content: "database:\n  driver: mysql\n",
			errMsg:  "unsupported database driver",
		},
		{
			name:    "postgres without host",
			content: "database:\n  driver: postgres\n",
			errMsg:  "postgres.host is required",
		},
		{
			name:    "auth without keys",
			content: "auth:\n  enabled: true\n",
			errMsg:  "auth.api_keys is required",
		},
		{
			name:    "auth with plaintext key",
			content: "auth:\n  enabled: true\n  api_keys:\n    - name: ci\n      hash: plaintext\n",
			errMsg:  "must be a bcrypt hash",
		},
		{
			name:    "unknown provider",
			content: "exit_nodes:\n  provider: digitalocean\n",
			errMsg:  "unsupported exit node provider",
		},
		{
			name:    "default location outside supported set",
			content: "hetzner:\n  default_location: mars1\n",
			errMsg:  "hetzner.default_location",
		},
		{
			name:    "lightsail unknown region",
			content: "exit_nodes:\n  provider: lightsail\nlightsail:\n  regions: [moon-1]\n  default_region: moon-1\n",
			errMsg:  "unsupported region moon-1",
		},
		{
			name:    "default count above max",
			content: "exit_nodes:\n  default_count: 9\n  max_count: 4\n",
			errMsg:  "exit_nodes.default_count",
		},
		{
			name:    "storage region outside supported set",
			content: "object_storage:\n  default_region: ash\n",
			errMsg:  "object_storage.default_region",
		},
		{
			name:    "endpoint template without placeholder",
			content: "object_storage:\n  endpoint_template: s3.example.com\n",
			errMsg:  "endpoint_template must contain {region}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
