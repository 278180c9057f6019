package config

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/rcarmo/go-ash/pkg/sandbox"
	"github.com/rcarmo/go-ash/pkg/testutil"
)

func TestBuiltinConfig(t *testing.T) {
	rawConfig := make(map[string]interface{})
	assert.Nil(t, yaml.Unmarshal(defaultConfigData, &rawConfig))

	knownFields := make(map[string]bool)
	rt := reflect.TypeOf(Configuration{})
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		jsonField := strings.Split(field.Tag.Get("json"), ",")[0]
		assert.NotEmpty(t, jsonField)
		knownFields[jsonField] = true

		if _, ok := rawConfig[jsonField]; !ok {
			assert.Fail(t, "default config missing field", jsonField)
		}
	}
	for k := range rawConfig {
		assert.True(t, knownFields[k], "default config contains invalid field: %q", k)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "$ ", cfg.Prompt)
	assert.Equal(t, 64, cfg.MaxJobs)
	assert.Nil(t, cfg.Interactive)
	assert.Nil(t, cfg.Sandbox())
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
		check   func(t *testing.T, cfg *Configuration)
	}{
		{
			name:    "override",
			content: "prompt: \"ash> \"\ninteractive: false\nmax_jobs: 8\n",
			check: func(t *testing.T, cfg *Configuration) {
				assert.Equal(t, "ash> ", cfg.Prompt)
				assert.Equal(t, 8, cfg.MaxJobs)
				require.NotNil(t, cfg.Interactive)
				assert.False(t, *cfg.Interactive)
				assert.True(t, cfg.Color, "unset keys keep their defaults")
			},
		},
		{
			name:    "unknown_field",
			content: "promtp: x\n",
			wantErr: "promtp",
		},
		{
			name:    "invalid_max_jobs",
			content: "max_jobs: 0\n",
			wantErr: "max_jobs",
		},
		{
			name:    "empty_path",
			content: "restricted:\n  enabled: true\n  allowed_paths: [\"\"]\n",
			wantErr: "allowed_paths",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.TempFile(t, ConfigurationName, tt.content)
			cfg, err := Load(path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadDirectoryAndMissing(t *testing.T) {
	dir := testutil.TempDirWithFiles(t, map[string]string{ConfigurationName: "trace: true\n"})
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, cfg.Trace)

	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSandbox(t *testing.T) {
	cfg := Default()
	cfg.Restricted = Restricted{
		Enabled:       true,
		AllowedPaths:  []string{"/usr"},
		WritablePaths: []string{"/tmp"},
	}
	sc := cfg.Sandbox()
	require.NotNil(t, sc)
	assert.True(t, sc.AllowCwd)
	assert.Equal(t, sandbox.PermRead, sc.CwdPermission)
	assert.Equal(t, []sandbox.PathRule{
		{Path: "/usr", Permission: sandbox.PermRead},
		{Path: "/tmp", Permission: sandbox.PermRead | sandbox.PermWrite},
	}, sc.AllowedPaths)
}

func TestHistoryPath(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "/home/u/.ash_history", cfg.HistoryPath("/home/u"))
	cfg.HistoryFile = "/var/h"
	assert.Equal(t, "/var/h", cfg.HistoryPath("/home/u"))
	cfg.HistoryFile = ""
	assert.Equal(t, "", cfg.HistoryPath("/home/u"))
}
