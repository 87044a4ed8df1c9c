// Copyright (c) 2026 Amun AI AB
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package hypha

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hypha.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
port: 9527
jwt_secret: hush
server_id: node-1
clustered: true
redis_addr: redis:6379
method_timeout_s: 30
cluster_options:
  heartbeat_interval_s: 10
  server_ttl_s: 45
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9527, cfg.Port)
	assert.Equal(t, "hush", cfg.JWTSecret)
	assert.Equal(t, "node-1", cfg.ServerID)
	assert.True(t, cfg.Clustered)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 30, cfg.MethodTimeoutS)
	assert.Equal(t, 10, cfg.ClusterOptions.HeartbeatIntervalS)
	assert.Equal(t, 45, cfg.ClusterOptions.ServerTTLS)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := writeConfigFile(t, "port: [not a port")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.applyDefaults())
	assert.NotEmpty(t, cfg.ServerID)
	assert.Equal(t, DefaultMethodTimeoutS, cfg.MethodTimeoutS)
	assert.Equal(t, DefaultHeartbeatIntervalS, cfg.ClusterOptions.HeartbeatIntervalS)
	assert.Equal(t, DefaultCleanupIntervalS, cfg.ClusterOptions.CleanupIntervalS)
	assert.Equal(t, DefaultServerTTLS, cfg.ClusterOptions.ServerTTLS)
}

func TestApplyDefaultsRejectsURLWithPort(t *testing.T) {
	cfg := Config{URL: "https://hypha.example", Port: 9527}
	require.Error(t, cfg.applyDefaults())
}
