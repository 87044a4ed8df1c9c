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
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"

	"github.com/amun-ai/hypha-go/service"
)

// Defaults for the timing knobs, in seconds.
const (
	DefaultMethodTimeoutS     = 60
	DefaultHeartbeatIntervalS = 30
	DefaultCleanupIntervalS   = 60
	DefaultServerTTLS         = 90
)

// ClusterOptions tunes the cluster coordinator.
type ClusterOptions struct {
	HeartbeatIntervalS int `yaml:"heartbeat_interval_s"`
	CleanupIntervalS   int `yaml:"cleanup_interval_s"`
	ServerTTLS         int `yaml:"server_ttl_s"`
}

// Config specifies the parameters of a Router constructed via New.
type Config struct {
	// URL is the public base URL; Port is the TCP port to bind. They are
	// mutually exclusive.
	URL  string `yaml:"url"`
	Port int    `yaml:"port"`

	// JWTSecret enables JWT verification and minting when present.
	JWTSecret string `yaml:"jwt_secret"`

	// ServerID is this router instance's stable identifier. A random one is
	// generated when empty.
	ServerID string `yaml:"server_id"`

	// Clustered enables the cluster coordinator.
	Clustered bool   `yaml:"clustered"`
	RedisAddr string `yaml:"redis_addr"`

	MethodTimeoutS int            `yaml:"method_timeout_s"`
	ClusterOptions ClusterOptions `yaml:"cluster_options"`

	// DefaultService holds extra members installed on every workspace
	// service. It is set programmatically, not from YAML.
	DefaultService map[string]*service.Method `yaml:"-"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.URL != "" && c.Port != 0 {
		return fmt.Errorf("config: url and port are mutually exclusive")
	}
	if c.ServerID == "" {
		c.ServerID = uuid.NewString()
	}
	if c.MethodTimeoutS <= 0 {
		c.MethodTimeoutS = DefaultMethodTimeoutS
	}
	if c.ClusterOptions.HeartbeatIntervalS <= 0 {
		c.ClusterOptions.HeartbeatIntervalS = DefaultHeartbeatIntervalS
	}
	if c.ClusterOptions.CleanupIntervalS <= 0 {
		c.ClusterOptions.CleanupIntervalS = DefaultCleanupIntervalS
	}
	if c.ClusterOptions.ServerTTLS <= 0 {
		c.ClusterOptions.ServerTTLS = DefaultServerTTLS
	}
	return nil
}
