// Licensed to LinDB under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. LinDB licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/vemoo/goose/pkg/logger"
)

// Version is the engine's build version, surfaced in the status API and
// --version output.
var Version = "unknown"

var validate = validator.New()

// Config is the top-level, operator-visible configuration for one process,
// whatever role (standalone/manager/worker) it runs as.
type Config struct {
	Pool        Pool           `envPrefix:"GOOSE_POOL_" toml:"pool"`
	Coordinator Coordinator    `envPrefix:"GOOSE_COORDINATOR_" toml:"coordinator"`
	Reporting   Reporting      `envPrefix:"GOOSE_REPORTING_" toml:"reporting"`
	Monitor     Monitor        `envPrefix:"GOOSE_MONITOR_" toml:"monitor"`
	Logging     logger.Setting `envPrefix:"GOOSE_LOGGING_" toml:"logging"`
}

// TOML returns Config's full toml configuration string.
func (c *Config) TOML() string {
	return fmt.Sprintf(`%s
%s
%s
%s
%s`,
		c.Pool.TOML(),
		c.Coordinator.TOML(),
		c.Reporting.TOML(),
		c.Monitor.TOML(),
		c.Logging.TOML("GOOSE"),
	)
}

// NewDefaultConfig returns a new Config populated with every section's
// defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Pool:        *NewDefaultPool(),
		Coordinator: *NewDefaultCoordinator(),
		Reporting:   *NewDefaultReporting(),
		Monitor:     *NewDefaultMonitor(),
		Logging:     *logger.NewDefaultSetting(),
	}
}

// NewDefaultConfigTOML renders the default configuration as toml, used by
// the init-config command to scaffold a starter file.
func NewDefaultConfigTOML() string {
	return NewDefaultConfig().TOML()
}

// CheckConfig fills in missing fields with defaults and rejects
// configuration errors. Callers that build a Config without going through
// LoadAndSetConfig (e.g. after forcing Coordinator.Role from a CLI
// subcommand) must call this explicitly to get the same validation.
func CheckConfig(cfg *Config) error {
	return checkConfig(cfg)
}

// checkConfig fills in missing fields with defaults and rejects
// configuration errors.
func checkConfig(cfg *Config) error {
	if err := checkPoolCfg(&cfg.Pool); err != nil {
		return err
	}
	if err := checkCoordinatorCfg(&cfg.Coordinator); err != nil {
		return err
	}
	if err := checkReportingCfg(&cfg.Reporting); err != nil {
		return err
	}
	return validate.Struct(cfg)
}

// LoadAndSetConfig reads the toml file at path (falling back to
// defaultPath when path is empty), decodes it into cfg, validates it, and
// fills in any unset field with its documented default. When path is empty
// and no file exists at defaultPath, cfg is replaced by NewDefaultConfig
// and validated. Only the toml file is read: environment variables are
// not consulted, whatever the struct tags name.
func LoadAndSetConfig(path, defaultPath string, cfg *Config) error {
	p := path
	if p == "" {
		p = defaultPath
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) && path == "" {
			*cfg = *NewDefaultConfig()
			return checkConfig(cfg)
		}
		return fmt.Errorf("read config file %s: %w", p, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", p, err)
	}

	return checkConfig(cfg)
}
