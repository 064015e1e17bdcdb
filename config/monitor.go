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
	"time"

	"github.com/lindb/common/pkg/ltoml"
)

// Monitor configures internal/monitoring's host resource sampler.
type Monitor struct {
	// DataPath is the filesystem path disk usage is sampled for.
	DataPath string `env:"DATA_PATH" toml:"data-path" validate:"required"`
	// ReportInterval is how often CPU/memory/disk/network are sampled.
	// Sampling is disabled entirely when set to 0.
	ReportInterval ltoml.Duration `env:"REPORT_INTERVAL" toml:"report-interval"`
}

// TOML returns Monitor's toml config.
func (m *Monitor) TOML() string {
	return fmt.Sprintf(`
## Config for the host resource monitor
[monitor]
## filesystem path disk usage is sampled for
## Default: %s
data-path = "%s"
## sampling interval for cpu, memory, disk and network stats
## monitor won't start when interval is set to 0
## Default: %s
report-interval = "%s"`,
		m.DataPath,
		m.DataPath,
		m.ReportInterval.String(),
		m.ReportInterval.String(),
	)
}

// NewDefaultMonitor returns a new default monitor config.
func NewDefaultMonitor() *Monitor {
	return &Monitor{
		DataPath:       "./",
		ReportInterval: ltoml.Duration(10 * time.Second),
	}
}
