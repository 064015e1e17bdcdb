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

// Pool represents the simulated-user population for one run: ramp-up rate,
// target size, target host, and global inter-task wait bounds. The wait
// bounds are validated but not applied to users, which wait by their task
// set's own bounds.
type Pool struct {
	Host      string         `env:"HOST" toml:"host" validate:"required,url"`
	Users     int            `env:"USERS" toml:"users" validate:"required,min=1"`
	HatchRate int            `env:"HATCH_RATE" toml:"hatch-rate" validate:"required,min=1"`
	RunTime   ltoml.Duration `env:"RUN_TIME" toml:"run-time"`
	MinWait   ltoml.Duration `env:"MIN_WAIT" toml:"min-wait"`
	MaxWait   ltoml.Duration `env:"MAX_WAIT" toml:"max-wait"`
	// RequestTimeout bounds a single HTTP round trip.
	RequestTimeout ltoml.Duration `env:"REQUEST_TIMEOUT" toml:"request-timeout"`
	// ShutdownGrace bounds how long the pool controller waits for users to
	// finish on-stop after EXIT is broadcast before abandoning stragglers.
	ShutdownGrace ltoml.Duration `env:"SHUTDOWN_GRACE" toml:"shutdown-grace"`
}

// TOML returns Pool's toml config.
func (p *Pool) TOML() string {
	return fmt.Sprintf(`
## Pool related configuration.
[pool]
## base URL prepended to task-issued relative paths
## Default: %s
host = "%s"
## total concurrent simulated users
## Default: %d
users = %d
## users spawned per second during ramp-up
## Default: %d
hatch-rate = %d
## duration after which shutdown is initiated; 0 = run until signaled
## Default: %s
run-time = "%s"
## inter-task wait lower bound; validated only, users wait by their task set's bounds
## Default: %s
min-wait = "%s"
## inter-task wait upper bound; validated only, users wait by their task set's bounds
## Default: %s
max-wait = "%s"
## per-request HTTP timeout
## Default: %s
request-timeout = "%s"
## time to wait for stragglers to finish on-stop after EXIT
## Default: %s
shutdown-grace = "%s"`,
		p.Host, p.Host,
		p.Users, p.Users,
		p.HatchRate, p.HatchRate,
		p.RunTime.String(), p.RunTime.String(),
		p.MinWait.String(), p.MinWait.String(),
		p.MaxWait.String(), p.MaxWait.String(),
		p.RequestTimeout.String(), p.RequestTimeout.String(),
		p.ShutdownGrace.String(), p.ShutdownGrace.String(),
	)
}

// NewDefaultPool returns a new default Pool config.
func NewDefaultPool() *Pool {
	return &Pool{
		Host:           "http://127.0.0.1:8089",
		Users:          1,
		HatchRate:      1,
		RequestTimeout: ltoml.Duration(30 * time.Second),
		ShutdownGrace:  ltoml.Duration(30 * time.Second),
	}
}

func checkPoolCfg(poolCfg *Pool) error {
	defaultCfg := NewDefaultPool()
	if poolCfg.Users <= 0 {
		return fmt.Errorf("pool users must be positive")
	}
	if poolCfg.HatchRate <= 0 {
		return fmt.Errorf("pool hatch-rate must be positive")
	}
	if poolCfg.MaxWait < poolCfg.MinWait {
		return fmt.Errorf("pool max-wait must be >= min-wait")
	}
	if poolCfg.RequestTimeout <= 0 {
		poolCfg.RequestTimeout = defaultCfg.RequestTimeout
	}
	if poolCfg.ShutdownGrace <= 0 {
		poolCfg.ShutdownGrace = defaultCfg.ShutdownGrace
	}
	return nil
}

// Role selects a process's part in the manager/worker topology.
type Role string

const (
	// RoleStandalone runs the pool controller locally with no coordination.
	RoleStandalone Role = "standalone"
	// RoleManager accepts worker attachments and aggregates their stats.
	RoleManager Role = "manager"
	// RoleWorker attaches to a manager and runs a local pool slice.
	RoleWorker Role = "worker"
)

// Coordinator represents the manager/worker coordination configuration.
type Coordinator struct {
	Role Role `env:"ROLE" toml:"role" validate:"required,oneof=standalone manager worker"`

	// ManagerHost/ManagerPort is a worker's attach target.
	ManagerHost string `env:"MANAGER_HOST" toml:"manager-host"`
	ManagerPort int    `env:"MANAGER_PORT" toml:"manager-port"`

	// ExpectWorkers is W: the manager waits for this many attachments
	// before starting the run.
	ExpectWorkers int `env:"EXPECT_WORKERS" toml:"expect-workers"`
	// AttachTimeout bounds how long the manager waits for ExpectWorkers
	// to attach before aborting with exit code 2.
	AttachTimeout ltoml.Duration `env:"ATTACH_TIMEOUT" toml:"attach-timeout"`
	// ReportInterval is how often a worker pushes a stats delta.
	ReportInterval ltoml.Duration `env:"REPORT_INTERVAL" toml:"report-interval"`
	// MaxConcurrentWorkers is validated and defaulted but not passed to
	// the manager, which bounds accepted workers at ExpectWorkers.
	MaxConcurrentWorkers int `env:"MAX_CONCURRENT_WORKERS" toml:"max-concurrent-workers"`
	// CompressThreshold is the payload size, in bytes, above which a wire
	// frame is gzip-compressed; 0 keeps internal/coordinator's default.
	CompressThreshold int `env:"COMPRESS_THRESHOLD" toml:"compress-threshold"`
}

// TOML returns Coordinator's toml config.
func (c *Coordinator) TOML() string {
	return fmt.Sprintf(`
## Manager/worker coordination related configuration.
[coordinator]
## process role: standalone, manager, or worker
## Default: %s
role = "%s"
## worker's attach target host
## Default: %s
manager-host = "%s"
## worker's attach target port
## Default: %d
manager-port = %d
## number of workers the manager waits for before starting
## Default: %d
expect-workers = %d
## time the manager waits for expect-workers to attach
## Default: %s
attach-timeout = "%s"
## how often a worker pushes a statistics delta
## Default: %s
report-interval = "%s"
## validated only; the manager accepts at most expect-workers workers
## Default: %d
max-concurrent-workers = %d
## payload size, in bytes, above which a wire frame is gzip-compressed
## Default: %d
compress-threshold = %d`,
		c.Role, c.Role,
		c.ManagerHost, c.ManagerHost,
		c.ManagerPort, c.ManagerPort,
		c.ExpectWorkers, c.ExpectWorkers,
		c.AttachTimeout.String(), c.AttachTimeout.String(),
		c.ReportInterval.String(), c.ReportInterval.String(),
		c.MaxConcurrentWorkers, c.MaxConcurrentWorkers,
		c.CompressThreshold, c.CompressThreshold,
	)
}

// NewDefaultCoordinator returns a new default Coordinator config.
func NewDefaultCoordinator() *Coordinator {
	return &Coordinator{
		Role:                 RoleStandalone,
		ManagerPort:          5557,
		AttachTimeout:        ltoml.Duration(30 * time.Second),
		ReportInterval:       ltoml.Duration(time.Second),
		MaxConcurrentWorkers: 64,
		CompressThreshold:    4096,
	}
}

func checkCoordinatorCfg(coordCfg *Coordinator) error {
	defaultCfg := NewDefaultCoordinator()
	switch coordCfg.Role {
	case RoleStandalone, RoleManager, RoleWorker:
	case "":
		coordCfg.Role = RoleStandalone
	default:
		return fmt.Errorf("coordinator role must be one of standalone, manager, worker")
	}
	if coordCfg.Role == RoleWorker && coordCfg.ManagerHost == "" {
		return fmt.Errorf("worker role requires manager-host")
	}
	if coordCfg.Role == RoleManager && coordCfg.ExpectWorkers <= 0 {
		return fmt.Errorf("manager role requires expect-workers > 0")
	}
	if coordCfg.AttachTimeout <= 0 {
		coordCfg.AttachTimeout = defaultCfg.AttachTimeout
	}
	if coordCfg.ReportInterval <= 0 {
		coordCfg.ReportInterval = defaultCfg.ReportInterval
	}
	if coordCfg.MaxConcurrentWorkers <= 0 {
		coordCfg.MaxConcurrentWorkers = defaultCfg.MaxConcurrentWorkers
	}
	return nil
}

// Reporting represents the statistics-reporting/output configuration.
type Reporting struct {
	StatsLogFile string `env:"STATS_LOG_FILE" toml:"stats-log-file"`
	DebugLogFile string `env:"DEBUG_LOG_FILE" toml:"debug-log-file"`
	LogLevel     string `env:"LOG_LEVEL" toml:"log-level" validate:"oneof=debug info warn error"`
	StatusCodes  bool   `env:"STATUS_CODES" toml:"status-codes"`
	OnlySummary  bool   `env:"ONLY_SUMMARY" toml:"only-summary"`
	ResetStats   bool   `env:"RESET_STATS" toml:"reset-stats"`
}

// TOML returns Reporting's toml config.
func (r *Reporting) TOML() string {
	return fmt.Sprintf(`
## Statistics reporting related configuration.
[reporting]
## append-only file that periodic statistics snapshots are written to
## Default: %s
stats-log-file = "%s"
## append-only file that per-request debug entries are written to
## Default: %s
debug-log-file = "%s"
## log level; validated and defaulted only, no logger reads it
## Default: %s
log-level = "%s"
## per-status-code breakdown; not read, the status API takes it from ?status_codes=true
## Default: %v
status-codes = %v
## summary-only reports; not read, the status API takes it from ?only_summary=true
## Default: %v
only-summary = %v
## reset accumulated statistics once ramp-up completes
## Default: %v
reset-stats = %v`,
		r.StatsLogFile, r.StatsLogFile,
		r.DebugLogFile, r.DebugLogFile,
		r.LogLevel, r.LogLevel,
		r.StatusCodes, r.StatusCodes,
		r.OnlySummary, r.OnlySummary,
		r.ResetStats, r.ResetStats,
	)
}

// NewDefaultReporting returns a new default Reporting config.
func NewDefaultReporting() *Reporting {
	return &Reporting{
		LogLevel: "info",
	}
}

func checkReportingCfg(reportingCfg *Reporting) error {
	if reportingCfg.LogLevel == "" {
		reportingCfg.LogLevel = "info"
	}
	return nil
}
