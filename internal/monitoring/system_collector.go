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

// Package monitoring samples the load-generator's own host resources
// (CPU, memory, disk, network) at a fixed interval. SystemCollector's
// stat-getter fields are individually swappable, so collect() can be
// exercised under forced-error injection without a live host failing.
package monitoring

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/vemoo/goose/pkg/logger"
)

var log = logger.GetLogger("Monitoring", "SystemCollector")

// CPUStat is the subset of host CPU usage goose reports; GetCPUStat
// computes it from gopsutil's cpu.Percent.
type CPUStat struct {
	UsedPercent float64
}

// GetCPUStat samples the host's total CPU utilization over a short
// window. It blocks for the 200ms it passes to gopsutil's cpu.Percent.
func GetCPUStat() (*CPUStat, error) {
	percents, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil {
		return nil, err
	}
	if len(percents) == 0 {
		return &CPUStat{}, nil
	}
	return &CPUStat{UsedPercent: percents[0]}, nil
}

// GetNetStat samples per-interface network IO counters.
func GetNetStat(ctx context.Context) ([]net.IOCountersStat, error) {
	return net.IOCountersWithContext(ctx, true)
}

// Snapshot is one sampling round's host resource picture, handed to the
// collector's Report callback at every interval.
type Snapshot struct {
	Time        time.Time
	CPU         *CPUStat
	Memory      *mem.VirtualMemoryStat
	Disk        *disk.UsageStat
	Net         []net.IOCountersStat
	MemoryErr   error
	CPUErr      error
	DiskErr     error
	NetErr      error
}

// SystemCollector periodically samples host resources for the data
// directory path and reports each Snapshot to Report.
//
// Each *StatGetter field defaults to the real gopsutil-backed function
// but can be swapped out in tests to force individual sampler failures
// without disturbing the others.
type SystemCollector struct {
	ctx      context.Context
	dataPath string
	interval time.Duration
	Report   func(Snapshot)

	MemoryStatGetter    func() (*mem.VirtualMemoryStat, error)
	CPUStatGetter       func() (*CPUStat, error)
	DiskUsageStatGetter func(ctx context.Context, path string) (*disk.UsageStat, error)
	NetStatGetter       func(ctx context.Context) ([]net.IOCountersStat, error)
}

// NewSystemCollector creates a SystemCollector sampling dataPath's disk
// usage every interval, invoking report with each Snapshot.
func NewSystemCollector(ctx context.Context, dataPath string, interval time.Duration, report func(Snapshot)) *SystemCollector {
	return &SystemCollector{
		ctx:      ctx,
		dataPath: dataPath,
		interval: interval,
		Report:   report,

		MemoryStatGetter:    mem.VirtualMemory,
		CPUStatGetter:       GetCPUStat,
		DiskUsageStatGetter: disk.UsageWithContext,
		NetStatGetter:       GetNetStat,
	}
}

// Run samples on a ticker until the collector's context is canceled.
// interval <= 0 disables sampling entirely: monitoring won't start when
// the report interval is configured as 0.
func (c *SystemCollector) Run() {
	if c.interval <= 0 {
		return
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *SystemCollector) collect() {
	snap := Snapshot{Time: time.Now()}

	if m, err := c.MemoryStatGetter(); err != nil {
		snap.MemoryErr = err
		log.Warn("collect memory stat failed", logger.Error(err))
	} else {
		snap.Memory = m
	}

	if cs, err := c.CPUStatGetter(); err != nil {
		snap.CPUErr = err
		log.Warn("collect cpu stat failed", logger.Error(err))
	} else {
		snap.CPU = cs
	}

	if d, err := c.DiskUsageStatGetter(c.ctx, c.dataPath); err != nil {
		snap.DiskErr = err
		log.Warn("collect disk stat failed", logger.Error(err))
	} else {
		snap.Disk = d
	}

	if n, err := c.NetStatGetter(c.ctx); err != nil {
		snap.NetErr = err
		log.Warn("collect net stat failed", logger.Error(err))
	} else {
		snap.Net = n
	}

	if c.Report != nil {
		c.Report(snap)
	}
}
