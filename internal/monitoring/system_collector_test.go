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

package monitoring

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/require"
)

func Test_NewSystemCollector_RunUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var reports int
	collector := NewSystemCollector(ctx, "/tmp", 10*time.Millisecond, func(Snapshot) {
		reports++
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	collector.Run()
	require.Greater(t, reports, 0)
}

func Test_SystemCollector_ZeroIntervalDisablesSampling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reports int
	collector := NewSystemCollector(ctx, "/tmp", 0, func(Snapshot) { reports++ })
	collector.Run()
	require.Equal(t, 0, reports)
}

func Test_SystemCollector_Collect_ToleratesGetterErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var last Snapshot
	collector := NewSystemCollector(ctx, "/tmp", time.Second, func(s Snapshot) { last = s })

	collector.MemoryStatGetter = func() (*mem.VirtualMemoryStat, error) {
		return nil, fmt.Errorf("boom")
	}
	collector.collect()
	require.Error(t, last.MemoryErr)
	collector.MemoryStatGetter = mem.VirtualMemory

	collector.CPUStatGetter = func() (*CPUStat, error) {
		return nil, fmt.Errorf("boom")
	}
	collector.collect()
	require.Error(t, last.CPUErr)
	collector.CPUStatGetter = GetCPUStat

	collector.DiskUsageStatGetter = func(ctx context.Context, path string) (*disk.UsageStat, error) {
		return nil, fmt.Errorf("boom")
	}
	collector.collect()
	require.Error(t, last.DiskErr)
	collector.DiskUsageStatGetter = disk.UsageWithContext

	collector.NetStatGetter = func(ctx context.Context) ([]net.IOCountersStat, error) {
		return nil, fmt.Errorf("boom")
	}
	collector.collect()
	require.Error(t, last.NetErr)
	collector.NetStatGetter = GetNetStat

	collector.collect()
	require.NoError(t, last.NetErr)
}
