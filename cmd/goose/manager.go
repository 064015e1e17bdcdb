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

package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lindb/common/pkg/fileutil"
	"github.com/lindb/common/pkg/ltoml"
	"github.com/spf13/cobra"

	"github.com/vemoo/goose/config"
	"github.com/vemoo/goose/internal/coordinator"
	"github.com/vemoo/goose/internal/httpapi"
	"github.com/vemoo/goose/internal/stats"
	"github.com/vemoo/goose/pkg/logger"
)

const (
	managerCfgName        = "manager.toml"
	managerLogFileName    = "goose-manager.log"
	defaultManagerCfgFile = currentDir + managerCfgName
)

// Per-run overrides for manager run, layered on top of the loaded config
// file, matching the per-run flag surface on standalone run.
var (
	managerUsers     int
	managerHatchRate int
	managerRunTime   time.Duration
	managerHost      string
)

// newManagerCmd returns the manager-role command tree: accepts worker
// attachments, divides the population, merges their statistics deltas.
func newManagerCmd() *cobra.Command {
	managerCmd := &cobra.Command{
		Use:   "manager",
		Short: "run as the manager coordinating a set of workers",
	}

	managerCmd.AddCommand(
		runManagerCmd,
		initManagerConfigCmd,
	)

	runManagerCmd.PersistentFlags().StringVar(&cfg, "config", "",
		fmt.Sprintf("config file path, default is %s", defaultManagerCfgFile))
	runManagerCmd.PersistentFlags().BoolVar(&doc, "doc", false, "enable swagger api doc")
	runManagerCmd.PersistentFlags().BoolVar(&pprofF, "pprof", false, "enable pprof/fgprof profiling endpoints")
	runManagerCmd.PersistentFlags().IntVar(&managerUsers, "users", 0,
		"total simulated users across all workers, overriding the config file")
	runManagerCmd.PersistentFlags().IntVar(&managerHatchRate, "hatch-rate", 0,
		"users spawned per second during ramp-up, overriding the config file")
	runManagerCmd.PersistentFlags().DurationVar(&managerRunTime, "run-time", 0,
		"run duration before automatic shutdown, overriding the config file")
	runManagerCmd.PersistentFlags().StringVar(&managerHost, "host", "",
		"target host handed to every worker, overriding the config file")

	return managerCmd
}

var runManagerCmd = &cobra.Command{
	Use:   "run",
	Short: "run as manager",
	RunE:  serveManager,
}

var initManagerConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "write a new default manager config file",
	RunE: func(_ *cobra.Command, _ []string) error {
		path := cfg
		if path == "" {
			path = defaultManagerCfgFile
		}
		if err := checkExistenceOf(path); err != nil {
			return err
		}
		return ltoml.WriteConfig(path, config.NewDefaultConfigTOML())
	},
}

// managerRuntime adapts coordinator.Manager plus its status API into the
// Runtime interface the root command drives.
type managerRuntime struct {
	manager      *coordinator.Manager
	httpServer   *http.Server
	statsLogFile string

	stopOnce sync.Once
	stop     chan struct{}
}

func newManagerRuntime(c *config.Config) *managerRuntime {
	coordinator.SetCompressThreshold(c.Coordinator.CompressThreshold)

	manager := coordinator.NewManager(coordinator.ManagerOptions{
		Addr:          fmt.Sprintf("0.0.0.0:%d", c.Coordinator.ManagerPort),
		ExpectWorkers: c.Coordinator.ExpectWorkers,
		AttachTimeout: time.Duration(c.Coordinator.AttachTimeout),
		Host:          c.Pool.Host,
		Users:         c.Pool.Users,
		HatchRate:     c.Pool.HatchRate,
		RunTime:       time.Duration(c.Pool.RunTime),
		MinWait:       time.Duration(c.Pool.MinWait),
		MaxWait:       time.Duration(c.Pool.MaxWait),
	})

	// The manager itself never runs users locally, so its status API
	// reports over an empty aggregator; manager.Snapshot()'s cross-worker
	// totals reach only the stats log, not the status API.
	agg := stats.New(stats.DefaultBucketCount, stats.DefaultMinBound, stats.DefaultMaxBound)
	engine := httpapi.NewServer(agg, httpapi.ServerOptions{EnableDoc: doc, EnablePprof: pprofF})
	httpServer := &http.Server{
		Addr:              "0.0.0.0:8089",
		Handler:           engine,
		ReadHeaderTimeout: httpapi.DefaultReadHeaderTimeout,
	}

	return &managerRuntime{
		manager:      manager,
		httpServer:   httpServer,
		statsLogFile: c.Reporting.StatsLogFile,
		stop:         make(chan struct{}),
	}
}

func (r *managerRuntime) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if r.statsLogFile != "" {
		go stats.RunStatsLog(ctx, r.statsLogFile, r.manager.Snapshot)
	}

	go func() {
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("status API server failed", logger.Error(err))
		}
	}()

	err := r.manager.Run(r.stop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)

	return err
}

func (r *managerRuntime) Terminate() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func serveManager(cmd *cobra.Command, _ []string) error {
	ctx := newCtxWithSignals()

	managerCfg := config.Config{}
	if fileutil.Exist(cfg) || fileutil.Exist(defaultManagerCfgFile) {
		if err := config.LoadAndSetConfig(cfg, defaultManagerCfgFile, &managerCfg); err != nil {
			return err
		}
	} else {
		managerCfg = *config.NewDefaultConfig()
	}
	managerCfg.Coordinator.Role = config.RoleManager
	if err := config.CheckConfig(&managerCfg); err != nil {
		return err
	}
	applyManagerOverrides(cmd, &managerCfg)

	if err := logger.InitLogger(managerCfg.Logging, managerLogFileName); err != nil {
		return fmt.Errorf("init logger error: %s", err)
	}
	if err := logger.InitAccessLogger(managerCfg.Logging, logger.AccessLogFileName); err != nil {
		return fmt.Errorf("init http access logger error: %s", err)
	}

	runtime := newManagerRuntime(&managerCfg)
	return run(ctx, runtime, nil)
}

// applyManagerOverrides layers any explicitly-set --users/--hatch-rate/
// --run-time/--host flags on top of c.
func applyManagerOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("users") {
		c.Pool.Users = managerUsers
	}
	if flags.Changed("hatch-rate") {
		c.Pool.HatchRate = managerHatchRate
	}
	if flags.Changed("run-time") {
		c.Pool.RunTime = ltoml.Duration(managerRunTime)
	}
	if flags.Changed("host") {
		c.Pool.Host = managerHost
	}
}
