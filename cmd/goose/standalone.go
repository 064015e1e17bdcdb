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
	"time"

	"github.com/lindb/common/pkg/fileutil"
	"github.com/lindb/common/pkg/ltoml"
	"github.com/spf13/cobra"

	"github.com/vemoo/goose/config"
	"github.com/vemoo/goose/examples"
	"github.com/vemoo/goose/internal/httpapi"
	"github.com/vemoo/goose/internal/monitoring"
	"github.com/vemoo/goose/internal/pool"
	"github.com/vemoo/goose/internal/runner"
	"github.com/vemoo/goose/internal/stats"
	"github.com/vemoo/goose/pkg/logger"
	"github.com/vemoo/goose/task"
)

const (
	standaloneCfgName        = "standalone.toml"
	standaloneLogFileName    = "goose-standalone.log"
	defaultStandaloneCfgFile = currentDir + standaloneCfgName
)

// Per-run overrides for standalone run, layered on top of the loaded
// config file so an operator can launch a quick run without editing TOML.
var (
	standaloneUsers     int
	standaloneHatchRate int
	standaloneRunTime   time.Duration
	standaloneHost      string
)

// newStandaloneCmd returns the standalone-role command tree: a single
// process running the pool controller with no coordination.
func newStandaloneCmd() *cobra.Command {
	standaloneCmd := &cobra.Command{
		Use:   "standalone",
		Short: "run a load test on a single process with no coordination",
	}

	standaloneCmd.AddCommand(
		runStandaloneCmd,
		initStandaloneConfigCmd,
	)

	runStandaloneCmd.PersistentFlags().StringVar(&cfg, "config", "",
		fmt.Sprintf("config file path, default is %s", defaultStandaloneCfgFile))
	runStandaloneCmd.PersistentFlags().BoolVar(&doc, "doc", false, "enable swagger api doc")
	runStandaloneCmd.PersistentFlags().BoolVar(&pprofF, "pprof", false, "enable pprof/fgprof profiling endpoints")
	runStandaloneCmd.PersistentFlags().IntVar(&standaloneUsers, "users", 0,
		"number of simulated users, overriding the config file")
	runStandaloneCmd.PersistentFlags().IntVar(&standaloneHatchRate, "hatch-rate", 0,
		"users spawned per second during ramp-up, overriding the config file")
	runStandaloneCmd.PersistentFlags().DurationVar(&standaloneRunTime, "run-time", 0,
		"run duration before automatic shutdown, overriding the config file")
	runStandaloneCmd.PersistentFlags().StringVar(&standaloneHost, "host", "",
		"target host for relative request paths, overriding the config file")

	return standaloneCmd
}

var runStandaloneCmd = &cobra.Command{
	Use:   "run",
	Short: "run as standalone",
	RunE:  serveStandalone,
}

var initStandaloneConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "write a new default standalone config file",
	RunE: func(_ *cobra.Command, _ []string) error {
		path := cfg
		if path == "" {
			path = defaultStandaloneCfgFile
		}
		if err := checkExistenceOf(path); err != nil {
			return err
		}
		return ltoml.WriteConfig(path, config.NewDefaultConfigTOML())
	},
}

// standaloneRuntime adapts a pool.Controller plus its status API and
// system-resource sampler into the Runtime interface the root command
// drives.
type standaloneRuntime struct {
	opts          pool.Options
	monitorPath   string
	monitorPeriod time.Duration
	statsLogFile  string
	agg           *stats.Aggregator
	httpServer    *http.Server

	cancel context.CancelFunc
}

func newStandaloneRuntime(c *config.Config) *standaloneRuntime {
	agg := stats.New(stats.DefaultBucketCount, stats.DefaultMinBound, stats.DefaultMaxBound)

	engine := httpapi.NewServer(agg, httpapi.ServerOptions{EnableDoc: doc, EnablePprof: pprofF})
	httpServer := &http.Server{
		Addr:              "0.0.0.0:8089",
		Handler:           engine,
		ReadHeaderTimeout: httpapi.DefaultReadHeaderTimeout,
	}

	var debugLogger runner.DebugLogger
	if c.Reporting.DebugLogFile != "" {
		debugLogger = logger.NewFileDebugLogger(c.Reporting.DebugLogFile)
	}

	return &standaloneRuntime{
		opts: pool.Options{
			Host:           c.Pool.Host,
			Users:          c.Pool.Users,
			HatchRate:      c.Pool.HatchRate,
			RunTime:        time.Duration(c.Pool.RunTime),
			ShutdownGrace:  time.Duration(c.Pool.ShutdownGrace),
			RequestTimeout: time.Duration(c.Pool.RequestTimeout),
			ResetStats:     c.Reporting.ResetStats,
			DebugLogger:    debugLogger,
		},
		monitorPath:   c.Monitor.DataPath,
		monitorPeriod: time.Duration(c.Monitor.ReportInterval),
		statsLogFile:  c.Reporting.StatsLogFile,
		agg:           agg,
		httpServer:    httpServer,
	}
}

func (r *standaloneRuntime) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	monitor := monitoring.NewSystemCollector(ctx, r.monitorPath, r.monitorPeriod, func(snap monitoring.Snapshot) {
		if snap.CPU != nil {
			log.Info("resource sample", logger.String("cpu", fmt.Sprintf("%.1f%%", snap.CPU.UsedPercent)))
		}
	})
	go monitor.Run()

	if r.statsLogFile != "" {
		go stats.RunStatsLog(ctx, r.statsLogFile, r.agg.Snapshot)
	}

	go func() {
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("status API server failed", logger.Error(err))
		}
	}()

	controller := pool.New(r.opts, examples.Default(), r.agg, 0)
	controller.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return r.httpServer.Shutdown(shutdownCtx)
}

func (r *standaloneRuntime) Terminate() {
	if r.cancel != nil {
		r.cancel()
	}
}

func serveStandalone(cmd *cobra.Command, _ []string) error {
	ctx := newCtxWithSignals()

	standaloneCfg := config.Config{}
	if fileutil.Exist(cfg) || fileutil.Exist(defaultStandaloneCfgFile) {
		if err := config.LoadAndSetConfig(cfg, defaultStandaloneCfgFile, &standaloneCfg); err != nil {
			return err
		}
	} else {
		standaloneCfg = *config.NewDefaultConfig()
		if err := config.CheckConfig(&standaloneCfg); err != nil {
			return err
		}
	}
	applyStandaloneOverrides(cmd, &standaloneCfg)

	if err := logger.InitLogger(standaloneCfg.Logging, standaloneLogFileName); err != nil {
		return fmt.Errorf("init logger error: %s", err)
	}
	if err := logger.InitAccessLogger(standaloneCfg.Logging, logger.AccessLogFileName); err != nil {
		return fmt.Errorf("init http access logger error: %s", err)
	}

	if err := task.Validate(examples.Default()); err != nil {
		return fmt.Errorf("invalid task sets: %w", err)
	}

	runtime := newStandaloneRuntime(&standaloneCfg)
	return run(ctx, runtime, nil)
}

// applyStandaloneOverrides layers any explicitly-set --users/--hatch-rate/
// --run-time/--host flags on top of c, so an operator can launch a quick
// run without editing the config file.
func applyStandaloneOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("users") {
		c.Pool.Users = standaloneUsers
	}
	if flags.Changed("hatch-rate") {
		c.Pool.HatchRate = standaloneHatchRate
	}
	if flags.Changed("run-time") {
		c.Pool.RunTime = ltoml.Duration(standaloneRunTime)
	}
	if flags.Changed("host") {
		c.Pool.Host = standaloneHost
	}
}
