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
	"github.com/vemoo/goose/internal/coordinator"
	"github.com/vemoo/goose/internal/httpapi"
	"github.com/vemoo/goose/internal/runner"
	"github.com/vemoo/goose/internal/stats"
	"github.com/vemoo/goose/pkg/logger"
	"github.com/vemoo/goose/task"
)

const (
	workerCfgName        = "worker.toml"
	workerLogFileName    = "goose-worker.log"
	defaultWorkerCfgFile = currentDir + workerCfgName
)

// newWorkerCmd returns the worker-role command tree: attaches to a
// manager and runs the share of the population it is configured with.
func newWorkerCmd() *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "run as a worker attached to a manager",
	}

	workerCmd.AddCommand(
		runWorkerCmd,
		initWorkerConfigCmd,
	)

	runWorkerCmd.PersistentFlags().StringVar(&cfg, "config", "",
		fmt.Sprintf("config file path, default is %s", defaultWorkerCfgFile))
	runWorkerCmd.PersistentFlags().BoolVar(&doc, "doc", false, "enable swagger api doc")
	runWorkerCmd.PersistentFlags().BoolVar(&pprofF, "pprof", false, "enable pprof/fgprof profiling endpoints")

	return workerCmd
}

var runWorkerCmd = &cobra.Command{
	Use:   "run",
	Short: "run as worker",
	RunE:  serveWorker,
}

var initWorkerConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "write a new default worker config file",
	RunE: func(_ *cobra.Command, _ []string) error {
		path := cfg
		if path == "" {
			path = defaultWorkerCfgFile
		}
		if err := checkExistenceOf(path); err != nil {
			return err
		}
		return ltoml.WriteConfig(path, config.NewDefaultConfigTOML())
	},
}

// workerRuntime adapts coordinator.Worker plus its status API into the
// Runtime interface the root command drives.
type workerRuntime struct {
	worker       *coordinator.Worker
	httpServer   *http.Server
	agg          *stats.Aggregator
	statsLogFile string

	cancel context.CancelFunc
}

func newWorkerRuntime(c *config.Config) *workerRuntime {
	coordinator.SetCompressThreshold(c.Coordinator.CompressThreshold)

	agg := stats.New(stats.DefaultBucketCount, stats.DefaultMinBound, stats.DefaultMaxBound)

	var debugLogger runner.DebugLogger
	if c.Reporting.DebugLogFile != "" {
		debugLogger = logger.NewFileDebugLogger(c.Reporting.DebugLogFile)
	}

	worker := coordinator.NewWorker(coordinator.WorkerOptions{
		ManagerAddr:    fmt.Sprintf("%s:%d", c.Coordinator.ManagerHost, c.Coordinator.ManagerPort),
		ReportInterval: time.Duration(c.Coordinator.ReportInterval),
		TaskSets:       examples.Default(),
		ResetStats:     c.Reporting.ResetStats,
		DebugLogger:    debugLogger,
	}, agg)

	engine := httpapi.NewServer(agg, httpapi.ServerOptions{EnableDoc: doc, EnablePprof: pprofF})
	httpServer := &http.Server{
		Addr:              "0.0.0.0:8089",
		Handler:           engine,
		ReadHeaderTimeout: httpapi.DefaultReadHeaderTimeout,
	}

	return &workerRuntime{
		worker:       worker,
		httpServer:   httpServer,
		agg:          agg,
		statsLogFile: c.Reporting.StatsLogFile,
	}
}

func (r *workerRuntime) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	if r.statsLogFile != "" {
		go stats.RunStatsLog(ctx, r.statsLogFile, r.agg.Snapshot)
	}

	go func() {
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("status API server failed", logger.Error(err))
		}
	}()

	err := r.worker.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = r.httpServer.Shutdown(shutdownCtx)

	return err
}

func (r *workerRuntime) Terminate() {
	if r.cancel != nil {
		r.cancel()
	}
}

func serveWorker(_ *cobra.Command, _ []string) error {
	ctx := newCtxWithSignals()

	workerCfg := config.Config{}
	if fileutil.Exist(cfg) || fileutil.Exist(defaultWorkerCfgFile) {
		if err := config.LoadAndSetConfig(cfg, defaultWorkerCfgFile, &workerCfg); err != nil {
			return err
		}
	} else {
		workerCfg = *config.NewDefaultConfig()
	}
	workerCfg.Coordinator.Role = config.RoleWorker
	if err := config.CheckConfig(&workerCfg); err != nil {
		return err
	}

	if err := logger.InitLogger(workerCfg.Logging, workerLogFileName); err != nil {
		return fmt.Errorf("init logger error: %s", err)
	}
	if err := logger.InitAccessLogger(workerCfg.Logging, logger.AccessLogFileName); err != nil {
		return fmt.Errorf("init http access logger error: %s", err)
	}

	if err := task.Validate(examples.Default()); err != nil {
		return fmt.Errorf("invalid task sets: %w", err)
	}

	runtime := newWorkerRuntime(&workerCfg)
	return run(ctx, runtime, nil)
}
