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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vemoo/goose/config"
	"github.com/vemoo/goose/internal/errs"
	"github.com/vemoo/goose/pkg/logger"
)

var log = logger.GetLogger("CMD", "Goose")

const currentDir = "./"

// cfg, doc and pprof are bound by every role subcommand's PersistentFlags.
var (
	cfg    string
	doc    bool
	pprofF bool
)

// Runtime is the lifecycle every role (standalone/manager/worker) exposes
// to the root command.
type Runtime interface {
	// Run starts the runtime and blocks until it stops on its own or
	// Terminate is called.
	Run() error
	// Terminate requests a graceful shutdown.
	Terminate()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "goose",
		Short:   "goose is a distributed HTTP load-generation engine",
		Version: config.Version,
	}
	root.AddCommand(
		newStandaloneCmd(),
		newManagerCmd(),
		newWorkerCmd(),
	)
	return root
}

// newCtxWithSignals returns a context canceled on SIGINT/SIGTERM.
func newCtxWithSignals() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}

// checkExistenceOf refuses to overwrite an existing config file.
func checkExistenceOf(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	return nil
}

// run blocks on rt.Run(), terminating rt when ctx is canceled (an operator
// signal). reload, if non-nil, is invoked after a clean stop to validate
// that the config file (if any) still parses; goose does not currently
// act on it mid-run.
func run(ctx context.Context, rt Runtime, reload func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.Run()
	}()

	select {
	case <-ctx.Done():
		rt.Terminate()
		<-errCh
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	if reload != nil {
		return reload()
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errs.ErrAttachTimeout) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
