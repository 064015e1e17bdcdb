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

// Package logger adapts github.com/lindb/common/pkg/logger to goose's own
// file-name conventions.
package logger

import (
	"fmt"
	"time"

	commonlogger "github.com/lindb/common/pkg/logger"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// MainLogFileName is the default application log file, one per role.
	MainLogFileName = "goose.log"
	// AccessLogFileName records every HTTP status-API request.
	AccessLogFileName = "goose-access.log"
)

// Setting re-exports the common package's logging configuration block, so
// config.Config can embed it without importing commonlogger directly.
type Setting = commonlogger.Setting

// Logger re-exports the common package's logger handle.
type Logger = commonlogger.Logger

// NewDefaultSetting re-exports the common package's default Setting
// constructor.
func NewDefaultSetting() *Setting {
	return commonlogger.NewDefaultSetting()
}

// GetLogger returns a named logger scoped to module/role, matching the
// common package's convention of "module, role" pairs (e.g. "Pool",
// "Controller").
func GetLogger(module, role string) Logger {
	return commonlogger.GetLogger(module, role)
}

// InitLogger initializes the process-wide application logger.
func InitLogger(setting Setting, filename string) error {
	return commonlogger.InitLogger(setting, filename)
}

// InitAccessLogger initializes the status API's access logger.
func InitAccessLogger(setting Setting, filename string) error {
	return commonlogger.InitLogger(setting, filename)
}

// Field constructors re-exported for callers that only import this
// package rather than the common one directly.
var (
	Error  = commonlogger.Error
	String = commonlogger.String
	Int    = commonlogger.Int
)

// FileDebugLogger writes per-task debug entries to their own append-only,
// size-rotated file, independent of the main and access log sinks.
type FileDebugLogger struct {
	w *lumberjack.Logger
}

// NewFileDebugLogger opens (creating if needed) a rotating debug log at
// path.
func NewFileDebugLogger(path string) *FileDebugLogger {
	return &FileDebugLogger{w: &lumberjack.Logger{Filename: path, MaxSize: 100, MaxBackups: 3}}
}

// Debug writes one timestamped entry; args are appended as %v pairs.
func (l *FileDebugLogger) Debug(msg string, args ...any) {
	fmt.Fprintf(l.w, "%s %s %v\n", time.Now().Format(time.RFC3339), msg, args)
}
