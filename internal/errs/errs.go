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

// Package errs holds goose's package-level sentinel errors, compared with
// errors.Is at call sites.
package errs

import "errors"

var (
	// ErrEmptyTaskSet is returned when a task set has no tasks at all. A
	// set with only on-start/on-stop tasks is valid.
	ErrEmptyTaskSet = errors.New("task set has no tasks")
	// ErrNonPositiveWeight is returned when a task or task set declares a
	// weight <= 0.
	ErrNonPositiveWeight = errors.New("weight must be positive")
	// ErrAttachTimeout is returned by the manager when the configured
	// number of workers did not attach within the attach timeout.
	ErrAttachTimeout = errors.New("attach deadline exceeded before expected workers connected")
	// ErrUnknownTag is returned by the wire protocol decoder when a frame
	// carries a tag outside the closed enumeration.
	ErrUnknownTag = errors.New("unknown protocol tag")
)
