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

// Package httpapi is goose's status/admin HTTP surface: one *API struct
// per concern, each registering its routes via Register(gin.IRoutes),
// handlers replying through the common package's http.OK/http.Error
// helpers.
package httpapi

import (
	"bytes"
	"strings"

	"github.com/gin-gonic/gin"
	httpkeys "github.com/go-http-utils/headers"
	httppkg "github.com/lindb/common/pkg/http"
	"github.com/munnerz/goautoneg"

	"github.com/vemoo/goose/internal/stats"
)

// StatsPath is the status API's live statistics endpoint.
var StatsPath = "/state/stats"

// StatsAPI exposes the statistics aggregator's current snapshot, either as
// JSON (the default) or as the human-readable go-pretty table, chosen by
// Accept-header content negotiation.
type StatsAPI struct {
	agg *stats.Aggregator
}

// NewStatsAPI creates a StatsAPI reading from agg.
func NewStatsAPI(agg *stats.Aggregator) *StatsAPI {
	return &StatsAPI{agg: agg}
}

// Register adds the stats url route.
func (s *StatsAPI) Register(route gin.IRoutes) {
	route.GET(StatsPath, s.GetStats)
}

// GetStats reports the current cumulative per-request-name statistics.
// ?only_summary=true omits the per-name table (Accept: text/plain only);
// ?status_codes=true adds the per-status-code breakdown.
func (s *StatsAPI) GetStats(c *gin.Context) {
	snapshots := s.agg.Snapshot()

	opts := stats.ReportOptions{
		OnlySummary: c.Query("only_summary") == "true",
		StatusCodes: c.Query("status_codes") == "true",
	}

	if wantsPlainText(c.GetHeader(httpkeys.Accept)) {
		var buf bytes.Buffer
		stats.Render(&buf, snapshots, opts)
		c.Data(200, "text/plain; charset=utf-8", buf.Bytes())
		return
	}

	httppkg.OK(c, snapshots)
}

// wantsPlainText negotiates the Accept header, preferring text/plain only
// when it outranks application/json (goautoneg parses RFC 7231 quality
// values).
func wantsPlainText(accept string) bool {
	if accept == "" {
		return false
	}
	specs := goautoneg.ParseAccept(accept)
	for _, s := range specs {
		if s.Type == "text" && (s.SubType == "plain" || s.SubType == "*") {
			return true
		}
		if s.Type == "application" && s.SubType == "json" {
			return false
		}
		if s.Type == "*" && strings.Contains(accept, "text/plain") {
			return true
		}
	}
	return false
}
