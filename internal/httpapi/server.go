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

package httpapi

import (
	"time"

	"github.com/felixge/fgprof"
	"github.com/gin-contrib/cors"
	ginpprof "github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ginswagger "github.com/swaggo/gin-swagger"
	swaggerfiles "github.com/swaggo/files"

	"github.com/vemoo/goose/internal/stats"
)

// ServerOptions configures the status API's ambient surfaces.
type ServerOptions struct {
	// EnableDoc mounts the swagger UI at /swagger/*any (--doc flag).
	EnableDoc bool
	// EnablePprof mounts gin-contrib/pprof plus felixge/fgprof's
	// wall-clock profiler (--pprof flag).
	EnablePprof bool
}

// NewServer builds the status API's gin engine: CORS-enabled REST
// endpoints over the statistics aggregator, a Prometheus /metrics
// endpoint, and optional swagger/pprof surfaces.
func NewServer(agg *stats.Aggregator, opts ServerOptions) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.Default())

	NewStatsAPI(agg).Register(engine)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if opts.EnableDoc {
		engine.GET("/swagger/*any", ginswagger.WrapHandler(swaggerfiles.Handler))
	}
	if opts.EnablePprof {
		ginpprof.Register(engine)
		engine.GET("/debug/fgprof", gin.WrapH(fgprof.Handler()))
	}

	return engine
}

// DefaultReadHeaderTimeout bounds how long the status server waits to read
// a request's headers, guarding against slow-loris clients hitting the
// admin surface.
const DefaultReadHeaderTimeout = 5 * time.Second
