// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package httpapi

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
)

// Router assembles the Hertz server and its route table, minus the
// JWT/AuthZ chain this domain has no use for.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter builds a Router.
func NewRouter(handler *Handler, mw *Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// Build constructs the *server.Hertz bound to addr with every route
// registered.
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	allOpts := append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(allOpts...)

	h.Use(r.middleware.AccessLog())
	h.Use(r.middleware.CORS())

	h.POST("/iloveapi", r.handler.Webhook)

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)
	system := api.Group("/system")
	system.GET("/status", r.handler.SystemStatus)
	system.GET("/metrics", r.handler.SystemMetrics)

	return h
}
