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

// Command api serves the Webhook Intake (C5) and the read-only
// health/status/metrics surface over HTTP.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"rag-platform/internal/app"
	"rag-platform/internal/appconfig"
	"rag-platform/internal/httpapi"
	"rag-platform/internal/webhook"
)

func main() {
	cfg, err := appconfig.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	hlog.SetLogger(hertzslog.NewLogger(hertzslog.WithOutput(os.Stdout), hertzslog.WithLevel(levelVar(cfg.Log.Level))))

	ctx := context.Background()
	bootstrap, err := app.NewBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	if err := bootstrap.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	intake := webhook.New(webhook.AuthConfig{SharedSecret: cfg.AppSecretKey}, bootstrap.DownloadQueue)
	handler := httpapi.NewHandler(intake, bootstrap.Ledger, bootstrap.TaskQueue, bootstrap.DownloadQueue)
	router := httpapi.NewRouter(handler, httpapi.NewMiddleware())

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var h *server.Hertz
	if cfg.TracingEnable && cfg.TracingExportEndpoint != "" {
		opts := []provider.Option{
			provider.WithServiceName(cfg.TracingServiceName),
			provider.WithExportEndpoint(cfg.TracingExportEndpoint),
		}
		if cfg.TracingInsecure {
			opts = append(opts, provider.WithInsecure())
		}
		otelProvider := provider.NewOpenTelemetryProvider(opts...)
		defer func() { _ = otelProvider.Shutdown(context.Background()) }()

		tracerOpt, tracingCfg := hertztracing.NewServerTracer()
		h = router.Build(addr, tracerOpt)
		h.Use(hertztracing.ServerMiddleware(tracingCfg))
	} else {
		h = router.Build(addr)
	}

	go func() {
		if err := h.Run(); err != nil && err != http.ErrServerClosed {
			log.Printf("api server exited: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		log.Printf("api shutdown: %v", err)
	}
	bootstrap.Close()
	log.Println("api stopped")
}

func levelVar(level string) *slog.LevelVar {
	v := &slog.LevelVar{}
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
	return v
}
