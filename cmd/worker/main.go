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

// Command worker runs the Task Stage Worker (C4), Downloader Stage
// Worker (C6), stalled-claim sweeper, and reconciliation loop.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rag-platform/internal/app"
	"rag-platform/internal/app/worker"
	"rag-platform/internal/appconfig"
	pkgtracing "rag-platform/pkg/tracing"
)

func main() {
	cfg, err := appconfig.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if cfg.TracingEnable && cfg.TracingExportEndpoint != "" {
		tp, err := pkgtracing.InitTracer(pkgtracing.OTelConfig{
			ServiceName:    cfg.TracingServiceName,
			ExportEndpoint: cfg.TracingExportEndpoint,
			Insecure:       cfg.TracingInsecure,
		})
		if err != nil {
			log.Fatalf("init tracer: %v", err)
		}
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	ctx := context.Background()
	bootstrap, err := app.NewBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	if err := bootstrap.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	workerApp, err := worker.NewApp(bootstrap)
	if err != nil {
		log.Fatalf("new worker app: %v", err)
	}

	if err := workerApp.Start(); err != nil {
		log.Fatalf("start worker app: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := workerApp.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown worker app: %v", err)
	}

	fmt.Println("worker stopped")
}
