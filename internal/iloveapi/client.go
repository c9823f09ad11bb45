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

// Package iloveapi is a thin wrapper around the external processing
// service the task and downloader stage workers call into. Its
// internals are out of scope —
// this client only shapes the request/response envelopes the workers
// need, modeled on a resty-based HTTP client with bearer auth and
// retry/backoff.
package iloveapi

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"rag-platform/internal/pipeline"
	pkgerrors "rag-platform/pkg/errors"
)

// Config configures the external processor client.
type Config struct {
	BaseURL   string
	PublicKey string
	SecretKey string
	Timeout   time.Duration
}

// Client is the thin wrapper. One instance is shared by both worker
// stages.
type Client struct {
	http *resty.Client
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Authorization", "Bearer "+cfg.SecretKey)
	return &Client{http: c}
}

// SubmitParams is what the Task Stage Worker sends on dispatch.
type SubmitParams struct {
	Tool         pipeline.Tool
	FileURLs     []string
	ToolOptions  map[string]any
	CustomInt    string
	CustomString string
}

// Submit dispatches tool to the external processor and returns the
// {server, task_id, files[]} triple the Task worker stores as the
// result.
func (c *Client) Submit(ctx context.Context, p SubmitParams) (*pipeline.TaskResult, error) {
	body := map[string]any{
		"tool":          string(p.Tool),
		"files":         p.FileURLs,
		"tool_options":  p.ToolOptions,
		"custom_int":    p.CustomInt,
		"custom_string": p.CustomString,
	}

	var result pipeline.TaskResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&result).
		Post(fmt.Sprintf("/%s", p.Tool))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "iloveapi: submit request failed")
	}
	if resp.IsError() {
		return nil, pkgerrors.Wrapf(fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()), "iloveapi: submit rejected")
	}
	return &result, nil
}

// DownloadParams identifies a finished task for the Downloader Stage
// Worker.
type DownloadParams struct {
	TaskID string
	Server string
}

// Download fetches the finished artifact bytes from (task_id, server).
// Server-name escapes are stripped by the caller before this is invoked.
func (c *Client) Download(ctx context.Context, p DownloadParams) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("server", p.Server).
		Get(fmt.Sprintf("/download/%s", p.TaskID))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "iloveapi: download request failed")
	}
	if resp.IsError() {
		return nil, pkgerrors.Wrapf(fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()), "iloveapi: download rejected")
	}
	return resp.Body(), nil
}
