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
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	pkgerrors "rag-platform/pkg/errors"
)

// envelope is the uniform response shape every route returns:
// {ok, statusCode, statusText, data?, error?}.
type envelope struct {
	OK         bool        `json:"ok"`
	StatusCode int         `json:"statusCode"`
	StatusText string      `json:"statusText"`
	Data       interface{} `json:"data,omitempty"`
	Error      *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func writeOK(c *app.RequestContext, status int, data interface{}) {
	c.JSON(status, envelope{OK: true, StatusCode: status, StatusText: http.StatusText(status), Data: data})
}

// writeError renders err through pkgerrors.AsDomainError so every
// sentinel (rate-limited, out-of-quota, invalid webhook, unauthorized)
// maps onto its assigned HTTP status.
func writeError(_ context.Context, c *app.RequestContext, err error) {
	de := pkgerrors.AsDomainError(err)
	c.JSON(de.Status, envelope{
		OK:         false,
		StatusCode: de.Status,
		StatusText: http.StatusText(de.Status),
		Error:      &errorBody{Name: de.Name, Message: de.Message},
	})
}
