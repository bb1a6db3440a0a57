// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tracehttp dumps HTTP traffic for wire debugging.
package tracehttp

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
)

// traceTransport logs the full request and response while delegating
// the round trip to another http.RoundTripper.
type traceTransport struct {
	delegate http.RoundTripper
	log      *slog.Logger
}

// RoundTrip dumps the request, delegates, then dumps the response.
func (t *traceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if dump, err := httputil.DumpRequestOut(req, true); err == nil {
		t.log.Debug("http request", "dump", string(dump))
	}
	resp, err := t.delegate.RoundTrip(req)
	if err == nil {
		if dump, dumpErr := httputil.DumpResponse(resp, true); dumpErr == nil {
			t.log.Debug("http response", "dump", string(dump))
		}
	}
	return resp, err
}

// Wrap returns a RoundTripper that traces through log before
// delegating to d.  A nil d delegates to http.DefaultTransport.
func Wrap(d http.RoundTripper, log *slog.Logger) http.RoundTripper {
	if d == nil {
		d = http.DefaultTransport
	}
	if log == nil {
		log = slog.Default()
	}
	return &traceTransport{delegate: d, log: log}
}
