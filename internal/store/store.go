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

// Package store implements the remote mailbox store over HTTP.  It
// satisfies the message package's Store contract: fetch a
// representation, save a draft, post an action.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/Acidburn0zzz/sogo/internal/message"
)

const (
	// Keep a margin below typical groupware server throttling.
	requestsPerSecond = 8
	requestBurst      = 16

	maxErrorBody = 4 << 10
)

// StatusError is the cause of a failed round trip that produced a
// non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("store returned HTTP %d: %s", e.Code, e.Body)
}

// Client talks to the remote store.  It rate limits round trips and
// sanitizes inbound HTML bodies before they reach the entity.
type Client struct {
	base    *url.URL
	httpc   *http.Client
	limiter *rate.Limiter
	policy  *bluemonday.Policy
	log     *slog.Logger

	basicUser string
	basicPass string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client, e.g. one
// carrying an oauth2 or tracing transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpc = hc }
}

// WithBasicAuth sends the credentials with every request.
func WithBasicAuth(user, pass string) Option {
	return func(c *Client) {
		c.basicUser = user
		c.basicPass = pass
	}
}

// WithRateLimit overrides the default request rate limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithLogger substitutes the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing store base URL %q", baseURL)
	}
	c := &Client{
		base:    u,
		httpc:   &http.Client{},
		limiter: rate.NewLimiter(requestsPerSecond, requestBurst),
		policy:  bluemonday.UGCPolicy(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// endpoint resolves a message identity plus trailing action into a
// request URL.  Identity components are already path safe.
func (c *Client) endpoint(id, leaf string) string {
	segments := strings.Split(id, "/")
	segments = append(segments, leaf)
	return c.base.JoinPath(segments...).String()
}

func (c *Client) do(ctx context.Context, method, url string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.basicUser != "" {
		req.SetBasicAuth(c.basicUser, c.basicPass)
	}

	c.log.Debug("store round trip", "method", method, "url", url)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		cause := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		return errors.Wrapf(cause, "%s %s", method, url)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "decoding response of %s %s", method, url)
		}
	}
	return nil
}

// sanitize scrubs the HTML body of a patch in place.  The entity marks
// content render safe without re-sanitizing, so it must never see raw
// server HTML.
func (c *Client) sanitize(p *message.Patch) {
	if p.Content != nil {
		clean := c.policy.Sanitize(*p.Content)
		p.Content = &clean
	}
}

// Fetch retrieves the view or edit representation of a message.
func (c *Client) Fetch(ctx context.Context, id string, mode message.FetchMode) (*message.Patch, error) {
	var patch message.Patch
	if err := c.do(ctx, http.MethodGet, c.endpoint(id, string(mode)), nil, &patch); err != nil {
		return nil, err
	}
	c.sanitize(&patch)
	return &patch, nil
}

// Save submits a flattened draft at the given identity.  A successful
// response carries the uid the server assigned.
func (c *Client) Save(ctx context.Context, id string, draft message.DraftData) (*message.Patch, error) {
	var patch message.Patch
	if err := c.do(ctx, http.MethodPost, c.endpoint(id, "save"), draft, &patch); err != nil {
		return nil, err
	}
	c.sanitize(&patch)
	return &patch, nil
}

// Post submits a named action at the given identity and returns the
// outcome verbatim; interpreting the status is the caller's business.
func (c *Client) Post(ctx context.Context, id, action string, draft message.DraftData) (*message.Outcome, error) {
	var outcome message.Outcome
	if err := c.do(ctx, http.MethodPost, c.endpoint(id, action), draft, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}
