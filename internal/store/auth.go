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

package store

import (
	"net/http"

	"golang.org/x/oauth2"

	"github.com/Acidburn0zzz/sogo/internal/message"
)

var _ message.Store = (*Client)(nil)

// WithTokenSource wraps the client transport so every request carries
// a bearer token from the source.  Tokens are reused until they
// expire; the source is asked for a fresh one after that.
func WithTokenSource(src oauth2.TokenSource) Option {
	return func(c *Client) {
		base := c.httpc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		c.httpc = &http.Client{
			Transport: &oauth2.Transport{
				Source: oauth2.ReuseTokenSource(nil, src),
				Base:   base,
			},
			Timeout: c.httpc.Timeout,
		}
	}
}

// StaticToken returns a source for a fixed bearer token, e.g. one
// issued out of band.
func StaticToken(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
}
